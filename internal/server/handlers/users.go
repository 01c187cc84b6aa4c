package handlers

import (
	"context"

	"github.com/maruel/inkwell/internal/server/dto"
	"github.com/maruel/inkwell/internal/storage"
)

// UserHandler handles author profile requests.
type UserHandler struct {
	svc *storage.RecordService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc *storage.RecordService) *UserHandler {
	return &UserHandler{svc: svc}
}

// SetProfilePicture replaces the picture of an author.
func (h *UserHandler) SetProfilePicture(ctx context.Context, req *dto.SetProfilePictureRequest) (*dto.SetProfilePictureResponse, error) {
	p, err := h.svc.UpsertProfilePicture(ctx, req.Author, req.Image)
	if err != nil {
		return nil, err
	}
	return &dto.SetProfilePictureResponse{Path: p}, nil
}
