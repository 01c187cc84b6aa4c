// Package dto defines the JSON request and response types of the HTTP API.
//
// Request types bind path parameters with `path:"name"` tags and validate
// themselves before reaching a handler. Binary payloads are []byte fields,
// base64 encoded on the wire.
package dto

import (
	"strings"

	apierrors "github.com/maruel/inkwell/internal/errors"
	"github.com/maruel/inkwell/internal/models"
)

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate validates the health request fields.
func (r *HealthRequest) Validate() error {
	return nil
}

// --- Posts ---

// ListPostsRequest is a request to list all posts, newest first.
type ListPostsRequest struct{}

// Validate validates the list posts request fields.
func (r *ListPostsRequest) Validate() error {
	return nil
}

// CreatePostRequest is a request to publish a post.
type CreatePostRequest struct {
	Author         string `json:"author_name"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	Image          []byte `json:"image,omitempty"`
	ProfilePicture []byte `json:"profile_picture,omitempty"`
}

// Validate validates the create post request fields.
func (r *CreatePostRequest) Validate() error {
	return required("author_name", r.Author, "title", r.Title, "content", r.Content)
}

// GetPostRequest is a request to get a post with its comments and reactions.
type GetPostRequest struct {
	ID string `path:"id"`
}

// Validate validates the get post request fields.
func (r *GetPostRequest) Validate() error {
	return required("id", r.ID)
}

// --- Comments ---

// ListCommentsRequest is a request to list the comments of a post.
type ListCommentsRequest struct {
	PostID string `path:"id"`
}

// Validate validates the list comments request fields.
func (r *ListCommentsRequest) Validate() error {
	return required("id", r.PostID)
}

// CreateCommentRequest is a request to comment on a post.
type CreateCommentRequest struct {
	PostID  string `path:"id" json:"-"`
	Author  string `json:"author_name"`
	Comment string `json:"comment"`
}

// Validate validates the create comment request fields.
func (r *CreateCommentRequest) Validate() error {
	return required("id", r.PostID, "author_name", r.Author, "comment", r.Comment)
}

// --- Reactions ---

// ListReactionsRequest is a request to count the reactions on a post.
type ListReactionsRequest struct {
	PostID string `path:"id"`
}

// Validate validates the list reactions request fields.
func (r *ListReactionsRequest) Validate() error {
	return required("id", r.PostID)
}

// AddReactionRequest is a request to react to a post.
type AddReactionRequest struct {
	PostID string              `path:"id" json:"-"`
	Kind   models.ReactionKind `json:"reaction_type"`
}

// Validate validates the add reaction request fields.
func (r *AddReactionRequest) Validate() error {
	if err := required("id", r.PostID, "reaction_type", string(r.Kind)); err != nil {
		return err
	}
	if !r.Kind.Valid() {
		return apierrors.BadRequest("unsupported reaction").WithDetail("reaction_type", string(r.Kind))
	}
	return nil
}

// --- Users ---

// SetProfilePictureRequest is a request to replace an author's picture.
type SetProfilePictureRequest struct {
	Author string `path:"name" json:"-"`
	Image  []byte `json:"image"`
}

// Validate validates the set profile picture request fields.
func (r *SetProfilePictureRequest) Validate() error {
	if err := required("name", r.Author); err != nil {
		return err
	}
	if len(r.Image) == 0 {
		return apierrors.MissingField("image")
	}
	return nil
}

// required takes name/value pairs and reports the first blank value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return apierrors.MissingField(pairs[i])
		}
	}
	return nil
}
