package dto

import (
	"testing"

	apierrors "github.com/maruel/inkwell/internal/errors"
	"github.com/maruel/inkwell/internal/models"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		req   Validatable
		code  apierrors.ErrorCode
		field string
	}{
		{"post ok", &CreatePostRequest{Author: "Ann", Title: "T", Content: "C"}, "", ""},
		{"post no author", &CreatePostRequest{Title: "T", Content: "C"}, apierrors.ErrMissingField, "author_name"},
		{"post blank title", &CreatePostRequest{Author: "Ann", Title: "  ", Content: "C"}, apierrors.ErrMissingField, "title"},
		{"post no content", &CreatePostRequest{Author: "Ann", Title: "T"}, apierrors.ErrMissingField, "content"},
		{"comment ok", &CreateCommentRequest{PostID: "p", Author: "Ann", Comment: "hi"}, "", ""},
		{"comment no text", &CreateCommentRequest{PostID: "p", Author: "Ann"}, apierrors.ErrMissingField, "comment"},
		{"reaction ok", &AddReactionRequest{PostID: "p", Kind: models.ReactionHeart}, "", ""},
		{"reaction missing", &AddReactionRequest{PostID: "p"}, apierrors.ErrMissingField, "reaction_type"},
		{"reaction unknown", &AddReactionRequest{PostID: "p", Kind: "🙃"}, apierrors.ErrValidationFailed, ""},
		{"picture ok", &SetProfilePictureRequest{Author: "Ann", Image: []byte{1}}, "", ""},
		{"picture empty", &SetProfilePictureRequest{Author: "Ann"}, apierrors.ErrMissingField, "image"},
		{"get post", &GetPostRequest{}, apierrors.ErrMissingField, "id"},
		{"health", &HealthRequest{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.code == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !apierrors.HasCode(err, tt.code) {
				t.Fatalf("Validate() = %v, want code %s", err, tt.code)
			}
			if tt.field != "" {
				var ews apierrors.ErrorWithStatus = err.(*apierrors.APIError)
				if got := ews.Details()["field"]; got != tt.field {
					t.Errorf("field = %v, want %s", got, tt.field)
				}
			}
		})
	}
}
