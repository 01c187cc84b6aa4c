package dto

import (
	"github.com/maruel/inkwell/internal/models"
)

// HealthResponse is a response from the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// PostSummary is a post as shown in the post list.
type PostSummary struct {
	ID            string           `json:"post_id"`
	Author        string           `json:"author_name"`
	AuthorPicture string           `json:"author_picture,omitempty"`
	Title         string           `json:"title"`
	Excerpt       string           `json:"excerpt"`
	ImagePath     string           `json:"post_image_path,omitempty"`
	Created       models.Timestamp `json:"timestamp"`
}

// ListPostsResponse is a response containing the posts, newest first.
type ListPostsResponse struct {
	Posts []PostSummary `json:"posts"`
}

// CreatePostResponse is a response from creating a post.
type CreatePostResponse struct {
	ID string `json:"post_id"`
}

// CommentResponse is a comment with its author's picture.
type CommentResponse struct {
	models.Comment
	AuthorPicture string `json:"author_picture,omitempty"`
}

// ReactionCount is the number of reactions of one kind.
type ReactionCount struct {
	Kind  models.ReactionKind `json:"reaction_type"`
	Count int                 `json:"count"`
}

// PostPageResponse is a post with everything needed to render it.
type PostPageResponse struct {
	Post          models.Post       `json:"post"`
	AuthorPicture string            `json:"author_picture,omitempty"`
	Comments      []CommentResponse `json:"comments"`
	Reactions     []ReactionCount   `json:"reactions"`
}

// ListCommentsResponse is a response containing the comments of a post,
// oldest first.
type ListCommentsResponse struct {
	Comments []models.Comment `json:"comments"`
}

// CreateCommentResponse is a response from creating a comment.
type CreateCommentResponse struct {
	ID string `json:"comment_id"`
}

// ReactionsResponse lists the count of every supported reaction.
type ReactionsResponse struct {
	Reactions []ReactionCount `json:"reactions"`
}

// AddReactionResponse is a response from adding a reaction.
type AddReactionResponse struct {
	ID        string          `json:"reaction_id"`
	Reactions []ReactionCount `json:"reactions"`
}

// SetProfilePictureResponse is a response from setting a profile picture.
type SetProfilePictureResponse struct {
	Path string `json:"profile_pic_path"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorDetails classifies an error.
type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
