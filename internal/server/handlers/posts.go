package handlers

import (
	"context"

	"github.com/maruel/inkwell/internal/models"
	"github.com/maruel/inkwell/internal/server/dto"
	"github.com/maruel/inkwell/internal/storage"
)

// PostHandler handles post, comment and reaction requests.
type PostHandler struct {
	svc *storage.RecordService
}

// NewPostHandler creates a new post handler.
func NewPostHandler(svc *storage.RecordService) *PostHandler {
	return &PostHandler{svc: svc}
}

// ListPosts returns every post, newest first, with an excerpt of its body.
func (h *PostHandler) ListPosts(ctx context.Context, _ *dto.ListPostsRequest) (*dto.ListPostsResponse, error) {
	posts, err := h.svc.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	pictures := map[string]string{}
	resp := &dto.ListPostsResponse{Posts: make([]dto.PostSummary, 0, len(posts))}
	for _, p := range posts {
		pic, seen := pictures[p.Author]
		if !seen {
			if pic, _, err = h.svc.ProfilePictureFor(ctx, p.Author); err != nil {
				return nil, err
			}
			pictures[p.Author] = pic
		}
		resp.Posts = append(resp.Posts, dto.PostSummary{
			ID:            p.ID,
			Author:        p.Author,
			AuthorPicture: pic,
			Title:         p.Title,
			Excerpt:       excerpt(p.Content),
			ImagePath:     p.ImagePath,
			Created:       p.Created,
		})
	}
	return resp, nil
}

// CreatePost publishes a post.
func (h *PostHandler) CreatePost(ctx context.Context, req *dto.CreatePostRequest) (*dto.CreatePostResponse, error) {
	id, err := h.svc.CreatePost(ctx, storage.NewPost{
		Author:         req.Author,
		Title:          req.Title,
		Body:           req.Content,
		Image:          req.Image,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		return nil, err
	}
	return &dto.CreatePostResponse{ID: id}, nil
}

// GetPost returns a post with its comments and reaction counts.
func (h *PostHandler) GetPost(ctx context.Context, req *dto.GetPostRequest) (*dto.PostPageResponse, error) {
	page, err := h.svc.PostPage(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	resp := &dto.PostPageResponse{
		Post:          page.Post,
		AuthorPicture: page.AuthorPicture,
		Comments:      make([]dto.CommentResponse, len(page.Comments)),
		Reactions:     reactionCounts(page.Reactions),
	}
	for i, c := range page.Comments {
		resp.Comments[i] = dto.CommentResponse{Comment: c.Comment, AuthorPicture: c.AuthorPicture}
	}
	return resp, nil
}

// ListComments returns the comments of a post, oldest first.
func (h *PostHandler) ListComments(ctx context.Context, req *dto.ListCommentsRequest) (*dto.ListCommentsResponse, error) {
	if _, err := h.svc.GetPost(ctx, req.PostID); err != nil {
		return nil, err
	}
	comments, err := h.svc.CommentsFor(ctx, req.PostID)
	if err != nil {
		return nil, err
	}
	return &dto.ListCommentsResponse{Comments: comments}, nil
}

// CreateComment adds a comment to a post.
func (h *PostHandler) CreateComment(ctx context.Context, req *dto.CreateCommentRequest) (*dto.CreateCommentResponse, error) {
	id, err := h.svc.CreateComment(ctx, req.PostID, req.Author, req.Comment)
	if err != nil {
		return nil, err
	}
	return &dto.CreateCommentResponse{ID: id}, nil
}

// ListReactions returns the count of every supported reaction on a post.
func (h *PostHandler) ListReactions(ctx context.Context, req *dto.ListReactionsRequest) (*dto.ReactionsResponse, error) {
	if _, err := h.svc.GetPost(ctx, req.PostID); err != nil {
		return nil, err
	}
	counts, err := h.svc.ReactionCounts(ctx, req.PostID)
	if err != nil {
		return nil, err
	}
	return &dto.ReactionsResponse{Reactions: reactionCounts(counts)}, nil
}

// AddReaction records one reaction and returns the updated counts.
func (h *PostHandler) AddReaction(ctx context.Context, req *dto.AddReactionRequest) (*dto.AddReactionResponse, error) {
	id, err := h.svc.AddReaction(ctx, req.PostID, req.Kind)
	if err != nil {
		return nil, err
	}
	counts, err := h.svc.ReactionCounts(ctx, req.PostID)
	if err != nil {
		return nil, err
	}
	return &dto.AddReactionResponse{ID: id, Reactions: reactionCounts(counts)}, nil
}

// reactionCounts lists counts in display order.
func reactionCounts(counts map[models.ReactionKind]int) []dto.ReactionCount {
	out := make([]dto.ReactionCount, len(models.ReactionKinds))
	for i, k := range models.ReactionKinds {
		out[i] = dto.ReactionCount{Kind: k, Count: counts[k]}
	}
	return out
}
