// Joins comments, reactions and profile pictures to posts and authors.

package storage

import (
	"slices"

	"github.com/maruel/inkwell/internal/models"
)

// ProfilePictureFor returns the picture path of author. Duplicate rows
// resolve to the last one. It reports false when the author has no row or
// an empty path.
func ProfilePictureFor(author string, users []models.User) (string, bool) {
	for i := len(users) - 1; i >= 0; i-- {
		if users[i].Author == author {
			p := users[i].ProfilePicture
			return p, p != ""
		}
	}
	return "", false
}

// ReactionCounts tallies the reactions of postID. Every supported kind is
// present in the result; kinds not in [models.ReactionKinds] are ignored.
func ReactionCounts(postID string, reactions []models.Reaction) map[models.ReactionKind]int {
	counts := make(map[models.ReactionKind]int, len(models.ReactionKinds))
	for _, k := range models.ReactionKinds {
		counts[k] = 0
	}
	for _, r := range reactions {
		if r.PostID != postID {
			continue
		}
		if _, ok := counts[r.Kind]; ok {
			counts[r.Kind]++
		}
	}
	return counts
}

// CommentsFor returns the comments of postID, oldest first. Comments with
// the same timestamp keep their table order.
func CommentsFor(postID string, comments []models.Comment) []models.Comment {
	out := []models.Comment{}
	for _, c := range comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b models.Comment) int {
		return a.Created.Compare(b.Created.Time)
	})
	return out
}

// DedupUsers keeps the last row of each author, ordered by the position of
// that last row.
func DedupUsers(users []models.User) []models.User {
	last := make(map[string]int, len(users))
	for i, u := range users {
		last[u.Author] = i
	}
	out := make([]models.User, 0, len(last))
	for i, u := range users {
		if last[u.Author] == i {
			out = append(out, u)
		}
	}
	return out
}

// newestFirst orders posts by creation time, newest first. Posts created in
// the same second are ordered last-written first.
func newestFirst(posts []models.Post) []models.Post {
	out := slices.Clone(posts)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b models.Post) int {
		return b.Created.Compare(a.Created.Time)
	})
	return out
}
