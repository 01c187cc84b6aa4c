// Declares the on-disk layout: table files, their migrations and blob
// directories.

package storage

import (
	"fmt"
	"path/filepath"

	"github.com/maruel/inkwell/internal/csvdb"
	"github.com/maruel/inkwell/internal/models"
)

// Layout relative to the root directory.
const (
	DataDir            = "data"
	PostImagesDir      = "uploads/images"
	ProfilePicturesDir = "uploads/profile_pics"

	postsFile     = "posts.csv"
	commentsFile  = "comments.csv"
	reactionsFile = "reactions.csv"
	usersFile     = "users.csv"
)

// postMigrations upgrades posts.csv files written before author and image
// columns were prefixed.
var postMigrations = []csvdb.Migration{
	{From: 0, Renames: map[string]string{"author": "author_name", "image_path": "post_image_path"}},
}

type tables struct {
	posts     *csvdb.Table[models.Post]
	comments  *csvdb.Table[models.Comment]
	reactions *csvdb.Table[models.Reaction]
	users     *csvdb.Table[models.User]
}

func openTables(root string) (*tables, error) {
	dir := filepath.Join(root, DataDir)
	posts, err := csvdb.NewTable[models.Post](filepath.Join(dir, postsFile), postMigrations...)
	if err != nil {
		return nil, fmt.Errorf("posts: %w", err)
	}
	comments, err := csvdb.NewTable[models.Comment](filepath.Join(dir, commentsFile))
	if err != nil {
		return nil, fmt.Errorf("comments: %w", err)
	}
	reactions, err := csvdb.NewTable[models.Reaction](filepath.Join(dir, reactionsFile))
	if err != nil {
		return nil, fmt.Errorf("reactions: %w", err)
	}
	users, err := csvdb.NewTable[models.User](filepath.Join(dir, usersFile))
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	return &tables{posts: posts, comments: comments, reactions: reactions, users: users}, nil
}

// ensureInitialized creates or migrates every table and reports the files
// that were written.
func (t *tables) ensureInitialized() ([]string, error) {
	var written []string
	for _, tbl := range []interface {
		EnsureInitialized() (bool, error)
		Path() string
	}{t.posts, t.comments, t.reactions, t.users} {
		wrote, err := tbl.EnsureInitialized()
		if err != nil {
			return written, err
		}
		if wrote {
			written = append(written, tbl.Path())
		}
	}
	return written, nil
}
