// Records every table rewrite in a git repository using go-git.

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// History commits the state of the root directory after each write.
//
// It is an audit trail, not a transaction log: a failed commit is reported
// but does not undo the write that preceded it.
type History struct {
	dir   string
	name  string
	email string
	repo  *gogit.Repository
	mu    sync.Mutex
}

// OpenHistory opens the git repository at dir, initializing it if needed.
func OpenHistory(dir, name, email string) (*History, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		if !errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("failed to open git repo: %w", err)
		}
		if repo, err = gogit.PlainInit(dir, false); err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &History{dir: dir, name: name, email: email, repo: repo}, nil
}

// Commit stages files and commits them. Files are relative to the repository
// root; files that no longer exist are staged as removals.
// It reports false when there was nothing to commit.
func (h *History) Commit(ctx context.Context, msg string, files ...string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(files) == 0 {
		return false, nil
	}

	w, err := h.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	for _, f := range files {
		rel, err := h.rel(f)
		if err != nil {
			return false, err
		}
		if _, err := os.Lstat(filepath.Join(h.dir, rel)); os.IsNotExist(err) {
			if _, err := w.Remove(filepath.ToSlash(rel)); err != nil && !errors.Is(err, index.ErrEntryNotFound) {
				return false, fmt.Errorf("failed to stage removal of %s: %w", rel, err)
			}
			continue
		}
		if _, err := w.Add(filepath.ToSlash(rel)); err != nil {
			return false, fmt.Errorf("failed to stage files: %w", err)
		}
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	if !hasStaged(status) {
		return false, nil
	}
	sig := &object.Signature{Name: h.name, Email: h.email, When: time.Now()}
	hash, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	slog.DebugContext(ctx, "Committed history", "hash", hash.String()[:12], "msg", msg)
	return true, nil
}

func (h *History) rel(p string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(p))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not inside the repository", p)
	}
	return rel, nil
}

// hasStaged reports whether the index differs from HEAD.
func hasStaged(status gogit.Status) bool {
	for _, fs := range status {
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			return true
		}
	}
	return false
}

// Count returns the number of commits reachable from HEAD.
func (h *History) Count() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	iter, err := h.repo.Log(&gogit.LogOptions{})
	if err != nil {
		// No commits yet.
		return 0, nil
	}
	defer iter.Close()
	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	return n, err
}

// Messages returns the last n commit subjects, newest first.
func (h *History) Messages(n int) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	iter, err := h.repo.Log(&gogit.LogOptions{})
	if err != nil {
		return nil, nil
	}
	defer iter.Close()
	var out []string
	for range n {
		c, err := iter.Next()
		if err != nil {
			break
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		out = append(out, subject)
	}
	return out, nil
}
