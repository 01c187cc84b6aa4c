// Package storage implements the Inkwell record service on top of csvdb
// tables and blob stores.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maruel/inkwell/internal/csvdb"
	apierrors "github.com/maruel/inkwell/internal/errors"
	"github.com/maruel/inkwell/internal/models"
)

// maxIDAttempts bounds identifier regeneration on collision.
const maxIDAttempts = 8

// NewPost holds the inputs of [RecordService.CreatePost].
type NewPost struct {
	Author string
	Title  string
	Body   string
	// Image is an optional image attached to the post.
	Image []byte
	// ProfilePicture is stored only when the author has none yet.
	ProfilePicture []byte
}

// PostPage is a post with everything needed to render it.
type PostPage struct {
	Post          models.Post
	AuthorPicture string
	Comments      []CommentView
	Reactions     map[models.ReactionKind]int
}

// CommentView is a comment with its author's picture.
type CommentView struct {
	models.Comment
	AuthorPicture string
}

// RecordService is the entry point to the posts, comments, reactions and
// users tables.
//
// Reads go through a shared [csvdb.Cache]. Writes are serialized by a mutex,
// rewrite the whole table, then invalidate the cache before returning.
//
// Only one process may write to a root directory. Two processes rewriting the
// same table at overlapping times silently lose one of the writes.
type RecordService struct {
	root     string
	cache    *csvdb.Cache
	tables   *tables
	images   *csvdb.BlobStore
	pictures *csvdb.BlobStore
	history  *History
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a RecordService.
type Option func(*RecordService)

// WithHistory commits every write to h.
func WithHistory(h *History) Option {
	return func(s *RecordService) { s.history = h }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *RecordService) { s.now = now }
}

// WithCache shares c instead of allocating a new cache.
func WithCache(c *csvdb.Cache) Option {
	return func(s *RecordService) { s.cache = c }
}

// NewRecordService returns a service rooted at root. Call
// [RecordService.EnsureInitialized] before serving requests.
func NewRecordService(root string, opts ...Option) (*RecordService, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	t, err := openTables(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open tables: %w", err)
	}
	s := &RecordService{
		root:     root,
		cache:    csvdb.NewCache(),
		tables:   t,
		images:   csvdb.NewBlobStore(root, PostImagesDir),
		pictures: csvdb.NewBlobStore(root, ProfilePicturesDir),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the root directory.
func (s *RecordService) Root() string {
	return s.root
}

// Cache returns the table cache.
func (s *RecordService) Cache() *csvdb.Cache {
	return s.cache
}

// EnsureInitialized creates missing table files and blob directories and
// migrates legacy tables. It is idempotent.
func (s *RecordService) EnsureInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bs := range []*csvdb.BlobStore{s.images, s.pictures} {
		if err := bs.EnsureDir(); err != nil {
			return apierrors.Storage(err)
		}
	}
	written, err := s.tables.ensureInitialized()
	if len(written) > 0 {
		s.cache.InvalidateAll()
		names := make([]string, len(written))
		for i, p := range written {
			names[i] = filepath.Base(p)
		}
		slog.InfoContext(ctx, "Initialized tables", "files", names)
	}
	if err != nil {
		return storageError(err)
	}
	s.commit(ctx, "Initialize tables", written...)
	return nil
}

// CreatePost stores a new post and returns its identifier.
//
// Line breaks in text fields are stored as LF. A first profile picture is
// stored before the post; if that fails, no post is created.
func (s *RecordService) CreatePost(ctx context.Context, in NewPost) (string, error) {
	in.Author, in.Title, in.Body = normalizeText(in.Author), normalizeText(in.Title), normalizeText(in.Body)
	if err := requireFields("author_name", in.Author, "title", in.Title, "content", in.Body); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := load(ctx, s, s.tables.posts)
	if err != nil {
		return "", err
	}
	// The picture goes first so that a failure leaves no post behind.
	var files []string
	if len(in.ProfilePicture) > 0 {
		p, err := s.firstProfilePicture(ctx, in.Author, in.ProfilePicture)
		if err != nil {
			return "", err
		}
		if p != "" {
			files = append(files, s.tables.users.Path(), p)
		}
	}
	post := models.Post{Author: in.Author, Title: in.Title, Content: in.Body}
	if len(in.Image) > 0 {
		if post.ImagePath, err = s.images.Save("post", in.Image); err != nil {
			return "", apierrors.Storage(err)
		}
	}
	now := s.now()
	taken := make(map[string]bool, len(posts))
	for _, p := range posts {
		taken[p.ID] = true
	}
	if post.ID, err = uniqueID(func(seeds ...string) string { return csvdb.NewShortID(now, seeds...) }, taken, in.Author, in.Title); err != nil {
		return "", apierrors.Storage(err)
	}
	post.Created = models.NewTimestamp(now)
	if err := persist(s, s.tables.posts, append(posts, post)); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Created post", "id", post.ID, "author", post.Author, "image", post.ImagePath)
	files = append(files, s.tables.posts.Path(), post.ImagePath)
	s.commit(ctx, "Create post "+post.ID, files...)
	return post.ID, nil
}

// firstProfilePicture stores data as the picture of author unless author
// already has a row. It returns the new picture path, if any.
func (s *RecordService) firstProfilePicture(ctx context.Context, author string, data []byte) (string, error) {
	users, err := load(ctx, s, s.tables.users)
	if err != nil {
		return "", err
	}
	if slices.ContainsFunc(users, func(u models.User) bool { return u.Author == author }) {
		return "", nil
	}
	p, err := s.pictures.Save(author, data)
	if err != nil {
		return "", apierrors.Storage(err)
	}
	if err := persist(s, s.tables.users, append(users, models.User{Author: author, ProfilePicture: p})); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Stored first profile picture", "author", author, "path", p)
	return p, nil
}

// CreateComment attaches a comment to an existing post. Line breaks are
// stored as LF.
func (s *RecordService) CreateComment(ctx context.Context, postID, author, text string) (string, error) {
	author, text = normalizeText(author), normalizeText(text)
	if err := requireFields("post_id", postID, "author_name", author, "comment", text); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePost(ctx, postID); err != nil {
		return "", err
	}
	comments, err := load(ctx, s, s.tables.comments)
	if err != nil {
		return "", err
	}
	now := s.now()
	taken := make(map[string]bool, len(comments))
	for _, c := range comments {
		taken[c.ID] = true
	}
	id, err := uniqueID(func(seeds ...string) string { return csvdb.NewID(now, seeds...) }, taken, postID, author, text)
	if err != nil {
		return "", apierrors.Storage(err)
	}
	c := models.Comment{ID: id, PostID: postID, Author: author, Text: text, Created: models.NewTimestamp(now)}
	if err := persist(s, s.tables.comments, append(comments, c)); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Created comment", "id", id, "post", postID, "author", author)
	s.commit(ctx, "Comment on "+postID, s.tables.comments.Path())
	return id, nil
}

// AddReaction records one reaction of the given kind on an existing post.
func (s *RecordService) AddReaction(ctx context.Context, postID string, kind models.ReactionKind) (string, error) {
	if err := requireFields("post_id", postID, "reaction_type", string(kind)); err != nil {
		return "", err
	}
	if !kind.Valid() {
		return "", apierrors.BadRequest(fmt.Sprintf("unsupported reaction %q", kind)).WithDetail("field", "reaction_type")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requirePost(ctx, postID); err != nil {
		return "", err
	}
	reactions, err := load(ctx, s, s.tables.reactions)
	if err != nil {
		return "", err
	}
	now := s.now()
	taken := make(map[string]bool, len(reactions))
	for _, r := range reactions {
		taken[r.ID] = true
	}
	id, err := uniqueID(func(seeds ...string) string { return csvdb.NewID(now, seeds...) }, taken, postID, string(kind))
	if err != nil {
		return "", apierrors.Storage(err)
	}
	if err := persist(s, s.tables.reactions, append(reactions, models.Reaction{ID: id, PostID: postID, Kind: kind})); err != nil {
		return "", err
	}
	slog.DebugContext(ctx, "Added reaction", "id", id, "post", postID, "kind", string(kind))
	s.commit(ctx, "React "+string(kind)+" on "+postID, s.tables.reactions.Path())
	return id, nil
}

// UpsertProfilePicture stores image as the picture of author, replacing any
// previous one, and returns its path. The previous blob is left on disk
// until [RecordService.PruneBlobs].
func (s *RecordService) UpsertProfilePicture(ctx context.Context, author string, image []byte) (string, error) {
	author = normalizeText(author)
	if err := requireFields("author_name", author); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", apierrors.MissingField("image")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := load(ctx, s, s.tables.users)
	if err != nil {
		return "", err
	}
	p, err := s.pictures.Save(author, image)
	if err != nil {
		return "", apierrors.Storage(err)
	}
	users = slices.DeleteFunc(users, func(u models.User) bool { return u.Author == author })
	if err := persist(s, s.tables.users, append(users, models.User{Author: author, ProfilePicture: p})); err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "Updated profile picture", "author", author, "path", p)
	s.commit(ctx, "Profile picture for "+author, s.tables.users.Path(), p)
	return p, nil
}

// ListPosts returns every post, newest first.
func (s *RecordService) ListPosts(ctx context.Context) ([]models.Post, error) {
	posts, err := load(ctx, s, s.tables.posts)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return []models.Post{}, nil
	}
	return newestFirst(posts), nil
}

// GetPost returns the post with the given identifier.
func (s *RecordService) GetPost(ctx context.Context, id string) (models.Post, error) {
	posts, err := load(ctx, s, s.tables.posts)
	if err != nil {
		return models.Post{}, err
	}
	if i := slices.IndexFunc(posts, func(p models.Post) bool { return p.ID == id }); i >= 0 {
		return posts[i], nil
	}
	return models.Post{}, apierrors.PostNotFound(id)
}

// CommentsFor returns the comments of postID, oldest first. An unknown post
// has no comments.
func (s *RecordService) CommentsFor(ctx context.Context, postID string) ([]models.Comment, error) {
	comments, err := load(ctx, s, s.tables.comments)
	if err != nil {
		return nil, err
	}
	return CommentsFor(postID, comments), nil
}

// ReactionCounts tallies the reactions of postID.
func (s *RecordService) ReactionCounts(ctx context.Context, postID string) (map[models.ReactionKind]int, error) {
	reactions, err := load(ctx, s, s.tables.reactions)
	if err != nil {
		return nil, err
	}
	return ReactionCounts(postID, reactions), nil
}

// ProfilePictureFor returns the picture path of author. It reports false
// when the author has none or the blob is gone, in which case callers show a
// default avatar.
func (s *RecordService) ProfilePictureFor(ctx context.Context, author string) (string, bool, error) {
	users, err := load(ctx, s, s.tables.users)
	if err != nil {
		return "", false, err
	}
	p, ok := s.pictureFor(author, users)
	return p, ok, nil
}

func (s *RecordService) pictureFor(author string, users []models.User) (string, bool) {
	p, ok := ProfilePictureFor(author, users)
	if !ok || !s.pictures.Exists(p) {
		return "", false
	}
	return p, true
}

// PostPage returns a post with its author's picture, its comments and its
// reaction counts.
func (s *RecordService) PostPage(ctx context.Context, id string) (*PostPage, error) {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	users, err := load(ctx, s, s.tables.users)
	if err != nil {
		return nil, err
	}
	comments, err := s.CommentsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.ReactionCounts(ctx, id)
	if err != nil {
		return nil, err
	}
	page := &PostPage{Post: post, Comments: make([]CommentView, len(comments)), Reactions: counts}
	page.AuthorPicture, _ = s.pictureFor(post.Author, users)
	for i, c := range comments {
		page.Comments[i].Comment = c
		page.Comments[i].AuthorPicture, _ = s.pictureFor(c.Author, users)
	}
	return page, nil
}

// PruneBlobs removes post images and profile pictures that no table row
// references, and leftover temporary files. It returns the number of blobs
// removed.
func (s *RecordService) PruneBlobs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := load(ctx, s, s.tables.posts)
	if err != nil {
		return 0, err
	}
	users, err := load(ctx, s, s.tables.users)
	if err != nil {
		return 0, err
	}
	used := make(map[string]bool, len(posts)+len(users))
	for _, p := range posts {
		if p.ImagePath != "" {
			used[p.ImagePath] = true
		}
	}
	for _, u := range DedupUsers(users) {
		if u.ProfilePicture != "" {
			used[u.ProfilePicture] = true
		}
	}
	removed, err1 := s.images.GC(used)
	pictures, err2 := s.pictures.GC(used)
	removed = append(removed, pictures...)
	if len(removed) > 0 {
		slog.InfoContext(ctx, "Pruned blobs", "removed", len(removed))
		s.commit(ctx, "Prune "+strconv.Itoa(len(removed))+" blobs", removed...)
	}
	if err := errors.Join(err1, err2); err != nil {
		return len(removed), apierrors.Storage(err)
	}
	return len(removed), nil
}

// requirePost must be called with s.mu held.
func (s *RecordService) requirePost(ctx context.Context, postID string) error {
	posts, err := load(ctx, s, s.tables.posts)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(posts, func(p models.Post) bool { return p.ID == postID }) {
		return apierrors.PostNotFound(postID)
	}
	return nil
}

// commit records files in history, if enabled. Files are absolute or
// relative to the root; empty entries are skipped. The write it follows is
// already durable so failures are only logged.
func (s *RecordService) commit(ctx context.Context, msg string, files ...string) {
	if s.history == nil {
		return
	}
	var rel []string
	for _, f := range files {
		if f == "" {
			continue
		}
		if filepath.IsAbs(f) {
			r, err := filepath.Rel(s.root, f)
			if err != nil {
				slog.WarnContext(ctx, "File outside of root", "file", f, "err", err)
				continue
			}
			f = r
		}
		rel = append(rel, f)
	}
	if _, err := s.history.Commit(ctx, msg, rel...); err != nil {
		slog.WarnContext(ctx, "Failed to commit history", "msg", msg, "err", err)
	}
}

// load reads a table through the cache.
func load[T any](ctx context.Context, s *RecordService, t *csvdb.Table[T]) ([]T, error) {
	rows, err := csvdb.Load(s.cache, t)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load table", "file", filepath.Base(t.Path()), "err", err)
		return nil, storageError(err)
	}
	return rows, nil
}

// persist rewrites t with rows and invalidates the cache.
func persist[T any](s *RecordService, t *csvdb.Table[T], rows []T) error {
	if err := t.Write(rows); err != nil {
		return apierrors.Storage(err)
	}
	s.cache.InvalidateAll()
	return nil
}

func storageError(err error) error {
	if errors.Is(err, csvdb.ErrSchema) {
		return apierrors.Schema(err)
	}
	return apierrors.Storage(err)
}

// lineBreaks maps CR LF and lone CR to LF. CSV readers fold CR LF inside a
// quoted cell into LF, so text is stored in that form to read back unchanged.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizeText(s string) string {
	return lineBreaks.Replace(s)
}

// requireFields takes name, value pairs and fails on the first blank value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return apierrors.MissingField(pairs[i])
		}
	}
	return nil
}

// uniqueID derives an identifier from seeds, appending an attempt counter
// until it is not taken.
func uniqueID(gen func(seeds ...string) string, taken map[string]bool, seeds ...string) (string, error) {
	for attempt := range maxIDAttempts {
		s := seeds
		if attempt > 0 {
			s = append(slices.Clip(seeds), strconv.Itoa(attempt))
		}
		if id := gen(s...); !taken[id] {
			return id, nil
		}
	}
	return "", fmt.Errorf("no unique identifier after %d attempts", maxIDAttempts)
}
