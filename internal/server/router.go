package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	apierrors "github.com/maruel/inkwell/internal/errors"
	"github.com/maruel/inkwell/internal/server/handlers"
	"github.com/maruel/inkwell/internal/server/ratelimit"
	"github.com/maruel/inkwell/internal/storage"
)

// NewRouter creates the HTTP handler serving the API and the uploaded blobs.
//
// limiter throttles mutating requests per client; it may be nil.
func NewRouter(svc *storage.RecordService, version string, limiter *ratelimit.Limiter) http.Handler {
	mux := http.NewServeMux()

	hh := handlers.NewHealthHandler(version)
	ph := handlers.NewPostHandler(svc)
	uh := handlers.NewUserHandler(svc)

	mux.Handle("GET /api/health", Wrap(hh.Health))

	// Posts
	mux.Handle("GET /api/posts", Wrap(ph.ListPosts))
	mux.Handle("POST /api/posts", Wrap(ph.CreatePost))
	mux.Handle("GET /api/posts/{id}", Wrap(ph.GetPost))

	// Comments and reactions
	mux.Handle("GET /api/posts/{id}/comments", Wrap(ph.ListComments))
	mux.Handle("POST /api/posts/{id}/comments", Wrap(ph.CreateComment))
	mux.Handle("GET /api/posts/{id}/reactions", Wrap(ph.ListReactions))
	mux.Handle("POST /api/posts/{id}/reactions", Wrap(ph.AddReaction))

	// Users
	mux.Handle("PUT /api/users/{name}/picture", Wrap(uh.SetProfilePicture))

	// Blobs are addressed by the root relative path stored in the tables.
	mux.Handle("GET /uploads/", serveBlobs(svc.Root()))

	return WithRequestLog(WithWriteLimit(limiter, mux))
}

// serveBlobs serves files under root/uploads, without directory listings or
// partially written files.
func serveBlobs(root string) http.Handler {
	fs := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean(r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/") || path.Base(path.Dir(p)) == "tmp" || !isRegularFile(filepath.Join(root, filepath.FromSlash(p))) {
			writeError(r.Context(), w, apierrors.NotFound("upload").WithDetail("path", strings.TrimPrefix(p, "/")), 0, "")
			return
		}
		fs.ServeHTTP(w, r)
	})
}

func isRegularFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular()
}
