package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maruel/inkwell/internal/models"
	"github.com/maruel/inkwell/internal/server/dto"
	"github.com/maruel/inkwell/internal/server/ratelimit"
	"github.com/maruel/inkwell/internal/storage"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func newTestRouter(t *testing.T, limiter *ratelimit.Limiter) http.Handler {
	t.Helper()
	svc, err := storage.NewRecordService(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.EnsureInitialized(t.Context()); err != nil {
		t.Fatal(err)
	}
	return NewRouter(svc, "v-test", limiter)
}

// do sends body as JSON; a string body is sent verbatim.
func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder, wantStatus int) T {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, wantStatus, w.Body.String())
	}
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) dto.ErrorResponse {
	t.Helper()
	resp := decode[dto.ErrorResponse](t, w, status)
	if resp.Error.Code != code {
		t.Fatalf("code = %q, want %q; body: %s", resp.Error.Code, code, w.Body.String())
	}
	return resp
}

func createPost(t *testing.T, h http.Handler, body map[string]any) string {
	t.Helper()
	resp := decode[dto.CreatePostResponse](t, do(t, h, "POST", "/api/posts", body), http.StatusOK)
	if resp.ID == "" {
		t.Fatal("empty post id")
	}
	return resp.ID
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, nil)
	resp := decode[dto.HealthResponse](t, do(t, h, "GET", "/api/health", nil), http.StatusOK)
	if resp.Status != "ok" || resp.Version != "v-test" {
		t.Errorf("got %+v", resp)
	}
}

func TestPosts(t *testing.T) {
	h := newTestRouter(t, nil)

	t.Run("empty list", func(t *testing.T) {
		resp := decode[dto.ListPostsResponse](t, do(t, h, "GET", "/api/posts", nil), http.StatusOK)
		if resp.Posts == nil || len(resp.Posts) != 0 {
			t.Errorf("Posts = %#v, want empty non-nil", resp.Posts)
		}
	})

	long := "<p>" + strings.Repeat("word ", 100) + "</p>"
	id := createPost(t, h, map[string]any{
		"author_name":     "Ann",
		"title":           "Hello",
		"content":         long,
		"image":           pngData,
		"profile_picture": pngData,
	})

	t.Run("list", func(t *testing.T) {
		resp := decode[dto.ListPostsResponse](t, do(t, h, "GET", "/api/posts", nil), http.StatusOK)
		if len(resp.Posts) != 1 {
			t.Fatalf("got %d posts", len(resp.Posts))
		}
		p := resp.Posts[0]
		if p.ID != id || p.Author != "Ann" || p.Title != "Hello" {
			t.Errorf("got %+v", p)
		}
		if strings.Contains(p.Excerpt, "<p>") || !strings.HasSuffix(p.Excerpt, "...") {
			t.Errorf("Excerpt = %q", p.Excerpt)
		}
		if !strings.HasPrefix(p.ImagePath, "uploads/images/post_") || !strings.HasSuffix(p.ImagePath, ".png") {
			t.Errorf("ImagePath = %q", p.ImagePath)
		}
		if !strings.HasPrefix(p.AuthorPicture, "uploads/profile_pics/Ann_") {
			t.Errorf("AuthorPicture = %q", p.AuthorPicture)
		}
		if p.Created.IsZero() {
			t.Error("zero timestamp")
		}
	})

	t.Run("serve image", func(t *testing.T) {
		resp := decode[dto.ListPostsResponse](t, do(t, h, "GET", "/api/posts", nil), http.StatusOK)
		w := do(t, h, "GET", "/"+resp.Posts[0].ImagePath, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !bytes.Equal(w.Body.Bytes(), pngData) {
			t.Error("served image differs")
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q", ct)
		}
	})

	t.Run("not served", func(t *testing.T) {
		for _, p := range []string{"/uploads/images/", "/uploads/images", "/uploads/images/tmp/x.tmp", "/uploads/images/missing.png"} {
			wantError(t, do(t, h, "GET", p, nil), http.StatusNotFound, "NOT_FOUND")
		}
		resp := wantError(t, do(t, h, "GET", "/uploads/images/missing.png", nil), http.StatusNotFound, "NOT_FOUND")
		if resp.Details["path"] != "uploads/images/missing.png" {
			t.Errorf("Details = %v", resp.Details)
		}
	})

	t.Run("page", func(t *testing.T) {
		resp := decode[dto.PostPageResponse](t, do(t, h, "GET", "/api/posts/"+id, nil), http.StatusOK)
		if resp.Post.ID != id || resp.Post.Content != long {
			t.Errorf("Post = %+v", resp.Post)
		}
		if resp.Comments == nil || len(resp.Comments) != 0 {
			t.Errorf("Comments = %#v", resp.Comments)
		}
		if len(resp.Reactions) != len(models.ReactionKinds) {
			t.Fatalf("got %d reaction counts", len(resp.Reactions))
		}
		for i, rc := range resp.Reactions {
			if rc.Kind != models.ReactionKinds[i] || rc.Count != 0 {
				t.Errorf("Reactions[%d] = %+v", i, rc)
			}
		}
	})

	t.Run("missing post", func(t *testing.T) {
		resp := wantError(t, do(t, h, "GET", "/api/posts/nope", nil), http.StatusNotFound, "POST_NOT_FOUND")
		if resp.Details["post_id"] != "nope" {
			t.Errorf("Details = %v", resp.Details)
		}
	})

	t.Run("missing field", func(t *testing.T) {
		w := do(t, h, "POST", "/api/posts", map[string]any{"author_name": "Ann", "title": "T"})
		resp := wantError(t, w, http.StatusBadRequest, "MISSING_FIELD")
		if resp.Details["field"] != "content" {
			t.Errorf("Details = %v", resp.Details)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		w := do(t, h, "POST", "/api/posts", map[string]any{"author_name": "Ann", "title": "T", "content": "c", "tags": "x"})
		wantError(t, w, http.StatusBadRequest, "VALIDATION_FAILED")
	})

	t.Run("malformed", func(t *testing.T) {
		wantError(t, do(t, h, "POST", "/api/posts", "{"), http.StatusBadRequest, "VALIDATION_FAILED")
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"author_name":"` + strings.Repeat("a", MaxRequestBodyBytes) + `"}`
		wantError(t, do(t, h, "POST", "/api/posts", body), http.StatusRequestEntityTooLarge, "VALIDATION_FAILED")
	})
}

func TestCommentsAndReactions(t *testing.T) {
	h := newTestRouter(t, nil)
	id := createPost(t, h, map[string]any{"author_name": "Ann", "title": "T", "content": "c"})

	t.Run("comments", func(t *testing.T) {
		for _, text := range []string{"first", "second"} {
			resp := decode[dto.CreateCommentResponse](t, do(t, h, "POST", "/api/posts/"+id+"/comments", map[string]any{"author_name": "Bob", "comment": text}), http.StatusOK)
			if resp.ID == "" {
				t.Fatal("empty comment id")
			}
		}
		resp := decode[dto.ListCommentsResponse](t, do(t, h, "GET", "/api/posts/"+id+"/comments", nil), http.StatusOK)
		if len(resp.Comments) != 2 || resp.Comments[0].Text != "first" || resp.Comments[1].Text != "second" {
			t.Errorf("Comments = %+v", resp.Comments)
		}
		page := decode[dto.PostPageResponse](t, do(t, h, "GET", "/api/posts/"+id, nil), http.StatusOK)
		if len(page.Comments) != 2 || page.Comments[0].Author != "Bob" {
			t.Errorf("page Comments = %+v", page.Comments)
		}
	})

	t.Run("comment on missing post", func(t *testing.T) {
		w := do(t, h, "POST", "/api/posts/missing-id/comments", map[string]any{"author_name": "Bob", "comment": "hi"})
		wantError(t, w, http.StatusNotFound, "POST_NOT_FOUND")
		wantError(t, do(t, h, "GET", "/api/posts/missing-id/comments", nil), http.StatusNotFound, "POST_NOT_FOUND")
	})

	t.Run("reactions", func(t *testing.T) {
		for _, k := range []models.ReactionKind{models.ReactionHeart, models.ReactionHeart, models.ReactionThinker} {
			do(t, h, "POST", "/api/posts/"+id+"/reactions", map[string]any{"reaction_type": k})
		}
		resp := decode[dto.ReactionsResponse](t, do(t, h, "GET", "/api/posts/"+id+"/reactions", nil), http.StatusOK)
		got := map[models.ReactionKind]int{}
		for _, rc := range resp.Reactions {
			got[rc.Kind] = rc.Count
		}
		if got[models.ReactionHeart] != 2 || got[models.ReactionThinker] != 1 || got[models.ReactionThumbs] != 0 {
			t.Errorf("counts = %v", got)
		}
	})

	t.Run("unsupported reaction", func(t *testing.T) {
		w := do(t, h, "POST", "/api/posts/"+id+"/reactions", map[string]any{"reaction_type": "🙃"})
		wantError(t, w, http.StatusBadRequest, "VALIDATION_FAILED")
	})

	t.Run("reaction on missing post", func(t *testing.T) {
		w := do(t, h, "POST", "/api/posts/missing-id/reactions", map[string]any{"reaction_type": models.ReactionHeart})
		wantError(t, w, http.StatusNotFound, "POST_NOT_FOUND")
	})
}

func TestProfilePicture(t *testing.T) {
	h := newTestRouter(t, nil)
	first := decode[dto.SetProfilePictureResponse](t, do(t, h, "PUT", "/api/users/Ann%20Lee/picture", map[string]any{"image": pngData}), http.StatusOK)
	if !strings.HasPrefix(first.Path, "uploads/profile_pics/Ann_Lee_") {
		t.Fatalf("Path = %q", first.Path)
	}
	second := decode[dto.SetProfilePictureResponse](t, do(t, h, "PUT", "/api/users/Ann%20Lee/picture", map[string]any{"image": pngData}), http.StatusOK)
	if second.Path == first.Path {
		t.Fatal("picture path reused")
	}
	createPost(t, h, map[string]any{"author_name": "Ann Lee", "title": "T", "content": "c"})
	resp := decode[dto.ListPostsResponse](t, do(t, h, "GET", "/api/posts", nil), http.StatusOK)
	if resp.Posts[0].AuthorPicture != second.Path {
		t.Errorf("AuthorPicture = %q, want %q", resp.Posts[0].AuthorPicture, second.Path)
	}
	wantError(t, do(t, h, "PUT", "/api/users/Ann/picture", map[string]any{}), http.StatusBadRequest, "MISSING_FIELD")
}

func TestWriteLimit(t *testing.T) {
	l := ratelimit.NewLimiter(2, time.Minute, 2)
	defer l.Close()
	h := newTestRouter(t, l)
	body := map[string]any{"author_name": "Ann", "title": "T", "content": "c"}
	for i := range 2 {
		w := do(t, h, "POST", "/api/posts", body)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
		}
	}
	w := do(t, h, "POST", "/api/posts", body)
	resp := wantError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if resp.Details["retry_after"] == nil {
		t.Errorf("Details = %v", resp.Details)
	}
	if w := do(t, h, "GET", "/api/posts", nil); w.Code != http.StatusOK {
		t.Errorf("reads are limited: status = %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestRouter(t, nil)
	w := do(t, h, "GET", "/api/health", nil)
	id := w.Header().Get("X-Request-ID")
	if len(id) != 36 {
		t.Fatalf("X-Request-ID = %q", id)
	}

	const sent = "0b8f6f6c-3f5e-4c55-9d8e-0f1f2a3b4c5d"
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", sent)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != sent {
		t.Errorf("X-Request-ID = %q, want %q", got, sent)
	}

	req = httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", "bogus\nvalue")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == "bogus\nvalue" || len(got) != 36 {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote v4", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote v6", nil, "[::1]:8080", "::1"},
		{"forwarded", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.8"}, "10.0.0.1:1", "203.0.113.8"},
		{"no port", nil, "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
