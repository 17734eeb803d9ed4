package imagestore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

func TestMockListsTwoCards(t *testing.T) {
	entries, err := NewMock().ListImages(context.Background(), 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].ImagePath != "/students/7/cards/card_001.png" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestMockRejectsTraversal(t *testing.T) {
	if _, _, err := NewMock().GetImage(context.Background(), "../etc/passwd"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func newStorage(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/images/list", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("student_id") != "12" {
			http.Error(w, "bad student", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"image_path":"/s/12/a.png","thumbnail_path":"/s/12/a_t.png","card_id":3,"created_at":"2026-03-01T00:00:00Z"}]`))
	})
	mux.HandleFunc("/api/images/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/images/students/12/a.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNG"))
	})
	mux.HandleFunc("/api/metadata/3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"card_id":3,"prompt":"p","model":"m","dimensions":{"width":1,"height":2},"file_size_bytes":9,"generated_at":"now"}`))
	})
	mux.HandleFunc("/api/metadata/4", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientAgainstStorage(t *testing.T) {
	srv := newStorage(t)
	c, err := NewHTTPClient(srv.URL+"/", time.Second, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	entries, err := c.ListImages(ctx, 12)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []ImageEntry{{ImagePath: "/s/12/a.png", ThumbnailPath: "/s/12/a_t.png", CardID: 3, CreatedAt: "2026-03-01T00:00:00Z"}}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	body, contentType, err := c.GetImage(ctx, "/students/12/a.png")
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	if string(body) != "PNG" || contentType != "image/png" {
		t.Fatalf("unexpected image %q %q", body, contentType)
	}
	if _, _, err := c.GetImage(ctx, "students/12/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	md, err := c.GetMetadata(ctx, 3)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md.Dimensions.Height != 2 || md.Model != "m" {
		t.Fatalf("unexpected metadata: %+v", md)
	}
	if _, err := c.GetMetadata(ctx, 4); err == nil {
		t.Fatalf("expected upstream error")
	}
}

func TestNewHTTPClientRejectsBadURL(t *testing.T) {
	if _, err := NewHTTPClient("not a url", 0, 0, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for bad base url")
	}
}
