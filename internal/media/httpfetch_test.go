package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	data, ext, err := f.FetchMedia(context.Background(), models.Message{Media: srv.URL})
	if err != nil {
		t.Fatalf("FetchMedia failed: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("unexpected body %q", data)
	}
	if ext != ".png" {
		t.Errorf("unexpected extension %q", ext)
	}
}

func TestHTTPFetcherRejectsNonURL(t *testing.T) {
	f := NewHTTPFetcher()
	if _, _, err := f.FetchMedia(context.Background(), models.Message{Media: "image:abc"}); err == nil {
		t.Fatal("expected error for non-URL reference")
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	if _, _, err := f.FetchMedia(context.Background(), models.Message{Media: srv.URL}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
