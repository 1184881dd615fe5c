package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fredp03/watchtogether/backend/catalog"
	"github.com/fredp03/watchtogether/backend/model"
)

type fakeRooms struct {
	rooms map[string]*model.Room
}

func (f *fakeRooms) GetRoom(roomID string) (*model.Room, error) {
	room, ok := f.rooms[roomID]
	if !ok {
		return nil, errors.New("room is not found")
	}
	return room, nil
}

// newTestServer builds a server over a root containing movie.mp4 (1000
// bytes, byte i == i%256) with a movie.vtt sidecar.
func newTestServer(t *testing.T) (*Server, []byte) {
	t.Helper()
	root := t.TempDir()

	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i % 256)
	}
	if err := os.WriteFile(filepath.Join(root, "movie.mp4"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	vtt := []byte("WEBVTT\n\n00:00.000 --> 00:01.000\nhi\n")
	if err := os.WriteFile(filepath.Join(root, "movie.vtt"), vtt, 0o644); err != nil {
		t.Fatal(err)
	}

	logger := zerolog.Nop()
	cat, err := catalog.New(catalog.Config{Logger: &logger, Root: root})
	if err != nil {
		t.Fatalf("catalog.New failed: %v", err)
	}
	srv := NewServer(Config{
		Logger:  &logger,
		Catalog: cat,
		RoomService: &fakeRooms{rooms: map[string]*model.Room{
			"room-a": {ID: "room-a", Members: map[string]model.Member{"c1": {ID: "c1"}}},
		}},
		ListenAddr: ":0",
	})
	return srv, content
}

func doRequest(srv *Server, method, target, rangeHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func assetID() string {
	return catalog.EncodeID("movie.mp4")
}

func TestListVideos(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/videos", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var assets []model.VideoAsset
	if err := json.Unmarshal(rec.Body.Bytes(), &assets); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	if assets[0].Name != "movie" {
		t.Errorf("unexpected name %q", assets[0].Name)
	}
	if assets[0].CaptionsURL == "" {
		t.Error("captions url missing")
	}
}

func TestFullContent(t *testing.T) {
	srv, content := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/"+assetID(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Errorf("Content-Type = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Error("body differs from file content")
	}
}

func TestRangeFirstHundredBytes(t *testing.T) {
	srv, content := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/"+assetID(), "bytes=0-99")
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-99/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	body := rec.Body.Bytes()
	if len(body) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(body))
	}
	if !bytes.Equal(body, content[:100]) {
		t.Error("body differs from first 100 bytes of file")
	}
}

func TestRangeOpenEnded(t *testing.T) {
	srv, content := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/"+assetID(), "bytes=900-")
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 900-999/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), content[900:]) {
		t.Error("body differs from file tail")
	}
}

func TestRangeUnsatisfiable(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/"+assetID(), "bytes=2000-")
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */1000" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestRangeEndClampedToSize(t *testing.T) {
	srv, content := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/"+assetID(), "bytes=990-5000")
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 990-999/1000" {
		t.Errorf("Content-Range = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), content[990:]) {
		t.Error("body differs from file tail")
	}
}

func TestMalformedRangeFallsBackToFull(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, header := range []string{
		"bytes=abc-def",
		"bytes=-",
		"bytes=100-50",
		"bytes=0-49,100-149",
		"items=0-99",
		"bytes=-500",
	} {
		rec := doRequest(srv, http.MethodGet, "/media/"+assetID(), header)
		if rec.Code != http.StatusOK {
			t.Errorf("header %q: expected 200 fallback, got %d", header, rec.Code)
		}
		if rec.Body.Len() != 1000 {
			t.Errorf("header %q: expected full body, got %d bytes", header, rec.Body.Len())
		}
	}
}

func TestUnknownAssetIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/"+catalog.EncodeID("nope.mp4"), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestTraversalAttemptIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/"+catalog.EncodeID("../movie.mp4"), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("/")) {
		t.Error("404 body must not disclose paths")
	}
}

func TestCaptions(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/media/captions/"+assetID(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/vtt" {
		t.Errorf("Content-Type = %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("WEBVTT")) {
		t.Error("unexpected captions body")
	}
}

func TestRoomPresence(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/rooms/room-a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp GenericResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}

	rec = doRequest(srv, http.MethodGet, "/rooms/room-z", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRescan(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/videos/rescan", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
