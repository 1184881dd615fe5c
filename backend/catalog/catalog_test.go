package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "movie.mp4"), 1000)
	mustWrite(t, filepath.Join(root, "movie.vtt"), 40)
	mustWrite(t, filepath.Join(root, "notes.txt"), 10)
	if err := os.MkdirAll(filepath.Join(root, "series", "s01"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(root, "series", "s01", "e01.webm"), 500)
	return root
}

func mustWrite(t *testing.T, path string, size int) {
	t.Helper()
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestCatalog(t *testing.T, root string) *Catalog {
	t.Helper()
	logger := zerolog.Nop()
	c, err := New(Config{Logger: &logger, Root: root})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestScanFindsVideosOnly(t *testing.T) {
	c := newTestCatalog(t, newTestRoot(t))

	assets := c.Assets()
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(assets))
	}
	for _, a := range assets {
		if strings.HasSuffix(a.RelativePath, ".txt") || strings.HasSuffix(a.RelativePath, ".vtt") {
			t.Errorf("non-video file in catalog: %s", a.RelativePath)
		}
		if a.StreamURL != "/media/"+a.ID {
			t.Errorf("stream url mismatch for %s: %s", a.ID, a.StreamURL)
		}
	}
}

func TestScanAttachesCaptions(t *testing.T) {
	c := newTestCatalog(t, newTestRoot(t))

	var withCaptions, without int
	for _, a := range c.Assets() {
		if a.CaptionsURL != "" {
			withCaptions++
			if a.CaptionsURL != "/media/captions/"+a.ID {
				t.Errorf("captions url mismatch: %s", a.CaptionsURL)
			}
		} else {
			without++
		}
	}
	if withCaptions != 1 || without != 1 {
		t.Errorf("expected 1 asset with captions and 1 without, got %d/%d", withCaptions, without)
	}
}

func TestScanIdempotent(t *testing.T) {
	c := newTestCatalog(t, newTestRoot(t))

	first := c.Assets()
	second := c.Scan()
	if len(first) != len(second) {
		t.Fatalf("scan count changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("id changed at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
		if first[i].RelativePath != second[i].RelativePath {
			t.Errorf("order changed at %d", i)
		}
	}
}

func TestIDRoundTrip(t *testing.T) {
	rel := "series/s01/e01.webm"
	got, err := DecodeID(EncodeID(rel))
	if err != nil {
		t.Fatalf("DecodeID failed: %v", err)
	}
	if got != rel {
		t.Errorf("round trip mismatch: %s", got)
	}
}

func TestDecodeIDRejectsEscapes(t *testing.T) {
	for _, rel := range []string{"../etc/passwd", "/etc/passwd", "a/../../b.mp4", ""} {
		if _, err := DecodeID(EncodeID(rel)); err == nil {
			t.Errorf("expected escape rejection for %q", rel)
		}
	}
	if _, err := DecodeID("!!not-base64!!"); err == nil {
		t.Error("expected error for undecodable id")
	}
}

func TestResolvePath(t *testing.T) {
	root := newTestRoot(t)
	c := newTestCatalog(t, root)

	assets := c.Assets()
	path, err := c.ResolvePath(assets[0].ID)
	if err != nil {
		t.Fatalf("ResolvePath failed: %v", err)
	}
	if !strings.HasPrefix(path, root) {
		t.Errorf("resolved path outside root: %s", path)
	}

	if _, err = c.ResolvePath(EncodeID("missing.mp4")); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("expected ErrAssetNotFound, got %v", err)
	}
	if _, err = c.ResolvePath(EncodeID("../movie.mp4")); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("traversal attempt should be ErrAssetNotFound, got %v", err)
	}
}

func TestResolveCaptionsPath(t *testing.T) {
	c := newTestCatalog(t, newTestRoot(t))

	for _, a := range c.Assets() {
		path, err := c.ResolveCaptionsPath(a.ID)
		if a.CaptionsURL != "" {
			if err != nil {
				t.Errorf("captions resolve failed for %s: %v", a.RelativePath, err)
			} else if !strings.HasSuffix(path, ".vtt") {
				t.Errorf("unexpected captions path %s", path)
			}
		} else if !errors.Is(err, ErrAssetNotFound) {
			t.Errorf("expected ErrAssetNotFound for %s, got %v", a.RelativePath, err)
		}
	}
}

func TestNewUnreadableRoot(t *testing.T) {
	logger := zerolog.Nop()
	_, err := New(Config{Logger: &logger, Root: filepath.Join(t.TempDir(), "does-not-exist")})
	if !errors.Is(err, ErrRootUnreadable) {
		t.Errorf("expected ErrRootUnreadable, got %v", err)
	}
}
