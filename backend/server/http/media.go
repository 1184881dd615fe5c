package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fredp03/watchtogether/backend/metrics"
)

// contentTypes maps container extensions to media types. Derived from the
// extension only, never sniffed.
var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".m4v":  "video/x-m4v",
}

// byteRange is a parsed single-range header. End == -1 means "to end of
// file".
type byteRange struct {
	start int64
	end   int64
}

// parseRangeHeader parses "bytes=start-end". Anything it cannot parse
// (multiple ranges, suffix ranges, garbage) reports ok=false and the caller
// falls back to a full 200 response rather than erroring.
func parseRangeHeader(header string) (byteRange, bool) {
	if header == "" {
		return byteRange{}, false
	}
	rangeSpec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(rangeSpec, ",") {
		return byteRange{}, false
	}
	startStr, endStr, found := strings.Cut(rangeSpec, "-")
	if !found || startStr == "" {
		return byteRange{}, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, false
	}
	if endStr == "" {
		return byteRange{start: start, end: -1}, true
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return byteRange{}, false
	}
	return byteRange{start: start, end: end}, true
}

func (srv *Server) streamMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := srv.catalog.ResolvePath(id)
	if err != nil {
		// Unknown id and traversal attempts look the same from outside.
		metrics.RangeRequests.WithLabelValues("404").Inc()
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		metrics.RangeRequests.WithLabelValues("404").Inc()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil || fi.IsDir() {
		metrics.RangeRequests.WithLabelValues("404").Inc()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	size := fi.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(path))

	rng, ok := parseRangeHeader(r.Header.Get("Range"))
	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		metrics.RangeRequests.WithLabelValues("200").Inc()
		w.WriteHeader(http.StatusOK)
		n, copyErr := io.Copy(w, f)
		metrics.BytesStreamed.Add(float64(n))
		if copyErr != nil {
			srv.logger.Debug().Err(copyErr).Str("id", id).Msg("stream aborted")
		}
		return
	}

	if rng.start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		metrics.RangeRequests.WithLabelValues("416").Inc()
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	end := rng.end
	if end < 0 || end >= size {
		end = size - 1
	}
	length := end - rng.start + 1

	if _, err = f.Seek(rng.start, io.SeekStart); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	metrics.RangeRequests.WithLabelValues("206").Inc()
	w.WriteHeader(http.StatusPartialContent)

	// io.CopyN streams through a fixed buffer, per-request memory stays
	// bounded no matter the span.
	n, copyErr := io.CopyN(w, f, length)
	metrics.BytesStreamed.Add(float64(n))
	if copyErr != nil {
		srv.logger.Debug().Err(copyErr).Str("id", id).Msg("range stream aborted")
	}
}

// serveCaptions returns the whole sidecar file, no range negotiation.
func (srv *Server) serveCaptions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := srv.catalog.ResolveCaptionsPath(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/vtt")
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err = io.Copy(w, f); err != nil {
		srv.logger.Debug().Err(err).Str("id", id).Msg("captions write failed")
	}
}

func contentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
