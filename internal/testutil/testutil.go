package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// BuildZip builds an in-memory ZIP archive from name -> content pairs,
// preserving the given entry order.
func BuildZip(entries []struct {
	Name    string
	Content []byte
}) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.Name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(e.Content); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildZipN builds an archive with n entries named file_<i>.txt, each
// holding a short payload so entry sizes are non-zero.
func BuildZipN(n int) ([]byte, error) {
	entries := make([]struct {
		Name    string
		Content []byte
	}, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, struct {
			Name    string
			Content []byte
		}{
			Name:    fmt.Sprintf("file_%04d.txt", i),
			Content: []byte(fmt.Sprintf("payload %d", i)),
		})
	}
	return BuildZip(entries)
}

// RangeHandler serves data honoring single-span Range requests the way a
// well-behaved origin does: 206 with the requested slice, 416 when the
// range is not satisfiable.
func RangeHandler(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			_, _ = w.Write(data)
			return
		}
		start, end, ok := parseRange(rng, int64(len(data)))
		if !ok {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		body := data[start : end+1]
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body)
	}
}

// IgnoreRangeHandler serves the full object regardless of any Range header,
// mimicking servers that do not support partial content.
func IgnoreRangeHandler(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	}
}

func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	if end >= size {
		end = size - 1
	}
	return start, end, true
}
