package zipmeta

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
)

// signature is the two-byte magic every ZIP object starts with.
var signature = []byte("PK")

// DecodeKind classifies why a buffer failed to decode as a ZIP structure.
type DecodeKind int

const (
	// KindBadMagic means the buffer does not start with the ZIP signature.
	KindBadMagic DecodeKind = iota
	// KindTruncated means the buffer lacks a complete central directory.
	// During probing this is the expected failure mode and only means the
	// window is not wide enough yet.
	KindTruncated
	// KindOther covers every remaining decode failure.
	KindOther
)

func (k DecodeKind) String() string {
	switch k {
	case KindBadMagic:
		return "bad magic"
	case KindTruncated:
		return "truncated central directory"
	default:
		return "decode failure"
	}
}

// DecodeError reports a failed structure decode with its classification.
type DecodeError struct {
	Kind DecodeKind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// retryable reports whether a decode failure should advance the probe loop
// quietly rather than being recorded.
func (e *DecodeError) retryable() bool {
	return e.Kind == KindBadMagic || e.Kind == KindTruncated
}

// Entry is one row of the archive listing: a path-like name and the entry's
// uncompressed size in bytes. Directory entries appear with size zero.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// decodeStructure decodes the ordered entry listing out of a buffer that is
// expected to end with a complete central directory. The buffer is typically
// the object's leading bytes glued to a trailing probe window, so entry
// contents are unreadable; only names and sizes from the central directory
// records are used.
func decodeStructure(data []byte) ([]Entry, *DecodeError) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if !bytes.HasPrefix(data, signature) {
			return nil, &DecodeError{Kind: KindBadMagic, Err: err}
		}
		if errors.Is(err, zip.ErrFormat) {
			return nil, &DecodeError{Kind: KindTruncated, Err: err}
		}
		return nil, &DecodeError{Kind: KindOther, Err: err}
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		entries = append(entries, Entry{
			Name: f.Name,
			Size: int64(f.UncompressedSize64),
		})
	}
	return entries, nil
}
