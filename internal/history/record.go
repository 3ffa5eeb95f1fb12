// Package history implements the append-only version log: a flat file of
// fixed-size records binding a filename, a content hash and a comment.
//
// On-disk record layout (RecordSize bytes, no header, no separators):
//
//	offset  width  field
//	0       4096   filename, UTF-8, NUL-padded
//	4096    64     hash, lowercase hex
//	4160    256    comment, UTF-8, NUL-padded
//
// The widths are the file format. Changing them needs a migration.
package history

import (
	"bytes"

	"github.com/javanhut/vers/internal/cas"
	"github.com/javanhut/vers/internal/verr"
)

// Field widths.
const (
	FilenameSize = 4096
	HashSize     = 2 * cas.HashSize
	CommentSize  = 256
	RecordSize   = FilenameSize + HashSize + CommentSize
)

const (
	hashOffset    = FilenameSize
	commentOffset = FilenameSize + HashSize
)

// Record is one entry of the version log.
type Record struct {
	Filename string
	Hash     cas.Hash
	Comment  string
}

// Validate rejects records that cannot be stored without losing data.
// Oversized fields are refused rather than truncated.
func (r Record) Validate() error {
	if r.Filename == "" {
		return verr.Errorf(verr.ErrInvalidInput, "validate", "", "empty filename")
	}
	if bytes.IndexByte([]byte(r.Filename), 0) >= 0 {
		return verr.Errorf(verr.ErrInvalidInput, "validate", r.Filename, "filename contains NUL byte")
	}
	if bytes.IndexByte([]byte(r.Comment), 0) >= 0 {
		return verr.Errorf(verr.ErrInvalidInput, "validate", r.Filename, "comment contains NUL byte")
	}
	if len(r.Filename) > FilenameSize {
		return verr.Errorf(verr.ErrValidation, "validate", "", "filename is %d bytes, limit %d", len(r.Filename), FilenameSize)
	}
	if len(r.Comment) > CommentSize {
		return verr.Errorf(verr.ErrValidation, "validate", r.Filename, "comment is %d bytes, limit %d", len(r.Comment), CommentSize)
	}
	if r.Hash.IsZero() {
		return verr.Errorf(verr.ErrInvalidInput, "validate", r.Filename, "zero hash")
	}
	return nil
}

// Encode returns the fixed-size on-disk form of r.
func (r Record) Encode() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, RecordSize)
	copy(buf, r.Filename)
	copy(buf[hashOffset:], r.Hash.String())
	copy(buf[commentOffset:], r.Comment)
	return buf, nil
}

// Decode parses one on-disk record. Anything that could not have been
// written by Encode is reported as corruption.
func Decode(buf []byte) (Record, error) {
	var r Record
	if len(buf) != RecordSize {
		return r, verr.Errorf(verr.ErrCorruption, "decode", "", "record is %d bytes, want %d", len(buf), RecordSize)
	}

	name, err := field(buf[:hashOffset])
	if err != nil {
		return r, verr.E(verr.ErrCorruption, "decode", "", err)
	}
	if name == "" {
		return r, verr.Errorf(verr.ErrCorruption, "decode", "", "empty filename")
	}

	h, err := cas.ParseHash(string(buf[hashOffset:commentOffset]))
	if err != nil {
		return r, verr.E(verr.ErrCorruption, "decode", name, err)
	}

	comment, err := field(buf[commentOffset:])
	if err != nil {
		return r, verr.E(verr.ErrCorruption, "decode", name, err)
	}

	r.Filename = name
	r.Hash = h
	r.Comment = comment
	return r, nil
}

// field returns the NUL-terminated string at the start of b and checks
// that the padding after it is all NUL.
func field(b []byte) (string, error) {
	n := bytes.IndexByte(b, 0)
	if n < 0 {
		return string(b), nil
	}
	for i, c := range b[n:] {
		if c != 0 {
			return "", verr.Errorf(verr.ErrCorruption, "decode", "", "non-NUL byte in padding at offset %d", n+i)
		}
	}
	return string(b[:n]), nil
}
