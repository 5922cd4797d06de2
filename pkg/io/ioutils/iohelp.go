package ioutils

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// OpenMaybeCompressed opens a file path or stdin ("-") and returns a reader.
// If the input appears to be gzip (by extension or magic), it wraps with gzip.
// A missing path is reported as *etl.SourceNotFoundError.
func OpenMaybeCompressed(path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		// sniff gzip from stdin
		br := bufio.NewReader(os.Stdin)
		b, err := br.Peek(2)
		if err == nil && isGzipMagic(b) {
			zr, err := gzip.NewReader(br)
			if err != nil {
				return nil, err
			}
			return zr, nil
		}
		return io.NopCloser(br), nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &etl.SourceNotFoundError{Location: path, Err: err}
		}
		return nil, err
	}
	br := bufio.NewReader(f)
	b, _ := br.Peek(2)
	if filepath.Ext(path) == ".gz" || isGzipMagic(b) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return readCloser{Reader: zr, closeFn: func() error { _ = zr.Close(); return f.Close() }}, nil
	}
	return readCloser{Reader: br, closeFn: f.Close}, nil
}

func isGzipMagic(b []byte) bool { return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b }

// Exists reports whether a regular path exists; "-" (stdin) always does.
func Exists(path string) bool {
	if path == "-" || path == "" {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

type readCloser struct {
	io.Reader
	closeFn func() error
}

func (r readCloser) Close() error {
	if r.closeFn != nil {
		return r.closeFn()
	}
	return errors.New("no closeFn")
}

// BatchFile appends encoded batches to a file one unit at a time. A failed
// Commit truncates the file back to the end of the last committed unit, so
// readers never see a partial batch. Paths ending in .gz get one gzip member
// per unit. "-" writes to stdout without truncation support.
type BatchFile struct {
	path      string
	f         file
	gz        bool
	stdout    bool
	committed int64
}

// file is the part of *os.File a BatchFile uses.
type file interface {
	io.Writer
	Truncate(size int64) error
	Sync() error
	Close() error
}

// CreateBatchFile creates parent directories and opens path for appending.
// Unless appendTo is set an existing file is truncated.
func CreateBatchFile(path string, appendTo bool) (*BatchFile, error) {
	if path == "-" || path == "" {
		return &BatchFile{path: "-", f: os.Stdout, stdout: true}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !appendTo {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &BatchFile{path: path, f: f, gz: filepath.Ext(path) == ".gz", committed: st.Size()}, nil
}

func (b *BatchFile) Path() string { return b.path }

// Committed is the byte offset after the last successful Commit.
func (b *BatchFile) Committed() int64 { return b.committed }

// Commit appends p as one unit.
func (b *BatchFile) Commit(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if b.gz {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(p); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		p = buf.Bytes()
	}
	n, err := b.f.Write(p)
	if err != nil {
		if b.stdout {
			return err
		}
		if terr := b.f.Truncate(b.committed); terr != nil {
			return fmt.Errorf("%w (truncate to %d: %v)", err, b.committed, terr)
		}
		return err
	}
	b.committed += int64(n)
	return nil
}

func (b *BatchFile) Close() error {
	if b.stdout {
		return nil
	}
	if err := b.f.Sync(); err != nil {
		_ = b.f.Close()
		return err
	}
	return b.f.Close()
}
