package ioutils

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/wdm0006/catalogetl/pkg/etl"
)

// shortFile writes only the first limit bytes of a Write, then fails.
type shortFile struct {
	*os.File
	limit int
}

var errDiskFull = errors.New("disk full")

func (s *shortFile) Write(p []byte) (int, error) {
	if len(p) <= s.limit {
		return s.File.Write(p)
	}
	n, _ := s.File.Write(p[:s.limit])
	return n, errDiskFull
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return st.Size()
}

func TestCommitFailureTruncatesPartialBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "titles.csv")
	bf, err := CreateBatchFile(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := bf.Commit([]byte("show_id,type\ns1,Movie\n")); err != nil {
		t.Fatal(err)
	}
	committed := bf.Committed()

	bf.f = &shortFile{File: bf.f.(*os.File), limit: 5}
	err = bf.Commit([]byte("s2,TV Show\ns3,Movie\n"))
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected the write error, got %v", err)
	}
	if bf.Committed() != committed {
		t.Fatalf("committed moved to %d", bf.Committed())
	}
	if got := fileSize(t, path); got != committed {
		t.Fatalf("file holds %d bytes, want %d", got, committed)
	}

	// the file stays usable after the rollback
	bf.f = bf.f.(*shortFile).File
	if err := bf.Commit([]byte("s4,Movie\n")); err != nil {
		t.Fatal(err)
	}
	if err := bf.Close(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "show_id,type\ns1,Movie\ns4,Movie\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestCommitAfterCloseLeavesCommittedBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.csv")
	bf, err := CreateBatchFile(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := bf.Commit([]byte("show_id\ns1\n")); err != nil {
		t.Fatal(err)
	}
	if err := bf.f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := bf.Commit([]byte("s2\n")); err == nil {
		t.Fatal("expected an error writing to a closed file")
	}
	if got := fileSize(t, path); got != bf.Committed() {
		t.Fatalf("file holds %d bytes, want %d", got, bf.Committed())
	}
}

func TestCreateBatchFileAppendKeepsOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.csv")
	if err := os.WriteFile(path, []byte("show_id\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bf, err := CreateBatchFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer bf.Close()
	if bf.Committed() != int64(len("show_id\n")) {
		t.Fatalf("committed = %d", bf.Committed())
	}
}

func TestCreateBatchFileUnderRegularFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateBatchFile(filepath.Join(blocker, "titles.csv"), false); err == nil {
		t.Fatal("expected an error creating a file below a regular file")
	}
}

func TestGzipCommitsAreMembers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "titles.csv.gz")
	bf, err := CreateBatchFile(path, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, unit := range []string{"show_id\n", "s1\n", "s2\n"} {
		if err := bf.Commit([]byte(unit)); err != nil {
			t.Fatal(err)
		}
	}
	if err := bf.Close(); err != nil {
		t.Fatal(err)
	}
	rc, err := OpenMaybeCompressed(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "show_id\ns1\ns2\n" {
		t.Fatalf("got %q", data)
	}

	raw, _ := os.ReadFile(path)
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	zr.Multistream(false)
	first, _ := io.ReadAll(zr)
	if string(first) != "show_id\n" {
		t.Fatalf("first member %q", first)
	}
}

func TestOpenMissingIsSourceNotFound(t *testing.T) {
	_, err := OpenMaybeCompressed(filepath.Join(t.TempDir(), "nope.csv"))
	var nf *etl.SourceNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected SourceNotFoundError, got %v", err)
	}
	if Exists(filepath.Join(t.TempDir(), "nope.csv")) {
		t.Fatal("Exists reported a missing file")
	}
}
