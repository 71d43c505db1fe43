package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return storage
}

func readAll(t *testing.T, s ObjectStorage, objectPath string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), objectPath)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", objectPath, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read %s failed: %v", objectPath, err)
	}
	return string(b)
}

func TestLocalStorage_PutGetDelete(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	objectPath := "segment/COL/part-00000"
	if err := storage.Put(ctx, objectPath, strings.NewReader("hello world")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	if got := readAll(t, storage, objectPath); got != "hello world" {
		t.Errorf("content mismatch: got %q", got)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}

	// Deleting again is idempotent
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("second Delete should succeed, got %v", err)
	}
}

func TestLocalStorage_GetNotFound(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.Get(context.Background(), "nonexistent/object")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ExistsIgnoresDirectories(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.Put(ctx, "dir/obj", strings.NewReader("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	exists, err := storage.Exists(ctx, "dir")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("a directory is not an object")
	}
}

func TestLocalStorage_RenameReplacesDestination(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.Put(ctx, "base/COL.dict", strings.NewReader("old")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := storage.Put(ctx, "base/COL.dict.tmp-1", strings.NewReader("new")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := storage.Rename(ctx, "base/COL.dict.tmp-1", "base/COL.dict"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if got := readAll(t, storage, "base/COL.dict"); got != "new" {
		t.Errorf("got %q, want new", got)
	}
	exists, _ := storage.Exists(ctx, "base/COL.dict.tmp-1")
	if exists {
		t.Error("source should be gone after rename")
	}

	err := storage.Rename(ctx, "base/missing", "base/other")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, p := range []string{"base/COL/part-00001", "base/COL/part-00000", "base/OTHER/part-00000", "base/COL.dict"} {
		if err := storage.Put(ctx, p, bytes.NewReader([]byte(p))); err != nil {
			t.Fatalf("Put(%s) failed: %v", p, err)
		}
	}

	objects, err := storage.ListObjects(ctx, "base/COL")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	want := []string{"base/COL/part-00000", "base/COL/part-00001"}
	if len(objects) != len(want) {
		t.Fatalf("got %v, want %v", objects, want)
	}
	for i := range want {
		if objects[i] != want[i] {
			t.Errorf("objects[%d] = %q, want %q", i, objects[i], want[i])
		}
	}

	objects, err = storage.ListObjects(ctx, "missing")
	if err != nil {
		t.Fatalf("ListObjects on missing prefix failed: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected no objects, got %v", objects)
	}
}

func TestNew_SelectsImplementation(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Type: "local", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("New(local) failed: %v", err)
	}
	if _, ok := s.(*LocalStorage); !ok {
		t.Errorf("expected *LocalStorage, got %T", s)
	}

	if _, err := New(ctx, Config{Type: "s3"}); err == nil {
		t.Error("s3 without bucket should fail")
	}
	if _, err := New(ctx, Config{Type: "hdfs"}); err == nil {
		t.Error("unknown type should fail")
	}
}

func TestCopySource_EscapesSegments(t *testing.T) {
	got := copySource("bucket", "base/a b/COL.dict.tmp-1")
	want := "bucket/base/a%20b/COL.dict.tmp-1"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
