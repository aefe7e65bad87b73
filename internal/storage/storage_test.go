package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelsight/internal/storage"
)

func newStore(t *testing.T) *storage.LocalFS {
	t.Helper()
	store, err := storage.NewLocalFS(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	return store
}

func TestLocalFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	key := storage.StageKey("ws-1", "extraction")
	if err := store.Write(ctx, key, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ok, err := store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	data, err := store.Read(ctx, key)
	if err != nil || string(data) != `{"ok":true}` {
		t.Fatalf("Read = %q, %v", data, err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, err := store.Read(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Root, "work")); !os.IsNotExist(err) {
		t.Fatalf("expected empty workspace dirs to be pruned, stat err=%v", err)
	}
}

func TestLocalFSRejectsEscapingKeys(t *testing.T) {
	store := newStore(t)
	for _, key := range []string{"", "../outside", "work/../../etc/passwd"} {
		if err := store.Write(context.Background(), key, []byte("x")); !errors.Is(err, storage.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestLocalFSPutAndPath(t *testing.T) {
	store := newStore(t)
	key := storage.UploadKey("job-1", "../../clip.mp4")
	if key != "uploads/job-1/clip.mp4" {
		t.Fatalf("unexpected upload key %q", key)
	}
	n, err := store.Put(context.Background(), key, strings.NewReader("media-bytes"))
	if err != nil || n != int64(len("media-bytes")) {
		t.Fatalf("Put = %d, %v", n, err)
	}
	p, err := store.Path(key)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	data, err := os.ReadFile(p)
	if err != nil || string(data) != "media-bytes" {
		t.Fatalf("file contents = %q, %v", data, err)
	}
}

func TestListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for i := 0; i < 3; i++ {
		if err := store.Write(ctx, storage.FrameKey("ws", i), []byte("jpg")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := store.Write(ctx, storage.ResultKey("job-1"), []byte("{}")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	keys, err := store.List(ctx, storage.WorkspacePrefix("ws"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"work/ws/frames/00000.jpg", "work/ws/frames/00001.jpg", "work/ws/frames/00002.jpg"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("List = %v, want %v", keys, want)
	}

	removed, err := storage.DeletePrefix(ctx, store, storage.WorkspacePrefix("ws"))
	if err != nil || removed != 3 {
		t.Fatalf("DeletePrefix = %d, %v", removed, err)
	}
	if ok, _ := store.Exists(ctx, storage.ResultKey("job-1")); !ok {
		t.Fatal("result outside prefix should survive")
	}
}

func TestCountOwnedResults(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	docs := map[string]string{
		"a": `{"jobId":"a","owner":"alice"}`,
		"b": `{"jobId":"b","owner":"bob"}`,
		"c": `{"jobId":"c","owner":"alice"}`,
		"d": `not json`,
	}
	for id, body := range docs {
		if err := store.Write(ctx, storage.ResultKey(id), []byte(body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	got, err := storage.CountOwnedResults(ctx, store, "alice")
	if err != nil {
		t.Fatalf("CountOwnedResults: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 results for alice, got %d", got)
	}
	if got, _ := storage.CountOwnedResults(ctx, store, "carol"); got != 0 {
		t.Fatalf("expected 0 for carol, got %d", got)
	}
}
