package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestSafeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		nickname string
		want     string
		wantErr  bool
	}{
		{name: "plain", nickname: "rtx3080", want: "rtx3080"},
		{name: "mixed", nickname: "PS5 Disc Edition", want: "PS5_Disc_Edition"},
		{name: "traversal", nickname: "../../etc/passwd", want: "_.._etc_passwd"},
		{name: "leading dots", nickname: "..hidden", want: "hidden"},
		{name: "separators only", nickname: "///", wantErr: true},
		{name: "dots only", nickname: "...", wantErr: true},
		{name: "empty", nickname: "", wantErr: true},
		{name: "unicode only", nickname: "商品ページ", wantErr: true},
		{name: "unicode mixed", nickname: "ps5-商品", want: "ps5-__"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := SafeName(tc.nickname)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tc.nickname, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("SafeName(%q) = %q, want %q", tc.nickname, got, tc.want)
			}
			if strings.ContainsAny(got, "/\\") {
				t.Fatalf("sanitized name contains a separator: %q", got)
			}
		})
	}
}

func TestStoreSaveWritesInsideDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	path, err := store.SaveHTML(context.Background(), "widget", []byte("<html/>"))
	if err != nil {
		t.Fatalf("save html: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("artifact escaped the store directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "<html/>" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestStoreRejectsUnusableNickname(t *testing.T) {
	t.Parallel()

	store, err := NewStore(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.SavePNG(context.Background(), "...", []byte{1}); err == nil {
		t.Fatal("expected unusable nickname to be rejected")
	}
}

func TestStoreCreatesDirIfAbsent(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	if _, err := NewStore(Config{Dir: dir}); err != nil {
		t.Fatalf("new store: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory to exist: %v", err)
	}

	// Creating a store over an existing directory is not an error.
	if _, err := NewStore(Config{Dir: dir}); err != nil {
		t.Fatalf("second store over same dir: %v", err)
	}
}

type recordingMirror struct {
	mu    sync.Mutex
	names []string
	fail  bool
}

func (m *recordingMirror) Put(_ context.Context, name, _ string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("mirror unavailable")
	}
	m.names = append(m.names, name)
	return nil
}

func TestStoreMirrorsArtifacts(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{}
	store, err := NewStore(Config{Dir: t.TempDir(), Mirror: mirror})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.SavePNG(context.Background(), "shot", []byte{0x89}); err != nil {
		t.Fatalf("save png: %v", err)
	}
	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.names) != 1 || mirror.names[0] != "shot.png" {
		t.Fatalf("unexpected mirrored names %v", mirror.names)
	}
}

func TestStoreMirrorFailureDoesNotFailSave(t *testing.T) {
	t.Parallel()

	store, err := NewStore(Config{Dir: t.TempDir(), Mirror: &recordingMirror{fail: true}})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.SaveHTML(context.Background(), "page", []byte("x")); err != nil {
		t.Fatalf("mirror failure must not escalate: %v", err)
	}
}

func TestStoreConcurrentSavesWithDistinctNicknames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(Config{Dir: dir})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	var wg sync.WaitGroup
	names := []string{"alpha", "beta", "gamma", "delta"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := store.SaveHTML(context.Background(), name, []byte(name)); err != nil {
				t.Errorf("save %s: %v", name, err)
			}
		}(name)
	}
	wg.Wait()

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name+".html"))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(data) != name {
			t.Fatalf("artifact %s corrupted: %q", name, data)
		}
	}
}
