package util

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standard.json")

	if err := WriteFileAtomic(path, []byte(`{"v":1}`), 0600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"v":2}`), 0600); err != nil {
		t.Fatalf("second WriteFileAtomic failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"v":2}` {
		t.Errorf("content = %q, want %q", got, `{"v":2}`)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "file.json")
	if err := WriteFileAtomic(path, []byte("x"), 0644); err == nil {
		t.Error("expected error when parent directory is missing")
	}
}

func TestWriteFileAtomic_ReadersNeverSeePartialContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.json")
	payloads := [][]byte{
		bytes.Repeat([]byte("a"), 64*1024),
		bytes.Repeat([]byte("b"), 64*1024),
	}
	if err := WriteFileAtomic(path, payloads[0], 0644); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := WriteFileAtomic(path, payloads[i%2], 0644); err != nil {
				t.Errorf("write %d failed: %v", i, err)
				return
			}
		}
	}()

	errs := make(chan error, 1)
	go func() {
		for i := 0; i < 500; i++ {
			data, err := os.ReadFile(path)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(data, payloads[0]) && !bytes.Equal(data, payloads[1]) {
				errs <- fmt.Errorf("read %d bytes of mixed or partial content", len(data))
				return
			}
		}
		errs <- nil
	}()

	if err := <-errs; err != nil {
		t.Error(err)
	}
	wg.Wait()
}

func TestTempPattern(t *testing.T) {
	pattern := TempPattern("/srv/auth/standard.json")
	if pattern != ".standard.json.tmp-*" {
		t.Errorf("TempPattern() = %q", pattern)
	}
	if filepath.Ext(strings.ReplaceAll(pattern, "*", "123")) == ".json" {
		t.Error("temp files must not carry the target extension")
	}
}
