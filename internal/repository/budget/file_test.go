package budget

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(path)
	ctx := context.Background()

	want := domgov.State{TokensUsed: 1234, LastReset: "2024-06-30"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestFileStore_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(path)

	if err := s.Save(context.Background(), domgov.State{TokensUsed: 7, LastReset: "2024-01-01"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"tokens_used":7,"last_reset":"2024-01-01"}` {
		t.Errorf("file = %s", data)
	}
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "state.json"))
	ctx := context.Background()

	for i := range 3 {
		if err := s.Save(ctx, domgov.State{TokensUsed: int64(i), LastReset: "2024-01-01"}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the state file", len(entries))
	}
}

func TestFileStore_Missing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	_, err := s.Load(context.Background())
	if !errors.Is(err, domain.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	cases := map[string]string{
		"truncated":  `{"tokens_used":`,
		"bad date":   `{"tokens_used":5,"last_reset":"01/02/2024"}`,
		"negative":   `{"tokens_used":-1,"last_reset":"2024-01-01"}`,
		"wrong type": `{"tokens_used":"5","last_reset":"2024-01-01"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := NewFileStore(path).Load(context.Background())
			if !errors.Is(err, domain.ErrCorruptState) {
				t.Fatalf("expected ErrCorruptState, got %v", err)
			}
		})
	}
}

func TestFileStore_SaveCanceled(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Save(ctx, domgov.Fresh("2024-01-01")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileStore_Ping(t *testing.T) {
	dir := t.TempDir()
	if err := NewFileStore(filepath.Join(dir, "state.json")).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	notDir := filepath.Join(dir, "plain")
	if err := os.WriteFile(notDir, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := NewFileStore(filepath.Join(notDir, "state.json")).Ping(context.Background()); err == nil {
		t.Error("expected error when parent is a file")
	}
}

func TestFileStore_SyncsParentDirAfterRename(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "state.json"))

	orig := syncDir
	t.Cleanup(func() { syncDir = orig })
	var synced []string
	syncDir = func(d string) error {
		synced = append(synced, d)
		return orig(d)
	}

	if err := s.Save(context.Background(), domgov.State{TokensUsed: 1, LastReset: "2024-01-01"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(synced) != 1 || synced[0] != dir {
		t.Errorf("synced dirs = %v, want [%s]", synced, dir)
	}
}

func TestFileStore_DirSyncFailureSurfaced(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))

	orig := syncDir
	t.Cleanup(func() { syncDir = orig })
	syncDir = func(string) error { return errors.New("EIO") }

	if err := s.Save(context.Background(), domgov.State{TokensUsed: 1, LastReset: "2024-01-01"}); err == nil {
		t.Fatal("expected error when the directory cannot be synced")
	}
}
