package collector

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestStoreDeduplicates(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	page := "<html>challenge variant A</html>"

	path, written, err := s.Save(page, "https://t/showcaptcha", "marker:SmartCaptcha")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !written {
		t.Fatal("first save should write")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archived page missing: %v", err)
	}

	_, written, err = s.Save(page, "https://t/other", "marker:SmartCaptcha")
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if written {
		t.Error("identical page written twice")
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}

	_, written, _ = s.Save("<html>challenge variant B</html>", "https://t", "r")
	if !written {
		t.Error("distinct page not written")
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}
}

func TestStoreIndexesExistingPages(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	page := "<html>already archived</html>"
	if _, _, err := s.Save(page, "https://t", "r"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store over the same directory must not re-save.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Count() != 1 {
		t.Fatalf("reopened Count = %d, want 1", reopened.Count())
	}
	if _, written, _ := reopened.Save(page, "https://t", "r"); written {
		t.Error("page re-saved after reopen")
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var attempts atomic.Int64
	r := NewRunner(s, []string{"q1", "q2"}, 3, time.Millisecond, 2*time.Millisecond,
		func(ctx context.Context, query string) error {
			attempts.Add(1)
			if query == "" {
				return errors.New("empty query")
			}
			return nil
		})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	if attempts.Load() == 0 {
		t.Error("runner made no attempts")
	}
}
