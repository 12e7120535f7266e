package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"syncqueue/internal/logs"
)

func TestTailLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncqueue.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var got []string
	err := logs.Tail(context.Background(), path, logs.TailOptions{Lines: 2}, func(line string) {
		got = append(got, line)
	})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("unexpected lines: %#v", got)
	}
}

func TestTailMissingFileIsEmpty(t *testing.T) {
	var got []string
	err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "missing.log"), logs.TailOptions{Lines: 5}, func(line string) {
		got = append(got, line)
	})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no lines, got %#v", got)
	}
}

func TestTailFollowEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncqueue.log")
	if err := os.WriteFile(path, []byte("start\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	var mu sync.Mutex
	var got []string
	started := make(chan struct{})
	later := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- logs.Tail(ctx, path, logs.TailOptions{Lines: 1, Follow: true, Poll: 10 * time.Millisecond}, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
			switch line {
			case "start":
				close(started)
			case "later":
				close(later)
			}
		})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial line")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	select {
	case <-later:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for appended line")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("follow tail error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "start" || got[1] != "later" {
		t.Fatalf("unexpected lines: %#v", got)
	}
}
