package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/bus"
)

func TestWatcherPublishesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	got := make(chan bus.Event, 4)
	sub := bus.Subscribe(bus.TopicConfigChanged, func(ev bus.Event) { got <- ev })
	defer bus.Unsubscribe(sub)

	w := NewWatcher(path)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Give the watch goroutine a moment to settle before the write
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"api_key":"x"}`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-got:
		notice, ok := ev.Data.(ChangeNotice)
		if !ok {
			t.Fatalf("payload type %T", ev.Data)
		}
		if notice.Path != path {
			t.Errorf("path = %q, want %q", notice.Path, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change event within 3s")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	sibling := filepath.Join(dir, "other.json")
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	got := make(chan bus.Event, 4)
	sub := bus.Subscribe(bus.TopicConfigChanged, func(ev bus.Event) { got <- ev })
	defer bus.Unsubscribe(sub)

	w := NewWatcher(path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(sibling, []byte("{}"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-got:
		t.Errorf("unexpected event for sibling write: %+v", ev.Data)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherStopTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	w := NewWatcher(path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop() // must not panic
}

func TestWatcherStartTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	w := NewWatcher(path)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
}
