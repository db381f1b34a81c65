package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatcher_RelevantAndDirs(t *testing.T) {
	f := newFixture(t, nil)
	w := NewWatcher(f.rebuild, 0, nil)

	assert.True(t, w.Relevant(filepath.Join(f.dir, "records.json")))
	assert.True(t, w.Relevant(filepath.Join(f.dir, "docs", "new.jsonl")))
	assert.True(t, w.Relevant(filepath.Join(f.dir, "docs", "a", "b", "c.txt")))
	assert.False(t, w.Relevant(filepath.Join(f.dir, "docs", "image.png")))
	assert.False(t, w.Relevant(filepath.Join(f.dir, "index.gwix")))

	assert.ElementsMatch(t, []string{
		filepath.Join(f.dir, "docs"),
		filepath.Join(f.dir, "docs", "nested"),
		f.dir,
	}, w.Dirs())
}

func TestWatcher_DebouncedRebuild(t *testing.T) {
	f := newFixture(t, nil)
	reports := make(chan Report, 4)
	w := NewWatcher(f.rebuild, 100*time.Millisecond, func(r Report, err error) {
		if err == nil {
			reports <- r
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// fsnotify needs a moment to register the watches
	time.Sleep(200 * time.Millisecond)
	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(f.dir, "docs", "burst.txt"), "Water table declined in 2023. Recharge was below normal.")
	}

	select {
	case rep := <-reports:
		assert.Contains(t, rep.Files, filepath.Join(f.dir, "docs", "burst.txt"))
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after source change")
	}

	select {
	case <-reports:
		t.Fatal("burst of writes triggered more than one rebuild")
	case <-time.After(400 * time.Millisecond):
	}
}
