package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldIgnore(t *testing.T) {
	patterns := []glob.Glob{glob.MustCompile("*.tmp")}

	assert.True(t, ShouldIgnore("/site/.hidden.md", nil))
	assert.True(t, ShouldIgnore("/site/#post.md#", nil))
	assert.True(t, ShouldIgnore("/site/post.md.swp", nil))
	assert.True(t, ShouldIgnore("/site/post.md~", nil))
	assert.True(t, ShouldIgnore("/site/.DS_Store", nil))
	assert.True(t, ShouldIgnore("/site/build.tmp", patterns))
	assert.False(t, ShouldIgnore("/site/post.md", patterns))
}

func TestStartWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "posts")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := StartWatcher(ctx, []string{"*.tmp"}, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "skip.tmp"), []byte("x"), 0o644))
	target := filepath.Join(sub, "hello.md")
	require.NoError(t, os.WriteFile(target, []byte("# hi"), 0o644))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case p := <-ch:
			require.NotEqual(t, filepath.Join(sub, "skip.tmp"), p)
			if p == target {
				cancel()
				for range ch {
				}
				return
			}
		case <-timeout:
			t.Fatal("no change reported")
		}
	}
}

func TestStartWatcherMissingFolder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := StartWatcher(ctx, nil, filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	cancel()
	for range ch {
	}
}

func TestDispatchRunsSequentiallyAndCoalesces(t *testing.T) {
	changes := make(chan string, 10)
	changes <- "a"
	changes <- "b"
	changes <- "a"
	changes <- "c"
	close(changes)

	var got []string
	Dispatch(context.Background(), changes, func(_ context.Context, p string) error {
		got = append(got, p)
		if p == "b" {
			return assert.AnError
		}
		return nil
	})

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDispatchStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan string)

	done := make(chan struct{})
	go func() {
		Dispatch(ctx, changes, func(context.Context, string) error { return nil })
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return")
	}
}
