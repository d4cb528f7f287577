package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatch(t *testing.T, w *Watcher) (cancel func(), done <-chan error) {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	ctx, cancelFn := context.WithCancel(logger.WithContext(context.Background()))

	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx) }()

	// give the watcher time to register its directories
	time.Sleep(100 * time.Millisecond)
	return cancelFn, errc
}

func TestWatchDebouncesBursts(t *testing.T) {
	root := t.TempDir()

	var runs atomic.Int32
	w := &Watcher{
		Roots:    []string{root},
		Debounce: 200 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	cancel, done := startWatch(t, w)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte{byte(i)}, 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "a burst triggers a single run")

	cancel()
	require.NoError(t, <-done)
}

func TestWatchFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()

	var runs atomic.Int32
	w := &Watcher{
		Roots:    []string{root},
		Debounce: 100 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	cancel, done := startWatch(t, w)
	defer func() {
		cancel()
		<-done
	}()

	sub := filepath.Join(root, "2023")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 20*time.Millisecond)

	// the new directory is now watched as well
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "img.jpg"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatchIgnore(t *testing.T) {
	root := t.TempDir()

	var runs atomic.Int32
	w := &Watcher{
		Roots:    []string{root},
		Debounce: 50 * time.Millisecond,
		Ignore: func(path string) bool {
			return filepath.Ext(path) == ".db"
		},
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}
	cancel, done := startWatch(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(root, "ingest.db"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestWatchNothingToWatch(t *testing.T) {
	w := &Watcher{
		Roots: []string{filepath.Join(t.TempDir(), "missing")},
		Run:   func(ctx context.Context) error { return nil },
	}
	logger := zerolog.New(zerolog.NewTestWriter(t))
	err := w.Watch(logger.WithContext(context.Background()))
	require.ErrorIs(t, err, ErrNothingToWatch)
}
