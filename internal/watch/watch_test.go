package watch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linedex/internal/common"
)

func waitSignal(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Signals():
	case <-time.After(3 * time.Second):
		t.Fatal("no change signal arrived")
	}
}

func requireQuiet(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case <-w.Signals():
		t.Fatal("unexpected change signal")
	case <-time.After(d):
	}
}

func TestWatcherSignalsOnAppend(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\n"))

	w := New(path, 10*time.Millisecond, zap.NewNop())
	w.Start(context.Background())
	defer w.Close()

	requireQuiet(t, w, 50*time.Millisecond)

	common.AppendToFile(t, path, []byte("bravo\n"))
	waitSignal(t, w)
}

func TestWatcherSignalsOnTruncate(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\nbravo\n"))

	w := New(path, 10*time.Millisecond, zap.NewNop())
	w.Start(context.Background())
	defer w.Close()

	common.TruncateFile(t, path, 3)
	waitSignal(t, w)
}

func TestWatcherSignalsOnRemoveAndRecreate(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\n"))

	w := New(path, 10*time.Millisecond, zap.NewNop())
	w.Start(context.Background())
	defer w.Close()

	require.NoError(t, os.Remove(path))
	waitSignal(t, w)

	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o666))
	waitSignal(t, w)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\n"))

	w := New(path, 10*time.Millisecond, zap.NewNop())
	w.Start(context.Background())
	defer w.Close()

	for i := 0; i < 10; i++ {
		common.AppendToFile(t, path, []byte("line\n"))
	}
	waitSignal(t, w)
}

func TestWatcherCloseStopsPolling(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\n"))

	w := New(path, time.Millisecond, zap.NewNop())
	w.Start(context.Background())
	w.Close()

	// Close joins the poll loop: a change after it may not signal
	common.AppendToFile(t, path, []byte("bravo\n"))
	requireQuiet(t, w, 50*time.Millisecond)
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\n"))

	ctx, cancel := context.WithCancel(context.Background())
	w := New(path, 10*time.Millisecond, zap.NewNop())
	w.Start(ctx)

	cancel()
	w.Close()
}
