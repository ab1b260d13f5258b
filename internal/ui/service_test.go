package ui

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linedex/internal/common"
	"linedex/internal/watch"
	"linedex/internal/worker"
)

// startMonitor runs a monitor over the file until the test ends. Polling
// is tightened so the tests do not depend on OS notifications.
func startMonitor(t *testing.T, path string, cfg Config) *Monitor {
	t.Helper()

	m, err := NewMonitor(path, cfg, zap.NewNop())
	require.NoError(t, err)
	m.watcher = watch.New(path, 20*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("the monitor did not stop")
		}
	})

	return m
}

func waitForLines(t *testing.T, m *Monitor, n int) {
	t.Helper()
	require.Eventually(
		t,
		func() bool { return m.Status().Lines == n },
		3*time.Second,
		10*time.Millisecond,
	)
}

func TestMonitorIndexesOnStart(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\nbravo\n"))
	m := startMonitor(t, path, DefaultCfg)

	waitForLines(t, m, 2)

	lines, err := m.Lines(0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "bravo"}, lines)
}

func TestMonitorIndexesAppendedLines(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\nbravo\n"))
	m := startMonitor(t, path, DefaultCfg)
	waitForLines(t, m, 2)

	common.AppendToFile(t, path, []byte("charlie\n"))
	waitForLines(t, m, 3)

	lines, err := m.Lines(2, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"charlie"}, lines)
}

func TestMonitorRebuildsAfterTruncation(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\nbravo\ncharlie\n"))
	m := startMonitor(t, path, DefaultCfg)
	waitForLines(t, m, 3)

	common.TruncateFile(t, path, 6)
	waitForLines(t, m, 1)

	lines, err := m.Lines(0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha"}, lines)
}

func TestSchedulingSurvivesUndrainedEvents(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\nbravo\n"))

	m, err := NewMonitor(path, DefaultCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(m.worker.Close)

	// a stale terminal event nobody consumed must not wedge the worker:
	// the completion callback of the running operation sends without
	// blocking, so a later scheduling call can still wait it out
	m.outcomes <- worker.Successful
	m.worker.IndexAll(nil)

	returned := make(chan struct{})
	go func() {
		m.worker.CheckFileChanges()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduling blocked behind an undrained completion event")
	}
	m.worker.WaitForDone()
}

func TestHTTPStatusAndLines(t *testing.T) {
	path := common.MakeTestFile(t, []byte("alpha\nbravo\n"))
	m := startMonitor(t, path, DefaultCfg)
	waitForLines(t, m, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app := newHTTPApp(ctx, m)

	resp, err := app.Test(httptest.NewRequest("GET", "/status", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Equal(t, path, st.File)
	require.Equal(t, 2, st.Lines)
	require.Equal(t, "UTF-8", st.Encoding)
	require.Equal(t, int64(12), st.IndexedSize)

	resp, err = app.Test(httptest.NewRequest("GET", "/lines?from=0&to=1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "alpha\nbravo", string(body))

	resp, err = app.Test(httptest.NewRequest("GET", "/lines?from=9", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
