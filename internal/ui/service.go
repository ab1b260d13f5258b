package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"linedex/internal/charset"
	"linedex/internal/fetch"
	"linedex/internal/index"
	"linedex/internal/watch"
	"linedex/internal/worker"
)

// Monitor keeps one file's index in sync with the file on disk. Watch
// signals become check operations and check verdicts become indexing
// operations: added data is indexed incrementally, any other change
// rebuilds the index from scratch.
type Monitor struct {
	file   string
	cfg    Config
	logger *zap.Logger

	store   *index.Store
	worker  *worker.Worker
	watcher *watch.Watcher
	forced  *charset.Encoding

	// every scheduled operation emits exactly one terminal event and the
	// loop consumes it before scheduling the next one, so a buffer of one
	// always has room; the callbacks still send without blocking to cover
	// receives abandoned at shutdown
	checks   chan worker.FileStatus
	outcomes chan worker.Outcome
}

func NewMonitor(file string, cfg Config, logger *zap.Logger) (*Monitor, error) {
	forced, err := forcedEncoding(cfg.ForcedEncoding)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		file:     file,
		cfg:      cfg,
		logger:   logger.With(zap.String("file", file)),
		forced:   forced,
		checks:   make(chan worker.FileStatus, 1),
		outcomes: make(chan worker.Outcome, 1),
	}
	m.store = index.NewStore(func() bool { return cfg.FastModificationDetection })
	m.worker = worker.NewWorker(
		file,
		m.store,
		worker.Settings{BlockSize: cfg.IndexBlockSizeBytes, Prefetch: cfg.PrefetchBlockCount},
		worker.Events{
			IndexingFinished: func(o worker.Outcome) {
				select {
				case m.outcomes <- o:
				default:
				}
			},
			CheckFinished: func(s worker.FileStatus) {
				select {
				case m.checks <- s:
				default:
				}
			},
			Issue: func(msg string) { m.logger.Warn("indexing issue", zap.String("issue", msg)) },
		},
		logger,
	)
	m.watcher = watch.New(file, time.Duration(cfg.PollIntervalSeconds)*time.Second, logger)

	return m, nil
}

// Run indexes the file and then reacts to its changes until ctx ends.
// The HTTP status API is served when the config names a listen address.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	m.watcher.Start(ctx)
	m.worker.IndexAll(m.forced)

	g.Go(func() error { return m.loop(ctx) })
	g.Go(func() error {
		// a long indexing pass must not stall shutdown
		<-ctx.Done()
		m.worker.Interrupt()
		return nil
	})
	if m.cfg.ListenAddr != "" {
		app := newHTTPApp(ctx, m)
		g.Go(func() error { return app.Listen(m.cfg.ListenAddr) })
	}

	err := g.Wait()
	m.watcher.Close()
	m.worker.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop reacts to file changes until ctx ends. The worker's scheduling
// methods block until the previous operation has fully stopped, which
// includes its completion callback: the loop therefore awaits the
// terminal event of everything it schedules before scheduling again and
// never holds an unconsumed event across a scheduling call.
func (m *Monitor) loop(ctx context.Context) error {
	// the initial build scheduled by Run
	if outcome, ok := m.awaitOutcome(ctx); ok {
		m.logger.Info("indexing finished", zap.Stringer("outcome", outcome))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.watcher.Signals():
			m.logger.Debug("file change signal")
			m.worker.CheckFileChanges()

			var status worker.FileStatus
			select {
			case <-ctx.Done():
				return ctx.Err()
			case status = <-m.checks:
			}
			m.logger.Info("file check finished", zap.Stringer("status", status))

			switch status {
			case worker.DataAdded:
				m.worker.IndexAdditionalLines()
			case worker.Truncated:
				m.worker.IndexAll(m.forced)
			default:
				continue
			}

			if outcome, ok := m.awaitOutcome(ctx); ok {
				m.logger.Info("indexing finished", zap.Stringer("outcome", outcome))
			}
		}
	}
}

func (m *Monitor) awaitOutcome(ctx context.Context) (worker.Outcome, bool) {
	select {
	case <-ctx.Done():
		return worker.Interrupted, false
	case o := <-m.outcomes:
		return o, true
	}
}

// Lines reads the decoded text of the inclusive line range. A negative
// last means up to the final indexed line. The file mapping is opened
// per call so lines appended since the last call are visible.
func (m *Monitor) Lines(first, last int) ([]string, error) {
	sn := m.store.Snapshot()
	if last < 0 || last >= sn.Lines {
		last = sn.Lines - 1
	}
	if first < 0 || first > last {
		return nil, fmt.Errorf("lines %d..%d of %d: %w", first, last, sn.Lines, index.ErrLineOutOfRange)
	}

	r, err := fetch.Open(m.file, m.store)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.Lines(first, last-first+1)
}
