// Package worker runs the indexing operations over one attached file:
// full and partial index builds and the on-disk change check. Exactly one
// operation is in flight at a time; the pipeline inside an operation is
// a reader goroutine feeding a parse loop over a bounded channel.
package worker

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"linedex/internal/charset"
	"linedex/internal/common"
	"linedex/internal/index"
)

// Outcome is the terminal state of an indexing operation.
type Outcome int

const (
	Successful Outcome = iota
	Interrupted
)

func (o Outcome) String() string {
	if o == Successful {
		return "successful"
	}
	return "interrupted"
}

// FileStatus classifies what happened to the file on disk since it was
// last indexed.
type FileStatus int

const (
	Unchanged FileStatus = iota
	DataAdded
	// Truncated also covers in-place modification: either way the
	// existing index can no longer be trusted.
	Truncated
)

func (s FileStatus) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case DataAdded:
		return "data added"
	default:
		return "truncated"
	}
}

// Events carries the notifications the engine emits. Nil callbacks are
// skipped. Callbacks run on the operation goroutine: they may call
// Interrupt but must not call the Worker's scheduling methods, which
// wait for the running operation.
type Events struct {
	// Progress receives percent values, non-decreasing within one operation.
	Progress func(percent int)
	// IndexingFinished fires at the end of a full or partial index build.
	IndexingFinished func(Outcome)
	// CheckFinished fires with the verdict of a change check.
	CheckFinished func(FileStatus)
	// Issue receives reports of fatal conditions that cleared the index.
	Issue func(message string)
}

func (e Events) progress(p int) {
	if e.Progress != nil {
		e.Progress(p)
	}
}

func (e Events) indexingFinished(o Outcome) {
	if e.IndexingFinished != nil {
		e.IndexingFinished(o)
	}
}

func (e Events) checkFinished(s FileStatus) {
	if e.CheckFinished != nil {
		e.CheckFinished(s)
	}
}

func (e Events) issue(msg string) {
	if e.Issue != nil {
		e.Issue(msg)
	}
}

// token is the cooperative cancellation flag shared by the goroutines of
// one operation. It is polled at block boundaries, never forced.
type token struct {
	flag atomic.Bool
}

func (t *token) Set()        { t.flag.Store(true) }
func (t *token) Clear()      { t.flag.Store(false) }
func (t *token) IsSet() bool { return t.flag.Load() }

const (
	DefaultBlockSize = 1024 * 1024
	DefaultPrefetch  = 16
)

// Settings are the read-only configuration values the engine consults:
// the block size of reads and digest windows, and how many blocks the
// reader may run ahead of the parser.
type Settings struct {
	BlockSize int
	Prefetch  int
}

func (s Settings) normalized() Settings {
	if s.BlockSize <= 0 {
		s.BlockSize = DefaultBlockSize
	}
	if s.Prefetch <= 0 {
		s.Prefetch = DefaultPrefetch
	}
	return s
}

// Worker serializes operations over one attached file. Requesting an
// operation waits for the previous one to fully stop (honoring a
// just-issued interrupt) and re-arms the interrupt token before starting;
// concurrent mutation of the store is never possible.
type Worker struct {
	fileName string
	store    *index.Store
	settings Settings
	events   Events
	logger   *zap.Logger
	pool     *common.BlockPool

	mu        sync.Mutex // serializes operation submission
	running   sync.WaitGroup
	interrupt token
}

// NewWorker attaches to fileName. The store keeps the index across
// operations; the file itself is opened anew by each operation.
func NewWorker(fileName string, store *index.Store, settings Settings, events Events, logger *zap.Logger) *Worker {
	settings = settings.normalized()
	return &Worker{
		fileName: fileName,
		store:    store,
		settings: settings,
		events:   events,
		logger:   logger.With(zap.String("file", fileName)),
		pool:     common.NewBlockPool(settings.BlockSize),
	}
}

// FileName reports the attached file path.
func (w *Worker) FileName() string { return w.fileName }

// Store exposes the shared index for read-only collaborators.
func (w *Worker) Store() *index.Store { return w.store }

// IndexAll rebuilds the index from scratch, optionally forcing the text
// encoding (nil keeps automatic detection). It returns once the
// operation is scheduled; completion arrives via Events.IndexingFinished.
func (w *Worker) IndexAll(forced *charset.Encoding) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waitForDoneLocked()

	op := &fullIndexOperation{indexOperation: w.newOperation(), forced: forced}
	w.launch(func() {
		w.events.indexingFinished(op.Run())
	})
}

// IndexAdditionalLines extends the index over bytes appended since the
// last pass, without re-reading what is already indexed.
func (w *Worker) IndexAdditionalLines() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waitForDoneLocked()

	op := &partialIndexOperation{indexOperation: w.newOperation()}
	w.launch(func() {
		w.events.indexingFinished(op.Run())
	})
}

// CheckFileChanges compares the on-disk file against the indexed digest
// record. The verdict arrives via Events.CheckFinished.
func (w *Worker) CheckFileChanges() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waitForDoneLocked()

	op := &checkFileChangesOperation{indexOperation: w.newOperation()}
	w.launch(func() {
		w.events.checkFinished(op.Run())
	})
}

// Interrupt asks the in-flight operation to stop at the next block
// boundary. The operation terminates as Interrupted and clears the
// index: an interrupted index is no index.
func (w *Worker) Interrupt() {
	w.logger.Info("indexing interrupt requested")
	w.interrupt.Set()
}

// WaitForDone blocks until the engine is idle.
func (w *Worker) WaitForDone() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running.Wait()
}

// Close interrupts any in-flight operation and waits for it to stop.
func (w *Worker) Close() {
	w.interrupt.Set()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running.Wait()
}

// waitForDoneLocked lets the previous operation run to its clean stopping
// point, then re-arms the interrupt token for the next one.
func (w *Worker) waitForDoneLocked() {
	w.running.Wait()
	w.interrupt.Clear()
}

func (w *Worker) launch(run func()) {
	w.running.Add(1)
	go func() {
		defer w.running.Done()
		run()
	}()
}

func (w *Worker) newOperation() indexOperation {
	return indexOperation{
		fileName:  w.fileName,
		store:     w.store,
		settings:  w.settings,
		interrupt: &w.interrupt,
		events:    w.events,
		logger:    w.logger,
		pool:      w.pool,
	}
}
