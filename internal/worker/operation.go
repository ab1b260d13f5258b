package worker

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"linedex/internal/charset"
	"linedex/internal/common"
	"linedex/internal/index"
	"linedex/internal/scanner"
)

// blockRecord is one unit travelling through the pipeline. A negative
// offset marks the terminal sentinel: the reader sends it whatever path
// ended the read loop.
type blockRecord struct {
	offset int64
	data   []byte
}

// indexOperation carries the pieces shared by all operations of one
// worker. Each operation runs alone on its own goroutine.
type indexOperation struct {
	fileName  string
	store     *index.Store
	settings  Settings
	interrupt *token
	events    Events
	logger    *zap.Logger
	pool      *common.BlockPool
}

type fullIndexOperation struct {
	indexOperation
	forced *charset.Encoding
}

func (op *fullIndexOperation) Run() Outcome {
	op.logger.Info("full indexing started")
	op.events.progress(0)

	op.store.Mutate(func(mut *index.Mut) {
		mut.Clear()
		mut.ForceEncoding(op.forced)
	})

	op.doIndex(0)

	outcome := Successful
	if op.interrupt.IsSet() {
		outcome = Interrupted
	}
	op.logger.Info("full indexing finished", zap.Stringer("outcome", outcome))
	return outcome
}

type partialIndexOperation struct {
	indexOperation
}

func (op *partialIndexOperation) Run() Outcome {
	initialPosition := op.store.Snapshot().IndexedSize()
	op.logger.Info("partial indexing started", zap.Int64("from", initialPosition))
	op.events.progress(0)

	op.doIndex(initialPosition)

	outcome := Successful
	if op.interrupt.IsSet() {
		outcome = Interrupted
	}
	op.logger.Info("partial indexing finished", zap.Stringer("outcome", outcome))
	return outcome
}

// doIndex runs the read-parse pipeline from initialPosition to the end
// of the file, then settles the index: the fabricated terminal line for
// an unterminated tail, header and tail digests, and the fatal-condition
// checks that clear the index.
func (op *indexOperation) doIndex(initialPosition int64) {
	started := time.Now()

	file, err := os.Open(op.fileName)
	if err != nil {
		// an unreadable file is indexed as an empty one
		op.logger.Warn("cannot open file", zap.Error(err))
		op.indexAsEmpty()
		return
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		op.logger.Warn("cannot stat file", zap.Error(err))
		op.indexAsEmpty()
		return
	}

	state := &scanner.State{Pos: initialPosition, FileSize: info.Size()}

	snapshot := op.store.Snapshot()
	state.Guess = snapshot.Guessed
	state.Codec = snapshot.Forced
	if state.Codec == nil {
		state.Codec = snapshot.Guessed
	}

	parser := scanner.NewParser(op.logger)

	var (
		endFilePos int64
		ioDuration time.Duration
	)
	blocks := make(chan blockRecord, op.settings.Prefetch)
	go func() {
		endFilePos, ioDuration = op.readFileInBlocks(file, initialPosition, blocks)
		close(blocks)
	}()

	for rec := range blocks {
		op.indexNextBlock(parser, state, rec)
		op.pool.Put(rec.data)
	}

	var tooLong, settled bool
	op.store.Mutate(func(mut *index.Mut) {
		if !op.interrupt.IsSet() && state.FileSize > state.Pos {
			op.logger.Warn("file has no final line feed, fabricating the final line")

			var fake index.LineBatch
			fake.Append(state.FileSize + 1)
			fake.MarkFakeFinalLF()
			mut.AddAll(nil, 0, fake, state.Guess)
		}

		op.recordDigests(file, endFilePos, mut)

		op.logger.Info("indexing pass done",
			zap.Duration("took", time.Since(started)),
			zap.Duration("io", ioDuration),
			zap.Int("lines", mut.LineCount()),
			zap.Int("max_length", mut.MaxLength()),
			zap.String("table_size", common.ReadableSize(mut.Allocated())))

		if op.interrupt.IsSet() {
			mut.Clear()
		}

		if mut.MaxLength() == math.MaxInt32 {
			tooLong = true
			mut.Clear()
		}

		if mut.GuessedEncoding() == nil {
			mut.SetGuessedEncoding(charset.Default())
		}

		// the parser position lags the file size when the tail has no
		// line feed; a surviving index is nevertheless complete
		if !op.interrupt.IsSet() && !tooLong && mut.Progress() != 100 {
			mut.SetProgress(100)
			settled = true
		}
	})

	if tooLong {
		op.events.issue("can't index file: some lines are too long")
	}
	if settled {
		op.events.progress(100)
	}
}

// indexAsEmpty records the index of an empty file, complete at 100
// percent. Used when the file cannot be read at all.
func (op *indexOperation) indexAsEmpty() {
	op.store.Mutate(func(mut *index.Mut) {
		mut.Clear()
		mut.SetGuessedEncoding(charset.Default())
		mut.SetProgress(100)
	})
	op.events.progress(100)
}

// readFileInBlocks feeds the parser with consecutive blocks until the
// end of the file, a read error or an interrupt. It reports the position
// it stopped at and the time spent in reads. The sentinel record is
// always sent.
func (op *indexOperation) readFileInBlocks(file *os.File, pos int64, blocks chan<- blockRecord) (int64, time.Duration) {
	op.logger.Debug("block reader started", zap.Int64("from", pos))

	var ioDuration time.Duration
	for !op.interrupt.IsSet() {
		buf := op.pool.Get()

		ioStart := time.Now()
		n, err := file.ReadAt(buf, pos)
		ioDuration += time.Since(ioStart)

		if n > 0 {
			blocks <- blockRecord{offset: pos, data: buf[:n]}
			pos += int64(n)
		} else {
			op.pool.Put(buf)
		}

		if err != nil {
			if err != io.EOF {
				op.logger.Error("block read failed", zap.Int64("offset", pos), zap.Error(err))
			}
			break
		}
	}

	blocks <- blockRecord{offset: -1}
	op.logger.Debug("block reader done", zap.Int64("pos", pos))
	return pos, ioDuration
}

// indexNextBlock parses one block and merges the result into the index
// under a single mutate scope. Progress is recorded when the percentage
// moves and emitted after the scope closes.
func (op *indexOperation) indexNextBlock(parser *scanner.Parser, state *scanner.State, rec blockRecord) {
	if rec.offset < 0 {
		return
	}

	progress := -1
	op.store.Mutate(func(mut *index.Mut) {
		op.guessEncoding(rec.data, state, mut)

		if len(rec.data) == 0 {
			mut.SetGuessedEncoding(state.Guess)
			return
		}

		batch := parser.ParseBlock(rec.offset, rec.data, state)

		maxLength := int(state.MaxLength)
		if state.MaxLength > math.MaxInt32 {
			op.logger.Error("too long lines", zap.Int64("length", state.MaxLength))
			maxLength = math.MaxInt32
		}

		mut.AddAll(rec.data, maxLength, batch, state.Guess)

		next := 100
		if state.FileSize > 0 {
			next = calculateProgress(state.Pos, state.FileSize)
		}
		if next != mut.Progress() {
			mut.SetProgress(next)
			op.logger.Info("indexing progress", zap.Int("percent", next), zap.Int64("indexed", state.Pos))
			progress = next
		}
	})

	if progress >= 0 {
		op.events.progress(progress)
	}
}

// guessEncoding settles the encoding state for the pass: detection runs
// on the first block only, the effective codec follows the forced
// encoding over the recorded guess over the fresh detection, and the
// line-feed geometry is refreshed for the parser.
func (op *indexOperation) guessEncoding(block []byte, state *scanner.State, mut *index.Mut) {
	if state.Guess == nil {
		state.Guess = charset.Detect(block)
		op.logger.Info("encoding guess", zap.Stringer("encoding", state.Guess))
	}

	if state.Codec == nil {
		state.Codec = mut.ForcedEncoding()
		if state.Codec == nil {
			state.Codec = mut.GuessedEncoding()
		}
		if state.Codec == nil {
			state.Codec = state.Guess
		}
	}

	state.Params = state.Codec.Params()
}

// recordDigests samples the first and the last block of the indexed
// extent. endFilePos is where the reader stopped: for a completed pass
// it equals the file size.
func (op *indexOperation) recordDigests(file *os.File, endFilePos int64, mut *index.Mut) {
	buf := op.pool.Get()
	defer op.pool.Put(buf)

	headerSize, err := file.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		op.logger.Error("header digest read failed", zap.Error(err))
		return
	}
	headerSum := xxhash.Sum64(buf[:headerSize])
	mut.SetHeaderDigest(headerSum, int64(headerSize))

	if endFilePos <= int64(len(buf)) {
		mut.SetTailDigest(headerSum, 0, int64(headerSize))
		return
	}

	tailOffset := endFilePos - int64(len(buf))
	tailSize, err := file.ReadAt(buf, tailOffset)
	if err != nil && err != io.EOF {
		op.logger.Error("tail digest read failed", zap.Error(err))
		return
	}
	mut.SetTailDigest(xxhash.Sum64(buf[:tailSize]), tailOffset, int64(tailSize))
}

func calculateProgress(pos, size int64) int {
	progress := int(pos * 100 / size)
	if progress > 100 {
		progress = 100
	}
	return progress
}
