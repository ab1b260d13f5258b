// Package index holds the shared line index of an attached file: the
// line-position table, the expanded max line length, the detected
// encoding and the digest record used for change detection.
package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/xerrors"

	"linedex/internal/charset"
)

// ErrLineOutOfRange is returned for line numbers the index does not hold.
var ErrLineOutOfRange = xerrors.New("line number out of range")

// Store is the single mutable index structure shared between the
// indexing operation (exclusive mutator) and any collaborator reading
// the index. All access goes through the two scope-bounded modes:
// Snapshot/PosForLine for reads, Mutate for writes. Callers never hold
// store internals outside those scopes.
type Store struct {
	mu sync.RWMutex

	lines     positionTable
	maxLength int
	digest    Digest
	hasher    *xxhash.Digest // rolling full digest, exhaustive mode only
	fastMode  bool           // digest mode elected at clear time

	guessed *charset.Encoding
	forced  *charset.Encoding

	progress int

	// configuration probe consulted on every clear; the answer elects
	// the digest mode for the following indexing pass
	fastDetection func() bool
}

// NewStore creates an empty index. fastDetection reports whether fast
// modification detection is configured; nil means exhaustive hashing.
func NewStore(fastDetection func() bool) *Store {
	if fastDetection == nil {
		fastDetection = func() bool { return false }
	}
	s := &Store{fastDetection: fastDetection}
	s.resetLocked()
	return s
}

// Snapshot is a consistent copy of the scalar index state taken under
// the read lock.
type Snapshot struct {
	Lines       int
	MaxLength   int
	Digest      Digest
	FastMode    bool
	Guessed     *charset.Encoding
	Forced      *charset.Encoding
	Progress    int
	Allocated   int64
	FakeFinalLF bool
}

// IndexedSize is the number of file bytes covered by the index.
func (sn Snapshot) IndexedSize() int64 { return sn.Digest.Size }

// Encoding resolves the effective text encoding: forced wins over
// guessed, and an untouched index falls back to the locale default.
func (sn Snapshot) Encoding() *charset.Encoding {
	switch {
	case sn.Forced != nil:
		return sn.Forced
	case sn.Guessed != nil:
		return sn.Guessed
	default:
		return charset.Default()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Lines:       s.lines.count(),
		MaxLength:   s.maxLength,
		Digest:      s.digest,
		FastMode:    s.fastMode,
		Guessed:     s.guessed,
		Forced:      s.forced,
		Progress:    s.progress,
		Allocated:   s.lines.allocated(),
		FakeFinalLF: s.lines.fakeFinalLF,
	}
}

// PosForLine returns the recorded offset of the given zero-based line:
// the byte offset one past the line's line-feed unit (the start of the
// next line). The fabricated terminal line reports fileSize+1.
func (s *Store) PosForLine(n int) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 || n >= s.lines.count() {
		return 0, xerrors.Errorf("line %d of %d: %w", n, s.lines.count(), ErrLineOutOfRange)
	}
	return s.lines.at(n), nil
}

// Mutate runs fn with exclusive access to the index. The mutator must
// not escape fn.
func (s *Store) Mutate(fn func(*Mut)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Mut{s: s})
}

// Mut is the exclusive mutator handed to Mutate callbacks.
type Mut struct {
	s *Store
}

// AddAll merges one parsed block into the index: max-merges the expanded
// line length, appends the discovered positions, grows the indexed size
// by the block length and, in exhaustive mode, feeds the block into the
// rolling digest so the full-file digest never needs a re-read.
func (m *Mut) AddAll(block []byte, maxLength int, batch LineBatch, enc *charset.Encoding) {
	s := m.s
	if maxLength > s.maxLength {
		s.maxLength = maxLength
	}
	s.lines.append(batch)
	if len(block) > 0 {
		s.digest.Size += int64(len(block))
		if !s.fastMode {
			_, _ = s.hasher.Write(block)
			s.digest.Full = s.hasher.Sum64()
		}
	}
	s.guessed = enc
}

// Clear resets the index to empty and re-elects the digest mode from
// configuration.
func (m *Mut) Clear() { m.s.resetLocked() }

func (s *Store) resetLocked() {
	s.lines.reset()
	s.maxLength = 0
	s.digest = Digest{}
	s.hasher = xxhash.New()
	s.fastMode = s.fastDetection()
	s.guessed = nil
	s.forced = nil
	s.progress = 0
}

func (m *Mut) SetProgress(p int) { m.s.progress = p }

func (m *Mut) Progress() int { return m.s.progress }

// ForceEncoding pins the encoding for subsequent passes; nil removes the
// pin and lets detection decide again.
func (m *Mut) ForceEncoding(e *charset.Encoding) { m.s.forced = e }

func (m *Mut) ForcedEncoding() *charset.Encoding { return m.s.forced }

func (m *Mut) SetGuessedEncoding(e *charset.Encoding) { m.s.guessed = e }

func (m *Mut) GuessedEncoding() *charset.Encoding { return m.s.guessed }

func (m *Mut) MaxLength() int { return m.s.maxLength }

func (m *Mut) LineCount() int { return m.s.lines.count() }

func (m *Mut) IndexedSize() int64 { return m.s.digest.Size }

func (m *Mut) Allocated() int64 { return m.s.lines.allocated() }

func (m *Mut) SetHeaderDigest(sum uint64, size int64) {
	m.s.digest.Header = sum
	m.s.digest.HeaderSize = size
}

func (m *Mut) SetTailDigest(sum uint64, offset, size int64) {
	m.s.digest.Tail = sum
	m.s.digest.TailOffset = offset
	m.s.digest.TailSize = size
}
