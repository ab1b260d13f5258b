// Package fetch serves the text of indexed lines straight from the file
// through a memory map. It is the read side of the index: the line table
// gives byte spans, fetch turns them into decoded strings.
package fetch

import (
	"golang.org/x/exp/mmap"
	"golang.org/x/xerrors"

	"linedex/internal/index"
)

// Reader maps one file and resolves line numbers against its index. The
// mapping is sized at open time: reopen the reader after the file grows.
type Reader struct {
	store *index.Store
	src   *mmap.ReaderAt
}

func Open(path string, store *index.Store) (*Reader, error) {
	src, err := mmap.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("mmap %s: %w", path, err)
	}
	return &Reader{store: store, src: src}, nil
}

func (r *Reader) Close() error {
	return r.src.Close()
}

// Line returns the text of the zero-based line n decoded to UTF-8.
func (r *Reader) Line(n int) (string, error) {
	sn := r.store.Snapshot()

	raw, err := r.read(sn, n)
	if err != nil {
		return "", err
	}

	text, err := sn.Encoding().NewDecoder().Bytes(raw)
	if err != nil {
		return "", xerrors.Errorf("decode %s: %w", sn.Encoding().Name(), err)
	}
	return string(text), nil
}

// Lines returns up to count decoded lines starting at first, stopping at
// the end of the index.
func (r *Reader) Lines(first, count int) ([]string, error) {
	sn := r.store.Snapshot()
	if first < 0 || first >= sn.Lines {
		return nil, xerrors.Errorf("line %d of %d: %w", first, sn.Lines, index.ErrLineOutOfRange)
	}
	if rest := sn.Lines - first; count > rest {
		count = rest
	}
	if count < 0 {
		count = 0
	}

	decoder := sn.Encoding().NewDecoder()
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		raw, err := r.read(sn, first+i)
		if err != nil {
			return nil, err
		}
		text, err := decoder.Bytes(raw)
		if err != nil {
			return nil, xerrors.Errorf("decode %s: %w", sn.Encoding().Name(), err)
		}
		out = append(out, string(text))
	}
	return out, nil
}

// RawLine returns the undecoded bytes of the zero-based line n, without
// its line-feed unit.
func (r *Reader) RawLine(n int) ([]byte, error) {
	return r.read(r.store.Snapshot(), n)
}

// Span returns the byte extent of the zero-based line n in the file,
// excluding its line-feed unit.
func (r *Reader) Span(n int) (from, to int64, err error) {
	return r.span(r.store.Snapshot(), n)
}

func (r *Reader) read(sn index.Snapshot, n int) ([]byte, error) {
	from, to, err := r.span(sn, n)
	if err != nil {
		return nil, err
	}
	if to > int64(r.src.Len()) {
		return nil, xerrors.Errorf("line %d ends at %d beyond the mapped %d bytes", n, to, r.src.Len())
	}

	buf := make([]byte, to-from)
	if _, err := r.src.ReadAt(buf, from); err != nil {
		return nil, xerrors.Errorf("read line %d: %w", n, err)
	}
	return buf, nil
}

// span resolves the byte extent of line n. A recorded position points
// one past the line-feed unit, so the line runs from the previous
// position to its own minus the line-feed width. The fabricated final
// line carries a position past the file end and runs to the indexed size
// instead.
func (r *Reader) span(sn index.Snapshot, n int) (int64, int64, error) {
	to, err := r.store.PosForLine(n)
	if err != nil {
		return 0, 0, err
	}

	var from int64
	if n > 0 {
		from, err = r.store.PosForLine(n - 1)
		if err != nil {
			return 0, 0, err
		}
	}

	if sn.FakeFinalLF && n == sn.Lines-1 {
		to = sn.IndexedSize()
	} else {
		to -= int64(sn.Encoding().Params().Width)
	}

	return from, to, nil
}
