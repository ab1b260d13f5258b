package index

// LineBatch accumulates the line positions discovered in one parsed block.
// A position records the byte offset one past the line's line-feed unit,
// i.e. the offset at which the following line starts.
type LineBatch struct {
	positions   []int64
	fakeFinalLF bool
}

// Append records the next discovered position. Positions must arrive in
// strictly increasing file order.
func (b *LineBatch) Append(pos int64) {
	b.positions = append(b.positions, pos)
}

// MarkFakeFinalLF flags the batch as ending with a fabricated line feed,
// used for files whose last line has no trailing terminator.
func (b *LineBatch) MarkFakeFinalLF() {
	b.fakeFinalLF = true
}

func (b *LineBatch) Len() int { return len(b.positions) }

// Positions exposes the accumulated offsets in file order.
func (b *LineBatch) Positions() []int64 { return b.positions }

// positionTable is the accumulated line-position table of one store.
type positionTable struct {
	positions   []int64
	fakeFinalLF bool
}

// append merges a batch in. When the table currently ends with a
// fabricated final line and real positions arrive, the fabricated entry
// is dropped first: each pass re-discovers the tail of the file and
// fabricates the terminal line anew if it is still unterminated.
func (t *positionTable) append(b LineBatch) {
	if b.Len() == 0 {
		return
	}
	if t.fakeFinalLF {
		t.positions = t.positions[:len(t.positions)-1]
	}
	t.positions = append(t.positions, b.positions...)
	t.fakeFinalLF = b.fakeFinalLF
}

func (t *positionTable) count() int { return len(t.positions) }

func (t *positionTable) at(i int) int64 { return t.positions[i] }

// allocated reports the memory footprint of the table in bytes.
func (t *positionTable) allocated() int64 { return int64(cap(t.positions)) * 8 }

func (t *positionTable) reset() {
	t.positions = nil
	t.fakeFinalLF = false
}
