package index

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"

	"linedex/internal/charset"
)

func batchOf(positions ...int64) LineBatch {
	var b LineBatch
	for _, p := range positions {
		b.Append(p)
	}
	return b
}

func TestStoreStartsEmpty(t *testing.T) {
	s := NewStore(nil)

	snap := s.Snapshot()
	require.Equal(t, 0, snap.Lines)
	require.Equal(t, 0, snap.MaxLength)
	require.EqualValues(t, 0, snap.IndexedSize())
	require.Equal(t, 0, snap.Progress)
	require.Nil(t, snap.Guessed)
	require.Equal(t, charset.Default(), snap.Encoding())

	_, err := s.PosForLine(0)
	require.ErrorIs(t, err, ErrLineOutOfRange)
}

func TestAddAllAccumulates(t *testing.T) {
	s := NewStore(nil)

	block1 := []byte("one\ntwo\n")
	block2 := []byte("three\n")

	s.Mutate(func(m *Mut) {
		m.AddAll(block1, 3, batchOf(4, 8), charset.UTF8)
		m.AddAll(block2, 5, batchOf(14), charset.UTF8)
	})

	snap := s.Snapshot()
	require.Equal(t, 3, snap.Lines)
	require.Equal(t, 5, snap.MaxLength)
	require.EqualValues(t, 14, snap.IndexedSize())
	require.Equal(t, charset.UTF8, snap.Encoding())
	require.Positive(t, snap.Allocated)

	for i, expected := range []int64{4, 8, 14} {
		pos, err := s.PosForLine(i)
		require.NoError(t, err)
		require.Equal(t, expected, pos)
	}
	_, err := s.PosForLine(3)
	require.ErrorIs(t, err, ErrLineOutOfRange)
}

func TestRollingDigestMatchesOneShot(t *testing.T) {
	s := NewStore(func() bool { return false })

	block1 := []byte("one\ntwo\n")
	block2 := []byte("three\n")

	s.Mutate(func(m *Mut) {
		m.AddAll(block1, 3, batchOf(4, 8), charset.UTF8)
		m.AddAll(block2, 5, batchOf(14), charset.UTF8)
	})

	expected := xxhash.Sum64(append(append([]byte{}, block1...), block2...))
	require.Equal(t, expected, s.Snapshot().Digest.Full)
}

func TestFastModeSkipsRollingDigest(t *testing.T) {
	s := NewStore(func() bool { return true })

	s.Mutate(func(m *Mut) {
		m.AddAll([]byte("one\n"), 3, batchOf(4), charset.UTF8)
	})

	snap := s.Snapshot()
	require.True(t, snap.FastMode)
	require.Zero(t, snap.Digest.Full)
	require.EqualValues(t, 4, snap.IndexedSize())
}

func TestClearReelectsDigestMode(t *testing.T) {
	fast := false
	s := NewStore(func() bool { return fast })
	require.False(t, s.Snapshot().FastMode)

	s.Mutate(func(m *Mut) {
		m.AddAll([]byte("one\n"), 3, batchOf(4), charset.UTF8)
		m.ForceEncoding(charset.UTF16LE)
		m.SetProgress(100)
	})

	fast = true
	s.Mutate(func(m *Mut) { m.Clear() })

	snap := s.Snapshot()
	require.True(t, snap.FastMode)
	require.Equal(t, 0, snap.Lines)
	require.EqualValues(t, 0, snap.IndexedSize())
	require.Equal(t, 0, snap.Progress)
	require.Nil(t, snap.Forced)
	require.Nil(t, snap.Guessed)
}

func TestFakeFinalLineIsReplacedByRealLines(t *testing.T) {
	s := NewStore(nil)

	// "a\nb": one real line plus the fabricated terminal line at size+1
	fake := batchOf(4)
	fake.MarkFakeFinalLF()
	s.Mutate(func(m *Mut) {
		m.AddAll([]byte("a\nb"), 1, batchOf(2), charset.UTF8)
		m.AddAll(nil, 0, fake, charset.UTF8)
	})

	snap := s.Snapshot()
	require.Equal(t, 2, snap.Lines)
	require.True(t, snap.FakeFinalLF)
	require.EqualValues(t, 3, snap.IndexedSize()) // fake entry adds no bytes

	// appending real lines drops the fabricated entry first
	s.Mutate(func(m *Mut) {
		m.AddAll([]byte("c\nd\n"), 2, batchOf(5, 7), charset.UTF8)
	})

	snap = s.Snapshot()
	require.Equal(t, 3, snap.Lines)
	require.False(t, snap.FakeFinalLF)

	var positions []int64
	for i := 0; i < snap.Lines; i++ {
		pos, err := s.PosForLine(i)
		require.NoError(t, err)
		positions = append(positions, pos)
	}
	require.Equal(t, []int64{2, 5, 7}, positions)
}

func TestFakeFinalLineSurvivesEmptyBatches(t *testing.T) {
	s := NewStore(nil)

	fake := batchOf(9)
	fake.MarkFakeFinalLF()
	s.Mutate(func(m *Mut) {
		m.AddAll([]byte("一行のログ"), 5, LineBatch{}, charset.UTF8)
		m.AddAll(nil, 0, fake, charset.UTF8)
	})
	require.Equal(t, 1, s.Snapshot().Lines)

	// a block with no line feeds leaves the terminal line in place
	s.Mutate(func(m *Mut) {
		m.AddAll([]byte("tail"), 0, LineBatch{}, charset.UTF8)
	})

	snap := s.Snapshot()
	require.Equal(t, 1, snap.Lines)
	require.True(t, snap.FakeFinalLF)
}

func TestDigestRecordSetters(t *testing.T) {
	s := NewStore(nil)

	s.Mutate(func(m *Mut) {
		m.SetHeaderDigest(111, 64)
		m.SetTailDigest(222, 1024, 64)
	})

	d := s.Snapshot().Digest
	require.EqualValues(t, 111, d.Header)
	require.EqualValues(t, 64, d.HeaderSize)
	require.EqualValues(t, 222, d.Tail)
	require.EqualValues(t, 1024, d.TailOffset)
	require.EqualValues(t, 64, d.TailSize)
}
