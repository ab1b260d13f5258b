package common

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileSize(t *testing.T) {
	path := MakeTestFile(t, []byte("12345"))

	size, err := FileSize(path)
	require.NoError(t, err)
	require.EqualValues(t, 5, size)

	_, err = FileSize(path + ".missing")
	require.Error(t, err)
}

func TestRepeatEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := RepeatEvery(ctx, time.Millisecond, func() { calls.Add(1) })

	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("the loop did not stop")
	}

	// nothing fires after done closed
	settled := calls.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, settled, calls.Load())
}

func TestReadableSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expected, ReadableSize(tt.bytes))
	}
}
