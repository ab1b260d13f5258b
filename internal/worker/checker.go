package worker

import (
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"linedex/internal/common"
)

type checkFileChangesOperation struct {
	indexOperation
}

func (op *checkFileChangesOperation) Run() FileStatus {
	op.logger.Info("checking file for changes")
	status := op.doCheckFileChanges()
	op.logger.Info("file check finished", zap.Stringer("status", status))
	return status
}

// doCheckFileChanges compares the file on disk against the recorded
// digests. Any mismatch inside the indexed extent means the index can no
// longer be trusted and reports Truncated; growth beyond a clean extent
// reports DataAdded. The comparison mode follows the mode the digests
// were recorded under: header and tail samples in fast mode, the full
// rolling digest otherwise.
func (op *checkFileChangesOperation) doCheckFileChanges() FileStatus {
	snapshot := op.store.Snapshot()
	indexed := snapshot.Digest

	realSize, err := common.FileSize(op.fileName)
	if err != nil {
		op.logger.Info("file is gone", zap.Error(err))
		return Truncated
	}

	if realSize == 0 || realSize < indexed.Size {
		op.logger.Info("file truncated",
			zap.Int64("size", realSize),
			zap.Int64("indexed", indexed.Size))
		return Truncated
	}

	file, err := os.Open(op.fileName)
	if err != nil {
		op.logger.Info("file failed to open", zap.Error(err))
		return Truncated
	}
	defer func() { _ = file.Close() }()

	var modified bool
	if snapshot.FastMode {
		headerSum, err := op.fileDigest(file, 0, indexed.HeaderSize)
		if err != nil {
			op.logger.Warn("header digest failed", zap.Error(err))
			return Truncated
		}
		op.logger.Debug("header digest",
			zap.Uint64("indexed", indexed.Header),
			zap.Uint64("current", headerSum))
		modified = headerSum != indexed.Header

		if !modified {
			tailSum, err := op.fileDigest(file, indexed.TailOffset, indexed.TailSize)
			if err != nil {
				op.logger.Warn("tail digest failed", zap.Error(err))
				return Truncated
			}
			op.logger.Debug("tail digest",
				zap.Uint64("indexed", indexed.Tail),
				zap.Uint64("current", tailSum))
			modified = tailSum != indexed.Tail
		}
	} else {
		fullSum, err := op.fileDigest(file, 0, indexed.Size)
		if err != nil {
			op.logger.Warn("full digest failed", zap.Error(err))
			return Truncated
		}
		op.logger.Debug("full digest",
			zap.Uint64("indexed", indexed.Full),
			zap.Uint64("current", fullSum))
		modified = fullSum != indexed.Full
	}

	switch {
	case modified:
		op.logger.Info("file changed in indexed range")
		return Truncated
	case realSize > indexed.Size:
		op.logger.Info("new data on disk",
			zap.Int64("size", realSize),
			zap.Int64("indexed", indexed.Size))
		return DataAdded
	default:
		op.logger.Info("no change in file")
		return Unchanged
	}
}

// fileDigest hashes size bytes of the file starting at offset, reading
// block-sized chunks through the shared pool. A short file yields the
// digest of whatever was readable, which then fails the comparison.
func (op *indexOperation) fileDigest(file *os.File, offset, size int64) (uint64, error) {
	buf := op.pool.Get()
	defer op.pool.Put(buf)

	hasher := xxhash.New()
	for size > 0 {
		chunk := buf
		if size < int64(len(chunk)) {
			chunk = chunk[:size]
		}

		n, err := file.ReadAt(chunk, offset)
		if n > 0 {
			_, _ = hasher.Write(chunk[:n])
			offset += int64(n)
			size -= int64(n)
		}
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return hasher.Sum64(), nil
}
