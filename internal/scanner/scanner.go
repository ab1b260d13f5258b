// Package scanner splits raw file blocks into lines. It is the pure core
// of the indexing pipeline: file I/O and index mutation stay outside, the
// parser only advances a State across consecutive blocks and reports the
// positions of the lines it completes.
package scanner

import (
	"bytes"

	"go.uber.org/zap"

	"linedex/internal/charset"
	"linedex/internal/index"
)

// TabStop is the visual tab width used when accounting expanded line lengths.
const TabStop = 8

// State carries parse progress across the blocks of one indexing pass.
// Pos is the absolute offset parsing continues from (one past the last
// recorded line feed; for a resumed pass it starts at the previously
// indexed size, which can fall inside an unterminated line).
type State struct {
	Pos              int64
	End              int64
	AdditionalSpaces int64 // tab-expansion columns carried into the next block
	MaxLength        int64 // max expanded line length seen in this pass
	FileSize         int64

	Guess  *charset.Encoding // detected from the first block of the pass
	Codec  *charset.Encoding // effective codec: forced wins over guessed
	Params charset.Params    // line-feed geometry of Codec
}

// Parser finds line feeds in blocks according to the encoding geometry
// recorded in the State.
type Parser struct {
	logger *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseBlock scans one block for line feeds and returns the positions of
// the lines completed inside it. A position records the offset one past
// the line-feed unit, i.e. where the following line starts. The final
// unterminated span of the block still contributes to MaxLength; its
// line is completed by a later block or by the fabricated terminal line.
func (p *Parser) ParseBlock(blockStart int64, block []byte, state *State) index.LineBatch {
	if state.Params.Width < 1 {
		state.Params = charset.Params{Width: 1}
	}
	find := findSingleByteDelimiter
	if state.Params.Width > 1 {
		find = findMultiByteDelimiter
	}

	var batch index.LineBatch
	endOfBlock := false
	for !endOfBlock {
		if state.Pos > blockStart+int64(len(block)) {
			p.logger.Error("parse ran out of the block",
				zap.Int64("pos", state.Pos),
				zap.Int64("block_start", blockStart),
				zap.Int("block_len", len(block)))
			break
		}

		posWithinBlock := 0
		if state.Pos >= blockStart {
			posWithinBlock = int(state.Pos - blockStart)
		}

		endOfBlock = posWithinBlock == len(block)
		if !endOfBlock {
			endOfBlock, posWithinBlock, state.AdditionalSpaces = findNextLineFeed(block, posWithinBlock, state, find)
		}

		currentDataEnd := int64(posWithinBlock) + blockStart
		length := (currentDataEnd-state.Pos)/int64(state.Params.Width) + state.AdditionalSpaces
		if length > state.MaxLength {
			state.MaxLength = length
		}

		if !endOfBlock {
			state.End = currentDataEnd
			state.Pos = state.End + int64(state.Params.Width)
			state.AdditionalSpaces = 0
			batch.Append(state.Pos)
		}
	}

	return batch
}

// findNextLineFeed locates the next line feed at or after posWithinBlock.
// It reports whether the block ran out instead, the adjusted position of
// the delimiter unit (or of the block end) and the tab-expansion carry
// accumulated over the scanned span.
func findNextLineFeed(block []byte, posWithinBlock int, state *State, find findDelimiter) (bool, int, int64) {
	view := block[posWithinBlock:]
	next := find(state.Params, view, '\n')

	endOfBlock := next < 0
	lineSize := next
	if endOfBlock {
		lineSize = len(view)
	}

	additional := expandTabs(block, posWithinBlock, posWithinBlock+lineSize, state.Params, find, state.AdditionalSpaces)
	pos := posWithinBlock + lineSize - state.Params.BeforeLF()

	return endOfBlock, pos, additional
}

// expandTabs accounts the extra visual columns contributed by tabs in
// block[spanStart:spanEnd]. Each tab advances the column to the next
// multiple of TabStop; initial carries the columns accumulated by the
// same line in previous blocks.
func expandTabs(block []byte, spanStart, spanEnd int, params charset.Params, find findDelimiter, initial int64) int64 {
	additional := initial
	cursor := spanStart
	for cursor < spanEnd {
		rel := find(params, block[cursor:spanEnd], '\t')
		if rel < 0 {
			break
		}
		tabPos := cursor + rel - params.BeforeLF()
		expanded := int64(tabPos-spanStart) + additional
		additional += TabStop - expanded%TabStop - 1
		cursor += rel + 1
	}
	return additional
}

type findDelimiter func(params charset.Params, data []byte, delim byte) int

func findSingleByteDelimiter(_ charset.Params, data []byte, delim byte) int {
	return bytes.IndexByte(data, delim)
}

// findMultiByteDelimiter locates delim as a full code unit: the candidate
// byte must be accompanied by zero bytes on the remaining lanes of the
// unit. Candidates failing the check (narrow-band byte patterns that
// contain the delimiter byte inside an unrelated character) are skipped.
func findMultiByteDelimiter(params charset.Params, data []byte, delim byte) int {
	next := bytes.IndexByte(data, delim)
	for next >= 0 {
		if isDelimiter(params, data, next) {
			return next
		}
		rel := bytes.IndexByte(data[next+1:], delim)
		if rel < 0 {
			return -1
		}
		next += 1 + rel
	}
	return next
}

func isDelimiter(params charset.Params, data []byte, checkPos int) bool {
	checkForward := params.Index == 0
	if checkForward && checkPos+params.Width > len(data) {
		return false
	}
	if !checkForward && checkPos < params.Width-1 {
		return false
	}
	for i := 1; i < params.Width; i++ {
		var b byte
		if checkForward {
			b = data[checkPos+i]
		} else {
			b = data[checkPos-i]
		}
		if b != 0 {
			return false
		}
	}
	return true
}
