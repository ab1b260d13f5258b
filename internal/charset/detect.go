package charset

import (
	"bytes"
	"unicode/utf8"
)

// how much of a block the lane heuristic samples
const detectSampleSize = 4096

// Detect guesses the encoding of a file from its first block.
// A byte-order mark wins outright; otherwise the zero-byte pattern of the
// block separates the wide unicode encodings, and a UTF-8 validity check
// separates the single-byte rest.
func Detect(block []byte) *Encoding {
	if len(block) == 0 {
		return Default()
	}
	if e := detectBOM(block); e != nil {
		return e
	}
	if e := detectWide(block); e != nil {
		return e
	}
	if utf8.Valid(block) {
		return UTF8
	}
	return Latin1
}

func detectBOM(block []byte) *Encoding {
	switch {
	case bytes.HasPrefix(block, boms[0]):
		return UTF32LE
	case bytes.HasPrefix(block, boms[1]):
		return UTF32BE
	case bytes.HasPrefix(block, boms[2]):
		return UTF8
	case bytes.HasPrefix(block, boms[3]):
		return UTF16LE
	case bytes.HasPrefix(block, boms[4]):
		return UTF16BE
	}
	return nil
}

// detectWide classifies BOM-less UTF-16/32 by the zero-byte distribution
// across the lanes of a code unit: text encoded wide keeps one lane busy
// and pads the others with zeros. Four-byte units are tried first, as
// UTF-32 text also shows a clean two-byte pattern.
func detectWide(block []byte) *Encoding {
	sample := block
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}
	if e := classifyLanes(sample, 4); e != nil {
		return e
	}
	return classifyLanes(sample, 2)
}

func classifyLanes(sample []byte, width int) *Encoding {
	units := len(sample) / width
	if units < 2 {
		return nil
	}
	zeros := make([]int, width)
	for u := 0; u < units; u++ {
		for lane := 0; lane < width; lane++ {
			if sample[u*width+lane] == 0 {
				zeros[lane]++
			}
		}
	}

	// a lane padded with zeros in >=90% of units vs a busy text lane
	pad := func(lane int) bool { return zeros[lane]*10 >= units*9 }
	text := func(lane int) bool { return zeros[lane]*10 <= units }

	switch width {
	case 2:
		if text(0) && pad(1) {
			return UTF16LE
		}
		if pad(0) && text(1) {
			return UTF16BE
		}
	case 4:
		if text(0) && pad(1) && pad(2) && pad(3) {
			return UTF32LE
		}
		if pad(0) && pad(1) && pad(2) && text(3) {
			return UTF32BE
		}
	}
	return nil
}
