package index

// Digest fingerprints the indexed byte extent for change detection.
//
// Size is always maintained. Full is the rolling xxhash64 over every
// indexed byte and is maintained only in exhaustive mode (fast
// modification detection off). The header/tail pair samples the first
// and the last block of the extent; it is written once at the end of an
// indexing pass and serves the fast detection mode.
type Digest struct {
	Size int64

	Full uint64

	Header     uint64
	HeaderSize int64

	Tail       uint64
	TailOffset int64
	TailSize   int64
}
