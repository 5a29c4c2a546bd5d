package mutator

// Flags is SharedMutator's per-call configuration bitmask. The descriptions
// below are the range-server behaviour each flag names; SharedMutator does
// not transmit the bitmask (see WithFlags).
type Flags uint32

const (
	// FlagNoLogSync skips the commit-log fsync the range server would
	// otherwise perform before acknowledging an Update — a durability/latency
	// tradeoff the caller opts into explicitly.
	FlagNoLogSync Flags = 1 << iota
	// FlagIgnoreUnknownCFs tells the range server to silently drop cells
	// addressed to a column family it doesn't recognize, instead of
	// rejecting the whole batch.
	FlagIgnoreUnknownCFs
	// FlagIgnoreCellLimit disables the per-cell size limit check.
	FlagIgnoreCellLimit
)
