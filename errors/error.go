package errors

import (
	"fmt"
)

// InvalidRangeError occurs when a PartitionRange is malformed, such as when exactly one
// producer narrowing bound is supplied
type InvalidRangeError struct{ Message string }

// Error returns a textual representation of this InvalidRangeError
func (e InvalidRangeError) Error() string {
	return fmt.Sprintf("Invalid partition range: %s", e.Message)
}

// LocationNotFoundError occurs when the location directory has no record of a stage's map output
type LocationNotFoundError struct{ StageID string }

// Error returns a textual representation of this LocationNotFoundError
func (e LocationNotFoundError) Error() string {
	return fmt.Sprintf("Map output locations for stage %s are unknown", e.StageID)
}

// BlockFetchError occurs when the bytes of a single block cannot be fetched or fail
// corruption detection. One BlockFetchError fails the whole read - a reduce partition is
// only valid if every contributing block is present.
type BlockFetchError struct {
	BlockID string
	Cause   error
}

// Error returns a textual representation of this BlockFetchError
func (e BlockFetchError) Error() string {
	return fmt.Sprintf("Unable to fetch block %s: %v", e.BlockID, e.Cause)
}

// Unwrap returns the underlying cause of this BlockFetchError
func (e BlockFetchError) Unwrap() error {
	return e.Cause
}

// UnsupportedFeatureError occurs when a shuffle dependency declares a capability this
// reader deliberately does not implement, such as aggregation or key ordering
type UnsupportedFeatureError struct{ Feature string }

// Error returns a textual representation of this UnsupportedFeatureError
func (e UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("%s is not supported by this reader", e.Feature)
}

// NoMoreBlocksError occurs when there are no more blocks in a BlockStreamIterator
type NoMoreBlocksError struct{}

// Error returns a textual representation of this NoMoreBlocksError
func (e NoMoreBlocksError) Error() string {
	return "No more blocks"
}

// NoMoreRecordsError occurs when there are no more records in a RecordIterator
type NoMoreRecordsError struct{}

// Error returns a textual representation of this NoMoreRecordsError
func (e NoMoreRecordsError) Error() string {
	return "No more records"
}

// NoMoreSegmentsError occurs when there are no more segments in a SegmentIterator
type NoMoreSegmentsError struct{}

// Error returns a textual representation of this NoMoreSegmentsError
func (e NoMoreSegmentsError) Error() string {
	return "No more segments"
}
