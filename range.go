package shuffleread

import (
	"fmt"

	"github.com/go-dist/shuffleread/errors"
)

// NoProducer indicates that a PartitionRange is not narrowed to a sub-range of producer tasks
const NoProducer = -1

// PartitionRange identifies the contiguous set of reduce-side partition indices
// [StartPartition, EndPartition) read by a single session, optionally narrowed to blocks
// written by the producer tasks [StartProducer, EndProducer). A PartitionRange is
// constructed once per read session and never mutated.
type PartitionRange struct {
	StageID        string
	StartPartition int
	EndPartition   int
	StartProducer  int
	EndProducer    int
}

// CreatePartitionRange is a factory for PartitionRanges covering every producer task
func CreatePartitionRange(stageID string, startPartition int, endPartition int) PartitionRange {
	return PartitionRange{
		StageID:        stageID,
		StartPartition: startPartition,
		EndPartition:   endPartition,
		StartProducer:  NoProducer,
		EndProducer:    NoProducer,
	}
}

// CreateProducerPartitionRange is a factory for PartitionRanges narrowed to the producer
// tasks [startProducer, endProducer). Pass NoProducer for both bounds to read every producer.
func CreateProducerPartitionRange(stageID string, startPartition int, endPartition int, startProducer int, endProducer int) PartitionRange {
	return PartitionRange{
		StageID:        stageID,
		StartPartition: startPartition,
		EndPartition:   endPartition,
		StartProducer:  startProducer,
		EndProducer:    endProducer,
	}
}

// HasProducerRange returns true iff this PartitionRange is narrowed to a producer sub-range
func (r PartitionRange) HasProducerRange() bool {
	return r.StartProducer != NoProducer && r.EndProducer != NoProducer
}

// Validate returns an InvalidRangeError if this PartitionRange is malformed. The producer
// narrowing bounds must be both set or both unset - a range with exactly one bound is a
// construction error, never a partial narrowing.
func (r PartitionRange) Validate() error {
	if len(r.StageID) == 0 {
		return errors.InvalidRangeError{Message: "StageID must not be empty"}
	}
	if r.StartPartition < 0 || r.EndPartition < r.StartPartition {
		return errors.InvalidRangeError{Message: fmt.Sprintf("Partition range [%d, %d) is not a valid range", r.StartPartition, r.EndPartition)}
	}
	if (r.StartProducer == NoProducer) != (r.EndProducer == NoProducer) {
		return errors.InvalidRangeError{Message: "Producer range bounds must be supplied together or not at all"}
	}
	if r.HasProducerRange() && (r.StartProducer < 0 || r.EndProducer < r.StartProducer) {
		return errors.InvalidRangeError{Message: fmt.Sprintf("Producer range [%d, %d) is not a valid range", r.StartProducer, r.EndProducer)}
	}
	return nil
}

// ToString returns a string representation of this PartitionRange, for logging
func (r PartitionRange) ToString() string {
	if r.HasProducerRange() {
		return fmt.Sprintf("stage %s partitions [%d, %d) producers [%d, %d)", r.StageID, r.StartPartition, r.EndPartition, r.StartProducer, r.EndProducer)
	}
	return fmt.Sprintf("stage %s partitions [%d, %d)", r.StageID, r.StartPartition, r.EndPartition)
}
