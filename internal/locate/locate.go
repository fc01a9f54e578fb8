// Package locate resolves a partition range into the locations of its contributing
// blocks, via the external location directory. Its only responsibilities are argument
// validation and picking the directory call shape.
package locate

import (
	"context"
	"time"

	"github.com/go-dist/shuffleread"
)

// Locate validates rng and asks the directory for the blocks contributing to it, grouped
// by serving location. The locate call's duration is recorded into metrics. Directory
// failures, including LocationNotFoundError, propagate untouched.
func Locate(ctx context.Context, dir shuffleread.LocationDirectory, rng shuffleread.PartitionRange, metrics *shuffleread.ReadMetrics) ([]shuffleread.LocatedBlocks, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	var groups []shuffleread.LocatedBlocks
	var err error
	if rng.HasProducerRange() {
		groups, err = dir.ResolveProducers(ctx, rng.StageID, rng.StartPartition, rng.EndPartition, rng.StartProducer, rng.EndProducer)
	} else {
		groups, err = dir.Resolve(ctx, rng.StageID, rng.StartPartition, rng.EndPartition)
	}
	metrics.SetLocateTime(time.Since(start))
	if err != nil {
		return nil, err
	}
	return groups, nil
}
