package store

import (
	"context"
	"sync"

	"github.com/go-dist/shuffleread"
	"github.com/go-dist/shuffleread/errors"
)

type directoryEntry struct {
	partition int
	producer  int
	loc       shuffleread.Location
	desc      shuffleread.BlockDescriptor
}

// MemoryDirectory is an in-memory LocationDirectory, mapping (stage, partition, producer)
// registrations to grouped block locations. Producers register blocks as they commit map
// output; readers resolve ranges against the registrations.
type MemoryDirectory struct {
	lock   sync.RWMutex
	stages map[string][]directoryEntry
}

// CreateMemoryDirectory is a factory for MemoryDirectories
func CreateMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{stages: make(map[string][]directoryEntry)}
}

// Add registers one block written by producer for partition of stageID, served at loc
func (d *MemoryDirectory) Add(stageID string, partition int, producer int, loc shuffleread.Location, desc shuffleread.BlockDescriptor) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stages[stageID] = append(d.stages[stageID], directoryEntry{
		partition: partition,
		producer:  producer,
		loc:       loc,
		desc:      desc,
	})
}

// Resolve locates every block contributing to the partitions [startPartition, endPartition)
func (d *MemoryDirectory) Resolve(ctx context.Context, stageID string, startPartition int, endPartition int) ([]shuffleread.LocatedBlocks, error) {
	return d.resolve(stageID, startPartition, endPartition, shuffleread.NoProducer, shuffleread.NoProducer)
}

// ResolveProducers locates blocks contributing to the partitions [startPartition, endPartition)
// written by the producer tasks [startProducer, endProducer)
func (d *MemoryDirectory) ResolveProducers(ctx context.Context, stageID string, startPartition int, endPartition int, startProducer int, endProducer int) ([]shuffleread.LocatedBlocks, error) {
	return d.resolve(stageID, startPartition, endPartition, startProducer, endProducer)
}

func (d *MemoryDirectory) resolve(stageID string, startPartition int, endPartition int, startProducer int, endProducer int) ([]shuffleread.LocatedBlocks, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	entries, ok := d.stages[stageID]
	if !ok {
		return nil, errors.LocationNotFoundError{StageID: stageID}
	}
	// group by location, preserving registration order within each group
	groupIdx := make(map[shuffleread.Location]int)
	var groups []shuffleread.LocatedBlocks
	for _, e := range entries {
		if e.partition < startPartition || e.partition >= endPartition {
			continue
		}
		if startProducer != shuffleread.NoProducer && (e.producer < startProducer || e.producer >= endProducer) {
			continue
		}
		i, ok := groupIdx[e.loc]
		if !ok {
			i = len(groups)
			groupIdx[e.loc] = i
			groups = append(groups, shuffleread.LocatedBlocks{Location: e.loc})
		}
		groups[i].Blocks = append(groups[i].Blocks, e.desc)
	}
	return groups, nil
}
