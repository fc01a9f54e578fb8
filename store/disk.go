// Package store provides single-host implementations of the session's collaborator
// interfaces: a disk-backed block store, a transport serving fetches out of such a store,
// and an in-memory location directory.
package store

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/docker/docker/pkg/locker"
	"github.com/go-dist/shuffleread"
)

// DiskStore is a local block store keeping one file per block under a root directory.
// Concurrent access to the same block is serialized with per-block named locks.
type DiskStore struct {
	dir    string
	blocks *locker.Locker
}

// CreateDiskStore is a factory for DiskStores rooted at dir
func CreateDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, blocks: locker.New()}, nil
}

// Put writes a block's bytes to the store, returning a BlockDescriptor carrying the
// block's size and xxhash64 checksum
func (s *DiskStore) Put(blockID string, data []byte) (shuffleread.BlockDescriptor, error) {
	p, err := s.blockPath(blockID)
	if err != nil {
		return shuffleread.BlockDescriptor{}, err
	}
	s.blocks.Lock(blockID)
	defer s.blocks.Unlock(blockID)
	if err := ioutil.WriteFile(p, data, 0644); err != nil {
		return shuffleread.BlockDescriptor{}, err
	}
	return shuffleread.BlockDescriptor{
		BlockID:  blockID,
		SizeHint: int64(len(data)),
		Checksum: xxhash.Sum64(data),
	}, nil
}

// Open returns the block's file positioned at its first byte, along with the block's
// length. The caller owns the returned handle.
func (s *DiskStore) Open(blockID string) (*os.File, int64, error) {
	p, err := s.blockPath(blockID)
	if err != nil {
		return nil, 0, err
	}
	s.blocks.Lock(blockID)
	defer s.blocks.Unlock(blockID)
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *DiskStore) blockPath(blockID string) (string, error) {
	if len(blockID) == 0 || strings.ContainsAny(blockID, "/\\") {
		return "", fmt.Errorf("Block id %q is not a valid store key", blockID)
	}
	return path.Join(s.dir, blockID+".blk"), nil
}
