package fetch

import (
	"io/ioutil"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// spillManager tracks the temp files holding remote blocks too large to buffer in memory.
// Spill files outlive the streams handed downstream, since a fast-path FileByteRange may
// still point at them; they are removed in one pass when the session's iterator ends.
type spillManager struct {
	dir   string
	lock  sync.Mutex
	paths []string
}

func createSpillManager(dir string) *spillManager {
	return &spillManager{dir: dir}
}

// create opens a fresh temp file for one block's bytes
func (sm *spillManager) create(blockID string) (*os.File, error) {
	f, err := ioutil.TempFile(sm.dir, "spill-"+blockID+"-")
	if err != nil {
		return nil, err
	}
	sm.lock.Lock()
	sm.paths = append(sm.paths, f.Name())
	sm.lock.Unlock()
	return f, nil
}

// cleanup removes every spill file created so far
func (sm *spillManager) cleanup() error {
	sm.lock.Lock()
	paths := sm.paths
	sm.paths = nil
	sm.lock.Unlock()
	var merr *multierror.Error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
