package filter

import (
	"context"
	"reflect"
	"sync"

	"github.com/go-logr/logr"
	"github.com/supremind/tpsec/types"
)

var _ types.ChangeSetPersister = (*changeSetPersisterFilter)(nil)

type changeSetPersisterFilter struct {
	types.ChangeSetPersister
	known map[string][]types.PermissionRecord
	log   logr.Logger
	sync.RWMutex
}

// NewChangeSetPersister remembers the records last loaded from or saved to each location,
// and does not call the inner persister again to save the same records there
func NewChangeSetPersister(p types.ChangeSetPersister, l logr.Logger) *changeSetPersisterFilter {
	return &changeSetPersisterFilter{
		ChangeSetPersister: p,
		known:              make(map[string][]types.PermissionRecord),
		log:                l,
	}
}

// Load records from the inner persister
func (f *changeSetPersisterFilter) Load(ctx context.Context, location string) ([]types.PermissionRecord, error) {
	records, e := f.ChangeSetPersister.Load(ctx, location)
	if e != nil {
		return nil, e
	}

	f.Lock()
	f.known[location] = append([]types.PermissionRecord(nil), records...)
	f.Unlock()

	return records, nil
}

// Save records to the inner persister, unless they are already there
func (f *changeSetPersisterFilter) Save(ctx context.Context, location string, records []types.PermissionRecord) error {
	f.RLock()
	known, ok := f.known[location]
	f.RUnlock()

	if ok && sameRecords(known, records) {
		f.log.V(4).Info("skip saving unchanged records", "location", location, "records", len(records))
		return nil
	}

	if e := f.ChangeSetPersister.Save(ctx, location, records); e != nil {
		f.Lock()
		delete(f.known, location)
		f.Unlock()
		return e
	}

	f.Lock()
	f.known[location] = append([]types.PermissionRecord(nil), records...)
	f.Unlock()
	return nil
}

func sameRecords(a, b []types.PermissionRecord) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
