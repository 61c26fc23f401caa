package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/supremind/tpsec/types"
)

var _ types.ChangeSetPersister = (*changeSetPersister)(nil)

type changeSetPersister struct {
	sets map[string][]types.PermissionRecord
	sync.RWMutex
}

// NewChangeSetPersister returns a fake change set persister keeping everything in memory,
// which should not be used in real works
func NewChangeSetPersister(init map[string][]types.PermissionRecord) *changeSetPersister {
	p := &changeSetPersister{sets: make(map[string][]types.PermissionRecord, len(init))}
	for location, records := range init {
		p.sets[location] = append([]types.PermissionRecord(nil), records...)
	}
	return p
}

func (p *changeSetPersister) Load(ctx context.Context, location string) ([]types.PermissionRecord, error) {
	p.RLock()
	defer p.RUnlock()

	records, ok := p.sets[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrIO, location, types.ErrNotFound)
	}
	return append([]types.PermissionRecord(nil), records...), nil
}

func (p *changeSetPersister) Save(ctx context.Context, location string, records []types.PermissionRecord) error {
	p.Lock()
	defer p.Unlock()

	p.sets[location] = append([]types.PermissionRecord(nil), records...)
	return nil
}

// Locations lists every saved location
func (p *changeSetPersister) Locations() []string {
	p.RLock()
	defer p.RUnlock()

	out := make([]string, 0, len(p.sets))
	for location := range p.sets {
		out = append(out, location)
	}
	return out
}
