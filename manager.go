package tpsec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/supremind/tpsec/task"
	"github.com/supremind/tpsec/types"
)

// Manager is a session against one selected project collection.
// It caches the permission catalog of the connection, owns the change set being edited,
// and runs at most one server operation at a time.
type Manager struct {
	persister types.ChangeSetPersister
	log       logr.Logger

	mu      sync.RWMutex
	conn    types.Connection
	catalog []types.PermissionGroup
	change  *SecurityGroupChange

	busy atomic.Bool
}

// Connection returns the selected connection, or ErrNoConnection
func (m *Manager) Connection() (types.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return nil, types.ErrNoConnection
	}
	return m.conn, nil
}

// SecurityGroupChange returns the change set being edited.
// Edits through it must not run concurrently with SelectConnection, LoadPermissions,
// SavePermissions or ResetPermissionChanges; running tasks work on their own copy.
func (m *Manager) SecurityGroupChange() *SecurityGroupChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.change
}

// ResetPermissionChanges sets every action of the change set back to Inherit
func (m *Manager) ResetPermissionChanges() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.change.ResetPermissionChanges()
}

// LoadPermissions replaces the actions of the change set with those saved at location.
// The change set is left untouched if the location cannot be read or parsed.
func (m *Manager) LoadPermissions(ctx context.Context, location string) error {
	records, e := m.persister.Load(ctx, location)
	if e != nil {
		m.log.Error(e, "An error occurred while loading the security permissions", "location", location)
		return e
	}

	m.mu.Lock()
	m.change.ResetPermissionChanges()
	matched := m.change.ApplyRecords(records)
	m.mu.Unlock()

	m.log.V(4).Info("loaded security permissions", "location", location, "records", len(records), "matched", matched)
	if matched < len(records) {
		m.log.Info("ignored permissions unknown to the catalog", "location", location, "ignored", len(records)-matched)
	}
	return nil
}

// SavePermissions writes every permission change of the change set to location
func (m *Manager) SavePermissions(ctx context.Context, location string) error {
	m.mu.RLock()
	records := m.change.Records()
	m.mu.RUnlock()

	if e := m.persister.Save(ctx, location, records); e != nil {
		m.log.Error(e, "An error occurred while saving the security permissions", "location", location)
		return e
	}
	m.log.V(4).Info("saved security permissions", "location", location, "records", len(records))
	return nil
}

// begin marks the manager busy and returns the connection to work with
func (m *Manager) begin() (types.Connection, error) {
	conn, e := m.Connection()
	if e != nil {
		return nil, e
	}
	if !m.busy.CompareAndSwap(false, true) {
		return nil, types.ErrBusy
	}
	return conn, nil
}

func (m *Manager) end() {
	m.busy.Store(false)
}

// startTask runs body as a task, releasing the busy mark when done
func startTask[T any](ctx context.Context, m *Manager, title string, total int, opts []task.Option, body func(context.Context, *task.Task, types.Connection) (T, string, error)) *task.Future[T] {
	conn, e := m.begin()
	if e != nil {
		return task.Failed[T](fmt.Errorf("%s: %w", title, e))
	}

	opts = append([]task.Option{task.WithLogger(m.log.WithName("task"))}, opts...)
	t := task.New(title, total, opts...)
	m.log.V(4).Info("start task", "task", t.ID.String(), "title", title, "total", total)

	return task.Start(ctx, t, func(ctx context.Context, t *task.Task) (T, string, error) {
		defer m.end()
		return body(ctx, t, conn)
	})
}
