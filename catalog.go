package tpsec

import (
	"context"
	"fmt"

	"github.com/supremind/tpsec/types"
)

// GetPermissionGroups reads the permission catalog of a connection
func GetPermissionGroups(ctx context.Context, conn types.Connection) ([]types.PermissionGroup, error) {
	if conn == nil {
		return nil, types.ErrNoConnection
	}
	groups, e := conn.PermissionGroups(ctx)
	if e != nil {
		return nil, fmt.Errorf("read permission catalog of %s: %w", conn.Name(), e)
	}
	return groups, nil
}

// SelectConnection switches the session to conn, and rebuilds the change set from its catalog.
// A nil conn clears both the catalog and the change set.
func (m *Manager) SelectConnection(ctx context.Context, conn types.Connection) error {
	var groups []types.PermissionGroup
	if conn != nil {
		var e error
		if groups, e = GetPermissionGroups(ctx, conn); e != nil {
			return e
		}
		m.log.V(4).Info("select connection", "collection", conn.Name(), "permission groups", len(groups))
	} else {
		m.log.V(4).Info("clear connection")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.conn = conn
	m.catalog = groups
	m.change.SetPermissionGroups(groups)
	return nil
}

// PermissionGroups returns the cached catalog of the selected connection
func (m *Manager) PermissionGroups() []types.PermissionGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.PermissionGroup(nil), m.catalog...)
}
