package tpsec

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/supremind/tpsec/types"
)

// PermissionChange binds one catalog permission to the action to take on it
type PermissionChange struct {
	Permission types.PermissionDescriptor
	Action     types.Action
}

// PermissionGroupChange holds the changes of one catalog group, in catalog order
type PermissionGroupChange struct {
	PermissionGroup   types.PermissionGroup
	PermissionChanges []*PermissionChange
}

// SecurityGroupChange describes a security group to add or update, and the permissions to set on it
type SecurityGroupChange struct {
	Name                   string `validate:"required,max=256,excludesall=\\/[]:<>+=;?*0x7C"`
	Description            string `validate:"max=1024"`
	PermissionGroupChanges []*PermissionGroupChange
}

var validate = validator.New()

// NewSecurityGroupChange creates a change set seeded from the catalog, every action Inherit
func NewSecurityGroupChange(groups []types.PermissionGroup) *SecurityGroupChange {
	c := &SecurityGroupChange{}
	c.SetPermissionGroups(groups)
	return c
}

// SetPermissionGroups rebuilds the change set from a catalog, nil clears it
func (c *SecurityGroupChange) SetPermissionGroups(groups []types.PermissionGroup) {
	c.PermissionGroupChanges = make([]*PermissionGroupChange, 0, len(groups))
	for _, g := range groups {
		gc := &PermissionGroupChange{
			PermissionGroup:   g,
			PermissionChanges: make([]*PermissionChange, 0, len(g.Permissions)),
		}
		for _, p := range g.Permissions {
			gc.PermissionChanges = append(gc.PermissionChanges, &PermissionChange{Permission: p})
		}
		c.PermissionGroupChanges = append(c.PermissionGroupChanges, gc)
	}
}

// ResetPermissionChanges sets every action back to Inherit
func (c *SecurityGroupChange) ResetPermissionChanges() {
	for _, g := range c.PermissionGroupChanges {
		for _, p := range g.PermissionChanges {
			p.Action = types.Inherit
		}
	}
}

// Find returns the change of a permission, matching scope exactly and the constant ignoring case
func (c *SecurityGroupChange) Find(scope, constant string) *PermissionChange {
	for _, g := range c.PermissionGroupChanges {
		if g.PermissionGroup.Scope != scope {
			continue
		}
		for _, p := range g.PermissionChanges {
			if p.Permission.Scope == scope && strings.EqualFold(p.Permission.Constant, constant) {
				return p
			}
		}
	}
	return nil
}

// Set changes the action of one permission
func (c *SecurityGroupChange) Set(scope, constant string, act types.Action) error {
	p := c.Find(scope, constant)
	if p == nil {
		return fmt.Errorf("%w: permission %s/%s", types.ErrNotFound, scope, constant)
	}
	p.Action = act
	return nil
}

// ApplyRecords copies actions of persisted records onto matching changes.
// Records without a matching permission are ignored, so files saved against a different catalog still load.
// It returns how many records matched.
func (c *SecurityGroupChange) ApplyRecords(records []types.PermissionRecord) int {
	matched := 0
	for _, r := range records {
		if p := c.Find(r.Scope, r.Name); p != nil {
			p.Action = r.Action
			matched++
		}
	}
	return matched
}

// Changes returns every permission change in catalog order
func (c *SecurityGroupChange) Changes() []*PermissionChange {
	out := make([]*PermissionChange, 0)
	for _, g := range c.PermissionGroupChanges {
		out = append(out, g.PermissionChanges...)
	}
	return out
}

// Pending returns the changes which need a server call
func (c *SecurityGroupChange) Pending() []*PermissionChange {
	out := make([]*PermissionChange, 0)
	for _, p := range c.Changes() {
		if p.Action.IsChange() {
			out = append(out, p)
		}
	}
	return out
}

// Records returns the persisted form of every change
func (c *SecurityGroupChange) Records() []types.PermissionRecord {
	changes := c.Changes()
	out := make([]types.PermissionRecord, 0, len(changes))
	for _, p := range changes {
		out = append(out, types.PermissionRecord{Scope: p.Permission.Scope, Name: p.Permission.Constant, Action: p.Action})
	}
	return out
}

// Validate checks the group name and description
func (c *SecurityGroupChange) Validate() error {
	if e := validate.Struct(c); e != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidChange, e)
	}
	return nil
}

// Clone returns a deep copy, so a running operation is not affected by later edits
func (c *SecurityGroupChange) Clone() *SecurityGroupChange {
	out := &SecurityGroupChange{
		Name:                   c.Name,
		Description:            c.Description,
		PermissionGroupChanges: make([]*PermissionGroupChange, 0, len(c.PermissionGroupChanges)),
	}
	for _, g := range c.PermissionGroupChanges {
		gc := &PermissionGroupChange{
			PermissionGroup:   g.PermissionGroup,
			PermissionChanges: make([]*PermissionChange, 0, len(g.PermissionChanges)),
		}
		for _, p := range g.PermissionChanges {
			cp := *p
			gc.PermissionChanges = append(gc.PermissionChanges, &cp)
		}
		out.PermissionGroupChanges = append(out.PermissionGroupChanges, gc)
	}
	return out
}
