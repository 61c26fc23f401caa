// Package fake provides an in-memory project collection, for tests and for offline work
// against a collection snapshot.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/supremind/tpsec/types"
)

var _ types.Connection = (*Connection)(nil)

// Call is a recorded collaborator call
type Call struct {
	Method string
	// Key identifies the call target, like "Apollo/Project/GENERIC_READ" for SetPermission
	Key string
}

// FailFunc decides if a call should fail, returning nil lets it through
type FailFunc func(Call) error

type identity struct {
	types.Identity
	projectURI string
	members    []types.Descriptor
}

type aclKey struct {
	project  string
	scope    string
	group    string
	constant string
}

// Connection is an in-memory types.Connection, safe for concurrent use
type Connection struct {
	name string

	mu         sync.RWMutex
	projects   map[string]types.TeamProject
	identities map[string]*identity
	catalog    []types.PermissionGroup
	acl        map[aclKey]types.Action
	calls      []Call
	fail       FailFunc
}

// NewConnection creates an empty collection, using DefaultCatalog if catalog is empty
func NewConnection(name string, catalog ...types.PermissionGroup) *Connection {
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	return &Connection{
		name:       name,
		projects:   make(map[string]types.TeamProject),
		identities: make(map[string]*identity),
		catalog:    catalog,
		acl:        make(map[aclKey]types.Action),
	}
}

// Name implements types.Connection
func (c *Connection) Name() string {
	return c.name
}

// FailWhen installs a failure injector, nil removes it
func (c *Connection) FailWhen(fn FailFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fn
}

// Calls returns recorded calls of the given methods, all calls if none given
func (c *Connection) Calls(methods ...string) []Call {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Call, 0, len(c.calls))
	for _, call := range c.calls {
		if len(methods) == 0 {
			out = append(out, call)
			continue
		}
		for _, m := range methods {
			if call.Method == m {
				out = append(out, call)
				break
			}
		}
	}
	return out
}

// ResetCalls forgets recorded calls
func (c *Connection) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// record must be called with the write lock held
func (c *Connection) record(method, key string) error {
	call := Call{Method: method, Key: key}
	c.calls = append(c.calls, call)
	if c.fail != nil {
		if e := c.fail(call); e != nil {
			return fmt.Errorf("%w: %s %s: %v", types.ErrServiceCall, method, key, e)
		}
	}
	return nil
}

// AddProject creates a team project
func (c *Connection) AddProject(name string) types.TeamProject {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.projects[name]; ok {
		return p
	}
	p := types.TeamProject{Name: name, URI: "vstfs:///Classification/TeamProject/" + uuid.NewString()}
	c.projects[name] = p
	return p
}

// AddUser creates a user identity
func (c *Connection) AddUser(displayName string) types.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id := c.findByName(displayName); id != nil {
		return id.Descriptor
	}
	return c.addIdentity("", displayName, "", false, true)
}

// AddGroup creates an active application group in the project, the name is the short name
func (c *Connection) AddGroup(project types.TeamProject, name, description string) types.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addIdentity(project.URI, types.GroupFullName(project.Name, name), description, true, true)
}

// Deactivate marks a group inactive
func (c *Connection) Deactivate(d types.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.identities[d.Identifier]; ok {
		id.IsActive = false
	}
}

// AddMember makes member a direct member of group
func (c *Connection) AddMember(group, member types.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.identities[group.Identifier]
	if !ok || !g.IsGroup {
		return fmt.Errorf("%w: group %s", types.ErrNotFound, group)
	}
	if _, ok := c.identities[member.Identifier]; !ok {
		return fmt.Errorf("%w: member %s", types.ErrNotFound, member)
	}
	for _, m := range g.members {
		if m == member {
			return nil
		}
	}
	g.members = append(g.members, member)
	return nil
}

// Permission returns the explicit action stored for a group, NotSet if none
func (c *Connection) Permission(project, scope string, group types.Descriptor, constant string) types.Action {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if act, ok := c.acl[c.aclKey(project, scope, group, constant)]; ok {
		return act
	}
	return types.NotSet
}

func (c *Connection) addIdentity(projectURI, displayName, description string, group, active bool) types.Descriptor {
	d := types.Descriptor{IdentityType: types.UserIdentityType, Identifier: uuid.NewString()}
	if group {
		d.IdentityType = types.GroupIdentityType
	}
	c.identities[d.Identifier] = &identity{
		Identity: types.Identity{
			Descriptor:  d,
			DisplayName: displayName,
			Description: description,
			IsActive:    active,
			IsGroup:     group,
		},
		projectURI: projectURI,
	}
	return d
}

func (c *Connection) findByName(displayName string) *identity {
	for _, id := range c.identities {
		if strings.EqualFold(id.DisplayName, displayName) {
			return id
		}
	}
	return nil
}

func (c *Connection) aclKey(project, scope string, group types.Descriptor, constant string) aclKey {
	return aclKey{project: project, scope: scope, group: group.Identifier, constant: strings.ToUpper(constant)}
}

func (c *Connection) projectByURI(uri string) (types.TeamProject, bool) {
	for _, p := range c.projects {
		if p.URI == uri {
			return p, true
		}
	}
	return types.TeamProject{}, false
}

// ListApplicationGroups implements types.IdentityService
func (c *Connection) ListApplicationGroups(ctx context.Context, projectURI string) ([]types.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("ListApplicationGroups", projectURI); e != nil {
		return nil, e
	}
	if _, ok := c.projectByURI(projectURI); !ok {
		return nil, fmt.Errorf("%w: team project %s", types.ErrNotFound, projectURI)
	}

	out := make([]types.Identity, 0)
	for _, id := range c.identities {
		if id.IsGroup && id.projectURI == projectURI {
			out = append(out, id.Identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor.Identifier < out[j].Descriptor.Identifier })
	return out, nil
}

// ReadIdentity implements types.IdentityService
func (c *Connection) ReadIdentity(ctx context.Context, d types.Descriptor, mode types.MembershipMode) (types.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("ReadIdentity", d.Identifier); e != nil {
		return types.Identity{}, e
	}
	id, ok := c.identities[d.Identifier]
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: identity %s", types.ErrNotFound, d)
	}
	return c.withMembers(id, mode), nil
}

// ReadIdentities implements types.IdentityService
func (c *Connection) ReadIdentities(ctx context.Context, ds []types.Descriptor, mode types.MembershipMode) ([]*types.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(ds))
	for _, d := range ds {
		keys = append(keys, d.Identifier)
	}
	if e := c.record("ReadIdentities", strings.Join(keys, ",")); e != nil {
		return nil, e
	}

	out := make([]*types.Identity, len(ds))
	for i, d := range ds {
		if id, ok := c.identities[d.Identifier]; ok {
			resolved := c.withMembers(id, mode)
			out[i] = &resolved
		}
	}
	return out, nil
}

func (c *Connection) withMembers(id *identity, mode types.MembershipMode) types.Identity {
	res := id.Identity
	switch mode {
	case types.MembershipDirect:
		res.Members = append([]types.Descriptor(nil), id.members...)
	case types.MembershipExpanded:
		res.Members = c.expand(id, make(map[string]struct{}))
	}
	return res
}

// expand collects members of id and of its sub groups, each once
func (c *Connection) expand(id *identity, seen map[string]struct{}) []types.Descriptor {
	out := make([]types.Descriptor, 0, len(id.members))
	for _, m := range id.members {
		if _, ok := seen[m.Identifier]; ok {
			continue
		}
		seen[m.Identifier] = struct{}{}
		out = append(out, m)
		if sub, ok := c.identities[m.Identifier]; ok && sub.IsGroup {
			out = append(out, c.expand(sub, seen)...)
		}
	}
	return out
}

// CreateApplicationGroup implements types.IdentityService
func (c *Connection) CreateApplicationGroup(ctx context.Context, projectURI, name, description string) (types.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("CreateApplicationGroup", projectURI+"/"+name); e != nil {
		return types.Descriptor{}, e
	}
	p, ok := c.projectByURI(projectURI)
	if !ok {
		return types.Descriptor{}, fmt.Errorf("%w: team project %s", types.ErrNotFound, projectURI)
	}
	full := types.GroupFullName(p.Name, name)
	for _, id := range c.identities {
		if id.IsGroup && id.projectURI == projectURI && strings.EqualFold(id.DisplayName, full) {
			return types.Descriptor{}, fmt.Errorf("%w: group %s already exists", types.ErrServiceCall, full)
		}
	}
	return c.addIdentity(projectURI, full, description, true, true), nil
}

// UpdateApplicationGroup implements types.IdentityService
func (c *Connection) UpdateApplicationGroup(ctx context.Context, d types.Descriptor, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("UpdateApplicationGroup", d.Identifier); e != nil {
		return e
	}
	id, ok := c.identities[d.Identifier]
	if !ok || !id.IsGroup {
		return fmt.Errorf("%w: group %s", types.ErrNotFound, d)
	}
	id.Description = description
	return nil
}

// DeleteApplicationGroup implements types.IdentityService
func (c *Connection) DeleteApplicationGroup(ctx context.Context, d types.Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("DeleteApplicationGroup", d.Identifier); e != nil {
		return e
	}
	id, ok := c.identities[d.Identifier]
	if !ok || !id.IsGroup {
		return fmt.Errorf("%w: group %s", types.ErrNotFound, d)
	}

	delete(c.identities, d.Identifier)
	for _, other := range c.identities {
		for i, m := range other.members {
			if m.Identifier == d.Identifier {
				other.members = append(other.members[:i], other.members[i+1:]...)
				break
			}
		}
	}
	for key := range c.acl {
		if key.group == d.Identifier {
			delete(c.acl, key)
		}
	}
	return nil
}

// PermissionGroups implements types.SecurityService
func (c *Connection) PermissionGroups(ctx context.Context) ([]types.PermissionGroup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("PermissionGroups", c.name); e != nil {
		return nil, e
	}
	out := make([]types.PermissionGroup, 0, len(c.catalog))
	for _, g := range c.catalog {
		g.Permissions = append([]types.PermissionDescriptor(nil), g.Permissions...)
		out = append(out, g)
	}
	return out, nil
}

// SetPermission implements types.SecurityService
func (c *Connection) SetPermission(ctx context.Context, target types.PermissionTarget, constant string, act types.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("SetPermission", target.Project.Name+"/"+target.Scope+"/"+constant); e != nil {
		return e
	}
	if _, ok := c.projects[target.Project.Name]; !ok {
		return fmt.Errorf("%w: team project %s", types.ErrNotFound, target.Project.Name)
	}
	if _, ok := c.identities[target.Group.Identifier]; !ok {
		return fmt.Errorf("%w: group %s", types.ErrNotFound, target.Group)
	}
	if !c.inCatalog(target.Scope, constant) {
		return fmt.Errorf("%w: permission %s/%s", types.ErrNotFound, target.Scope, constant)
	}

	key := c.aclKey(target.Project.Name, target.Scope, target.Group, constant)
	switch act {
	case types.Allow, types.Deny:
		c.acl[key] = act
	case types.NotSet:
		delete(c.acl, key)
	default:
		return fmt.Errorf("%w: cannot set permission to %s", types.ErrServiceCall, act)
	}
	return nil
}

// Permissions implements types.SecurityService
func (c *Connection) Permissions(ctx context.Context, project types.TeamProject, group types.Descriptor) ([]types.PermissionRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("Permissions", project.Name+"/"+group.Identifier); e != nil {
		return nil, e
	}
	if _, ok := c.identities[group.Identifier]; !ok {
		return nil, fmt.Errorf("%w: group %s", types.ErrNotFound, group)
	}

	out := make([]types.PermissionRecord, 0)
	for _, g := range c.catalog {
		for _, p := range g.Permissions {
			act, ok := c.acl[c.aclKey(project.Name, p.Scope, group, p.Constant)]
			if !ok {
				act = types.NotSet
			}
			out = append(out, types.PermissionRecord{Scope: p.Scope, Name: p.Constant, Action: act})
		}
	}
	return out, nil
}

func (c *Connection) inCatalog(scope, constant string) bool {
	for _, g := range c.catalog {
		for _, p := range g.Permissions {
			if p.Scope == scope && strings.EqualFold(p.Constant, constant) {
				return true
			}
		}
	}
	return false
}

// ListTeamProjects implements types.ProjectService
func (c *Connection) ListTeamProjects(ctx context.Context) ([]types.TeamProject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("ListTeamProjects", c.name); e != nil {
		return nil, e
	}
	out := make([]types.TeamProject, 0, len(c.projects))
	for _, p := range c.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// TeamProject implements types.ProjectService
func (c *Connection) TeamProject(ctx context.Context, name string) (types.TeamProject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.record("TeamProject", name); e != nil {
		return types.TeamProject{}, e
	}
	for n, p := range c.projects {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return types.TeamProject{}, fmt.Errorf("%w: team project %s", types.ErrNotFound, name)
}
