package fake

import (
	"context"
	"fmt"
	"sort"

	"github.com/supremind/tpsec/types"
	"gopkg.in/yaml.v3"
)

// Snapshot is the YAML form of a collection
type Snapshot struct {
	Name     string            `yaml:"name"`
	Catalog  []CatalogGroup    `yaml:"catalog,omitempty"`
	Users    []string          `yaml:"users,omitempty"`
	Projects []ProjectSnapshot `yaml:"projects"`
}

// CatalogGroup is a permission group of the catalog
type CatalogGroup struct {
	Scope       string              `yaml:"scope"`
	Name        string              `yaml:"name"`
	Permissions []CatalogPermission `yaml:"permissions"`
}

// CatalogPermission is a single catalog entry
type CatalogPermission struct {
	Constant string `yaml:"constant"`
	Name     string `yaml:"name"`
}

// ProjectSnapshot is a team project and its application groups
type ProjectSnapshot struct {
	Name   string          `yaml:"name"`
	Groups []GroupSnapshot `yaml:"groups,omitempty"`
}

// GroupSnapshot is an application group, members are display names of users or full names of groups
type GroupSnapshot struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Inactive    bool                 `yaml:"inactive,omitempty"`
	Members     []string             `yaml:"members,omitempty"`
	Permissions []PermissionSnapshot `yaml:"permissions,omitempty"`
}

// PermissionSnapshot is an explicit access control entry of a group
type PermissionSnapshot struct {
	Scope      string       `yaml:"scope"`
	Permission string       `yaml:"permission"`
	Action     types.Action `yaml:"action"`
}

// LoadSnapshot builds a collection from its YAML form
func LoadSnapshot(data []byte) (*Connection, error) {
	var s Snapshot
	if e := yaml.Unmarshal(data, &s); e != nil {
		return nil, fmt.Errorf("%w: collection snapshot: %v", types.ErrParse, e)
	}
	return FromSnapshot(s)
}

// FromSnapshot builds a collection from a Snapshot
func FromSnapshot(s Snapshot) (*Connection, error) {
	catalog := make([]types.PermissionGroup, 0, len(s.Catalog))
	for _, cg := range s.Catalog {
		g := types.PermissionGroup{Scope: cg.Scope, DisplayName: cg.Name}
		for _, cp := range cg.Permissions {
			g.Permissions = append(g.Permissions, types.PermissionDescriptor{Scope: cg.Scope, Constant: cp.Constant, DisplayName: cp.Name})
		}
		catalog = append(catalog, g)
	}

	c := NewConnection(s.Name, catalog...)
	for _, u := range s.Users {
		c.AddUser(u)
	}

	type pending struct {
		group   types.Descriptor
		members []string
	}
	memberships := make([]pending, 0)
	byFullName := make(map[string]types.Descriptor)

	for _, ps := range s.Projects {
		project := c.AddProject(ps.Name)
		for _, gs := range ps.Groups {
			d := c.AddGroup(project, gs.Name, gs.Description)
			if gs.Inactive {
				c.Deactivate(d)
			}
			byFullName[types.GroupFullName(project.Name, gs.Name)] = d
			memberships = append(memberships, pending{group: d, members: gs.Members})

			for _, perm := range gs.Permissions {
				if !perm.Action.IsChange() {
					continue
				}
				target := types.PermissionTarget{Project: project, Scope: perm.Scope, Group: d}
				if e := c.SetPermission(context.Background(), target, perm.Permission, perm.Action); e != nil {
					return nil, fmt.Errorf("%w: group %s: %v", types.ErrParse, gs.Name, e)
				}
			}
		}
	}

	for _, m := range memberships {
		for _, name := range m.members {
			member, ok := byFullName[name]
			if !ok {
				member = c.AddUser(name)
			}
			if e := c.AddMember(m.group, member); e != nil {
				return nil, fmt.Errorf("%w: %v", types.ErrParse, e)
			}
		}
	}

	c.ResetCalls()
	return c, nil
}

// Snapshot captures the current state of the collection
func (c *Connection) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{Name: c.name}
	for _, g := range c.catalog {
		cg := CatalogGroup{Scope: g.Scope, Name: g.DisplayName}
		for _, p := range g.Permissions {
			cg.Permissions = append(cg.Permissions, CatalogPermission{Constant: p.Constant, Name: p.DisplayName})
		}
		s.Catalog = append(s.Catalog, cg)
	}

	for _, id := range c.identities {
		if !id.IsGroup {
			s.Users = append(s.Users, id.DisplayName)
		}
	}
	sort.Strings(s.Users)

	projects := make([]types.TeamProject, 0, len(c.projects))
	for _, p := range c.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	for _, p := range projects {
		ps := ProjectSnapshot{Name: p.Name}
		for _, id := range c.identities {
			if !id.IsGroup || id.projectURI != p.URI {
				continue
			}
			gs := GroupSnapshot{
				Name:        types.ShortGroupName(id.DisplayName),
				Description: id.Description,
				Inactive:    !id.IsActive,
			}
			for _, m := range id.members {
				if member, ok := c.identities[m.Identifier]; ok {
					gs.Members = append(gs.Members, member.DisplayName)
				}
			}
			for key, act := range c.acl {
				if key.project == p.Name && key.group == id.Descriptor.Identifier {
					gs.Permissions = append(gs.Permissions, PermissionSnapshot{Scope: key.scope, Permission: c.constantName(key.scope, key.constant), Action: act})
				}
			}
			sort.Slice(gs.Permissions, func(i, j int) bool {
				if gs.Permissions[i].Scope != gs.Permissions[j].Scope {
					return gs.Permissions[i].Scope < gs.Permissions[j].Scope
				}
				return gs.Permissions[i].Permission < gs.Permissions[j].Permission
			})
			ps.Groups = append(ps.Groups, gs)
		}
		sort.Slice(ps.Groups, func(i, j int) bool { return ps.Groups[i].Name < ps.Groups[j].Name })
		s.Projects = append(s.Projects, ps)
	}

	return s
}

// MarshalSnapshot renders the current state of the collection as YAML
func (c *Connection) MarshalSnapshot() ([]byte, error) {
	return yaml.Marshal(c.Snapshot())
}

// constantName restores the catalog spelling of an upper cased constant
func (c *Connection) constantName(scope, upper string) string {
	for _, g := range c.catalog {
		for _, p := range g.Permissions {
			if p.Scope == scope && c.aclKey("", scope, types.Descriptor{}, p.Constant).constant == upper {
				return p.Constant
			}
		}
	}
	return upper
}
