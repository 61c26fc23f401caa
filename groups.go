package tpsec

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/supremind/tpsec/task"
	"github.com/supremind/tpsec/types"
)

// ListGroups retrieves the active application groups of the team projects, ordered by name per project.
// A team project which fails is reported as a warning, and the groups read before the failure are kept.
func (m *Manager) ListGroups(ctx context.Context, projects []types.TeamProject, mode types.MembershipMode, opts ...task.Option) *task.Future[[]types.SecurityGroupInfo] {
	return startTask(ctx, m, "Retrieving security groups", len(projects), opts,
		func(ctx context.Context, t *task.Task, conn types.Connection) ([]types.SecurityGroupInfo, string, error) {
			groups := listGroups(ctx, t, conn, projects, mode)
			return groups, "Retrieved " + task.CountString(len(groups), "security group"), nil
		})
}

func listGroups(ctx context.Context, t *task.Task, conn types.Connection, projects []types.TeamProject, mode types.MembershipMode) []types.SecurityGroupInfo {
	groups := make([]types.SecurityGroupInfo, 0)
	for step, project := range projects {
		t.SetProgress(step, fmt.Sprintf("Processing Team Project %q", project.Name))

		if e := listProjectGroups(ctx, t, conn, project, mode, &groups); e != nil {
			t.SetWarning(fmt.Sprintf("An error occurred while processing Team Project %q", project.Name), e)
		}
		if t.IsCanceled(ctx) {
			break
		}
	}
	return groups
}

// listProjectGroups appends groups of one project to out as they are read
func listProjectGroups(ctx context.Context, t *task.Task, conn types.Connection, project types.TeamProject, mode types.MembershipMode, out *[]types.SecurityGroupInfo) error {
	identities, e := conn.ListApplicationGroups(ctx, project.URI)
	if e != nil {
		return e
	}

	active := make([]types.Identity, 0, len(identities))
	for _, id := range identities {
		if id.IsActive {
			active = append(active, id)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return strings.ToLower(active[i].DisplayName) < strings.ToLower(active[j].DisplayName)
	})

	for _, group := range active {
		members := make([]string, 0)
		if mode != types.MembershipNone {
			withMembers, e := conn.ReadIdentity(ctx, group.Descriptor, mode)
			if e != nil {
				return e
			}
			if len(withMembers.Members) > 0 {
				resolved, e := conn.ReadIdentities(ctx, withMembers.Members, mode)
				if e != nil {
					return e
				}
				for _, member := range resolved {
					if member != nil {
						members = append(members, member.DisplayName)
					}
				}
			}
		}

		*out = append(*out, types.NewSecurityGroupInfo(project, group.Descriptor.Identifier, group.DisplayName, group.Description, members))
		if t.IsCanceled(ctx) {
			return nil
		}
	}
	return nil
}

// DeleteGroups deletes the security groups one by one, and returns how many were deleted
func (m *Manager) DeleteGroups(ctx context.Context, groups []types.SecurityGroupInfo, opts ...task.Option) *task.Future[int] {
	return startTask(ctx, m, "Deleting security groups", len(groups), opts,
		func(ctx context.Context, t *task.Task, conn types.Connection) (int, string, error) {
			count := deleteGroups(ctx, t, conn, groups)
			return count, "Deleted " + task.CountString(count, "security group"), nil
		})
}

func deleteGroups(ctx context.Context, t *task.Task, conn types.Connection, groups []types.SecurityGroupInfo) int {
	count := 0
	for step, group := range groups {
		t.SetProgress(step, fmt.Sprintf("Deleting security group %q in Team Project %q", group.Name, group.TeamProject.Name))

		d := types.Descriptor{IdentityType: types.GroupIdentityType, Identifier: group.Sid}
		if e := conn.DeleteApplicationGroup(ctx, d); e != nil {
			t.SetWarning(fmt.Sprintf("An error occurred while deleting security group %q in Team Project %q", group.Name, group.TeamProject.Name), e)
		} else {
			count++
		}
		if t.IsCanceled(ctx) {
			break
		}
	}
	return count
}
