package tpsec

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/supremind/tpsec/task"
	"github.com/supremind/tpsec/types"
)

// Apply makes sure the security group named by change exists in the team project with the described
// description, then issues one SetPermission call per permission whose action is not Inherit.
// A failing permission does not stop the others: all failures are returned joined, each wrapping ErrServiceCall.
// When ctx is done before every permission was set, the failures so far are returned, or ctx.Err() if there were none.
func Apply(ctx context.Context, conn types.Connection, projectName string, change *SecurityGroupChange, l logr.Logger) error {
	if conn == nil {
		return types.ErrNoConnection
	}

	project, e := conn.TeamProject(ctx, projectName)
	if e != nil {
		return fmt.Errorf("find team project %q: %w", projectName, e)
	}

	group, e := ensureGroup(ctx, conn, project, change, l)
	if e != nil {
		return e
	}

	var errs []error
	for _, p := range change.Pending() {
		if e := ctx.Err(); e != nil {
			if len(errs) == 0 {
				return e
			}
			break
		}

		target := types.PermissionTarget{Project: project, Scope: p.Permission.Scope, Group: group}
		l.V(4).Info("set permission", "project", project.Name, "group", change.Name, "scope", p.Permission.Scope, "permission", p.Permission.Constant, "action", p.Action)
		if e := conn.SetPermission(ctx, target, p.Permission.Constant, p.Action); e != nil {
			errs = append(errs, fmt.Errorf("%w: set %s/%s to %s: %w", types.ErrServiceCall, p.Permission.Scope, p.Permission.Constant, p.Action, e))
		}
	}

	return errors.Join(errs...)
}

// ensureGroup finds the group by its short name, creating it or updating its description as needed
func ensureGroup(ctx context.Context, conn types.Connection, project types.TeamProject, change *SecurityGroupChange, l logr.Logger) (types.Descriptor, error) {
	groups, e := conn.ListApplicationGroups(ctx, project.URI)
	if e != nil {
		return types.Descriptor{}, fmt.Errorf("list groups of %q: %w", project.Name, e)
	}

	for _, g := range groups {
		if !strings.EqualFold(types.ShortGroupName(g.DisplayName), change.Name) {
			continue
		}
		if g.Description != change.Description {
			l.V(4).Info("update group", "project", project.Name, "group", change.Name)
			if e := conn.UpdateApplicationGroup(ctx, g.Descriptor, change.Description); e != nil {
				return types.Descriptor{}, fmt.Errorf("update group %q: %w", change.Name, e)
			}
		}
		return g.Descriptor, nil
	}

	l.V(4).Info("create group", "project", project.Name, "group", change.Name)
	d, e := conn.CreateApplicationGroup(ctx, project.URI, change.Name, change.Description)
	if e != nil {
		return types.Descriptor{}, fmt.Errorf("create group %q: %w", change.Name, e)
	}
	return d, nil
}

// AddOrUpdateGroup applies the current change set to every team project, and returns
// how many projects were fully applied. Each failing project yields one warning.
func (m *Manager) AddOrUpdateGroup(ctx context.Context, projects []types.TeamProject, opts ...task.Option) *task.Future[int] {
	m.mu.RLock()
	change := m.change.Clone()
	m.mu.RUnlock()

	if e := change.Validate(); e != nil {
		return task.Failed[int](e)
	}

	l := m.log.WithName("apply")
	return startTask(ctx, m, "Adding / updating security groups", len(projects), opts,
		func(ctx context.Context, t *task.Task, conn types.Connection) (int, string, error) {
			count := 0
			for step, project := range projects {
				t.SetProgress(step, fmt.Sprintf("Adding / updating security group %q for Team Project %q", change.Name, project.Name))

				e := Apply(ctx, conn, project.Name, change, l)
				switch {
				case e == nil:
					count++
				case interrupted(e):
				default:
					t.SetWarning(fmt.Sprintf("An error occurred while adding / updating security group %q for Team Project %q", change.Name, project.Name), e)
				}
				if t.IsCanceled(ctx) {
					break
				}
			}
			return count, "Added / updated " + task.CountString(count, "security group"), nil
		})
}

// interrupted tells if e only reports that the work was canceled, with no failed server call
func interrupted(e error) bool {
	if errors.Is(e, types.ErrServiceCall) {
		return false
	}
	return errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded)
}
