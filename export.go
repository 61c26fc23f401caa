package tpsec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/supremind/tpsec/task"
	"github.com/supremind/tpsec/types"
)

// ExportRequest asks to save the current permissions of a group to a location
type ExportRequest struct {
	Group    types.SecurityGroupInfo
	Location string
}

// ExportRequests places one file per group under root, in a folder per team project.
// A single group is exported to root itself.
func ExportRequests(groups []types.SecurityGroupInfo, root string) []ExportRequest {
	if len(groups) == 1 {
		return []ExportRequest{{Group: groups[0], Location: root}}
	}

	out := make([]ExportRequest, 0, len(groups))
	for _, g := range groups {
		var location string
		if strings.Contains(root, "://") {
			location = strings.TrimSuffix(root, "/") + "/" + g.TeamProject.Name + "/" + g.Name + ".xml"
		} else {
			location = filepath.Join(root, g.TeamProject.Name, g.Name+".xml")
		}
		out = append(out, ExportRequest{Group: g, Location: location})
	}
	return out
}

// ExportPermissions saves the permissions of each requested group, and returns how many were exported.
// Permissions without an explicit allow or deny are saved as NotSet.
func (m *Manager) ExportPermissions(ctx context.Context, requests []ExportRequest, opts ...task.Option) *task.Future[int] {
	title := "Exporting " + task.CountString(len(requests), "security group permission")
	return startTask(ctx, m, title, len(requests), opts,
		func(ctx context.Context, t *task.Task, conn types.Connection) (int, string, error) {
			count := 0
			for step, req := range requests {
				t.SetProgress(step, fmt.Sprintf("Exporting security group %q in Team Project %q", req.Group.Name, req.Group.TeamProject.Name))

				if e := m.export(ctx, conn, req); e != nil {
					t.SetWarning(fmt.Sprintf("An error occurred while exporting security group %q in Team Project %q", req.Group.Name, req.Group.TeamProject.Name), e)
				} else {
					count++
				}
				if t.IsCanceled(ctx) {
					break
				}
			}
			return count, "Exported " + task.CountString(count, "security group permission"), nil
		})
}

func (m *Manager) export(ctx context.Context, conn types.Connection, req ExportRequest) error {
	d := types.Descriptor{IdentityType: types.GroupIdentityType, Identifier: req.Group.Sid}
	records, e := conn.Permissions(ctx, req.Group.TeamProject, d)
	if e != nil {
		return e
	}
	return m.persister.Save(ctx, req.Location, records)
}
