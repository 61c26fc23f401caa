package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/go-logr/logr"

	"github.com/supremind/tpsec"
	"github.com/supremind/tpsec/fake"
	"github.com/supremind/tpsec/internal/storage"
	"github.com/supremind/tpsec/task"
	"github.com/supremind/tpsec/types"
)

type cli struct {
	m         *tpsec.Manager
	conn      *fake.Connection
	persister types.ChangeSetPersister
	resolver  storage.Resolver
	log       logr.Logger
}

func (c *cli) progress() task.Option {
	return task.WithProgress(func(p task.Progress) {
		c.log.V(1).Info(p.Status, "step", p.Step+1, "total", p.Total, "warnings", p.Warnings)
	})
}

// report prints warnings and the summary of a finished task
func report[T any](res task.Result[T]) error {
	for _, w := range res.Warnings {
		color.New(color.FgYellow).Fprintf(os.Stderr, "Warning: %v\n", w)
	}
	if res.Err != nil {
		return res.Err
	}
	if res.Canceled {
		color.New(color.FgYellow).Fprintln(os.Stderr, "Canceled, results are partial")
	}
	color.New(color.FgGreen).Fprintln(os.Stderr, res.Summary)
	return nil
}

// projects resolves team project names, all projects if none given
func (c *cli) projects(ctx context.Context, names []string) ([]types.TeamProject, error) {
	if len(names) == 0 {
		return c.conn.ListTeamProjects(ctx)
	}
	out := make([]types.TeamProject, 0, len(names))
	for _, name := range names {
		p, err := c.conn.TeamProject(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *cli) groups(ctx context.Context, projectNames, groupNames []string, mode types.MembershipMode) ([]types.SecurityGroupInfo, error) {
	projects, err := c.projects(ctx, projectNames)
	if err != nil {
		return nil, err
	}
	res := c.m.ListGroups(ctx, projects, mode, c.progress()).Wait()
	if err := report(res); err != nil {
		return nil, err
	}
	if len(groupNames) == 0 {
		return res.Value, nil
	}

	out := make([]types.SecurityGroupInfo, 0, len(groupNames))
	for _, g := range res.Value {
		for _, name := range groupNames {
			if strings.EqualFold(g.Name, name) {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

func (c *cli) listProjects(ctx context.Context) error {
	projects, err := c.conn.ListTeamProjects(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("NAME\tURI"))
	for _, p := range projects {
		fmt.Fprintf(w, "%s\t%s\n", p.Name, p.URI)
	}
	return w.Flush()
}

func (c *cli) listGroups(ctx context.Context, projectNames []string, membership string) error {
	mode := types.MembershipNone
	if membership != "" {
		var err error
		if mode, err = types.ParseMembershipMode(membership); err != nil {
			return err
		}
	}

	groups, err := c.groups(ctx, projectNames, nil, mode)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("PROJECT\tNAME\tDESCRIPTION\tMEMBERS"))
	for _, g := range groups {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.TeamProject.Name, g.Name, g.Description, g.MembersList)
	}
	return w.Flush()
}

func (c *cli) deleteGroups(ctx context.Context, projectNames, groupNames []string) (bool, error) {
	groups, err := c.groups(ctx, projectNames, groupNames, types.MembershipNone)
	if err != nil {
		return false, err
	}
	if len(groups) == 0 {
		color.New(color.FgYellow).Fprintln(os.Stderr, "No matching security groups")
		return false, nil
	}

	res := c.m.DeleteGroups(ctx, groups, c.progress()).Wait()
	return mayHaveChanged(res), report(res)
}

func (c *cli) template(ctx context.Context, location string, force bool) error {
	if !force {
		exists, err := storage.LocationExists(ctx, c.resolver, location)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s already exists, use --force to overwrite it", location)
		}
	}
	c.m.ResetPermissionChanges()
	if err := c.m.SavePermissions(ctx, location); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "Saved %s to %s\n", task.CountString(len(c.m.SecurityGroupChange().Changes()), "permission"), location)
	return nil
}

func (c *cli) show(ctx context.Context, location string) error {
	if err := c.m.LoadPermissions(ctx, location); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("SCOPE\tPERMISSION\tDISPLAY NAME\tACTION"))
	for _, p := range c.m.SecurityGroupChange().Pending() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Permission.Scope, p.Permission.Constant, p.Permission.DisplayName, actionColor(p.Action).Sprint(p.Action))
	}
	return w.Flush()
}

func (c *cli) catalog() {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, color.New(color.Bold).Sprint("GROUP\tSCOPE\tPERMISSION\tDISPLAY NAME"))
	for _, g := range c.m.PermissionGroups() {
		for _, p := range g.Permissions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.DisplayName, p.Scope, p.Constant, p.DisplayName)
		}
	}
	w.Flush()
}

func (c *cli) diff(ctx context.Context, from, to string) error {
	a, err := c.persister.Load(ctx, from)
	if err != nil {
		return err
	}
	b, err := c.persister.Load(ctx, to)
	if err != nil {
		return err
	}

	diff, err := tpsec.DiffRecords(a, b, from, to)
	if err != nil {
		return err
	}
	if diff == "" {
		color.New(color.FgGreen).Fprintln(os.Stderr, "No differences")
		return nil
	}

	scanner := bufio.NewScanner(strings.NewReader(diff))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			color.New(color.Bold).Println(line)
		case strings.HasPrefix(line, "+"):
			color.New(color.FgGreen).Println(line)
		case strings.HasPrefix(line, "-"):
			color.New(color.FgRed).Println(line)
		case strings.HasPrefix(line, "@@"):
			color.New(color.FgCyan).Println(line)
		default:
			fmt.Println(line)
		}
	}
	return scanner.Err()
}

func (c *cli) apply(ctx context.Context, template, name, description string, projectNames []string) (bool, error) {
	if err := c.m.LoadPermissions(ctx, template); err != nil {
		return false, err
	}
	change := c.m.SecurityGroupChange()
	change.Name = name
	change.Description = description

	projects, err := c.projects(ctx, projectNames)
	if err != nil {
		return false, err
	}

	res := c.m.AddOrUpdateGroup(ctx, projects, c.progress()).Wait()
	return mayHaveChanged(res) || len(res.Warnings) > 0, report(res)
}

func (c *cli) export(ctx context.Context, root string, projectNames, groupNames []string) error {
	groups, err := c.groups(ctx, projectNames, groupNames, types.MembershipNone)
	if err != nil {
		return err
	}
	res := c.m.ExportPermissions(ctx, tpsec.ExportRequests(groups, root), c.progress()).Wait()
	return report(res)
}

// mayHaveChanged tells if a task counting changed items could have changed the collection,
// an unexpected failure loses the count of what was done before it
func mayHaveChanged(res task.Result[int]) bool {
	return res.Value > 0 || errors.Is(res.Err, types.ErrUnexpected)
}

func actionColor(act types.Action) *color.Color {
	switch act {
	case types.Allow:
		return color.New(color.FgGreen)
	case types.Deny:
		return color.New(color.FgRed)
	}
	return color.New(color.FgYellow)
}
