package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/go-logr/stdr"

	"github.com/supremind/tpsec"
	"github.com/supremind/tpsec/fake"
	"github.com/supremind/tpsec/internal/config"
	"github.com/supremind/tpsec/internal/storage"
	"github.com/supremind/tpsec/persist/filter"
	"github.com/supremind/tpsec/persist/xmlfile"
)

var (
	app = kingpin.New("tpsec", "Manage security groups and their permissions across team projects")

	// unset flags fall back to TPSEC_ environment variables, see internal/config
	collection = app.Flag("collection", "Collection snapshot, a local path or s3://bucket/key").String()
	s3Region   = app.Flag("s3-region", "AWS region for s3:// locations").String()
	verbosity  = app.Flag("verbose", "More logs, -vvvv logs every server call").Short('v').Counter()
	noColor    = app.Flag("no-color", "Disable colored output").Bool()

	projectsCmd     = app.Command("projects", "Team project commands")
	projectsListCmd = projectsCmd.Command("list", "List team projects")

	groupsCmd            = app.Command("groups", "Security group commands")
	groupsListCmd        = groupsCmd.Command("list", "List security groups")
	groupsListProjects   = groupsListCmd.Flag("project", "Team project, all if omitted").Short('p').Strings()
	groupsListMembership = groupsListCmd.Flag("membership", "Members to resolve: none, direct or expanded").String()
	groupsDeleteCmd      = groupsCmd.Command("delete", "Delete security groups")
	groupsDeleteProjects = groupsDeleteCmd.Flag("project", "Team project, all if omitted").Short('p').Strings()
	groupsDeleteNames    = groupsDeleteCmd.Arg("name", "Short group name").Required().Strings()

	permissionsCmd           = app.Command("permissions", "Permission change set commands")
	permissionsTemplateCmd   = permissionsCmd.Command("template", "Save an all-Inherit change set to edit")
	permissionsTemplateOut   = permissionsTemplateCmd.Arg("location", "Where to save the change set").Required().String()
	permissionsTemplateForce = permissionsTemplateCmd.Flag("force", "Overwrite an existing change set").Bool()
	permissionsShowCmd       = permissionsCmd.Command("show", "Show the changes a saved change set would make")
	permissionsShowLocation  = permissionsShowCmd.Arg("location", "Saved change set").Required().String()
	permissionsCatalogCmd    = permissionsCmd.Command("catalog", "List the permission catalog")
	permissionsDiffCmd       = permissionsCmd.Command("diff", "Compare two saved change sets")
	permissionsDiffFrom      = permissionsDiffCmd.Arg("from", "Saved change set").Required().String()
	permissionsDiffTo        = permissionsDiffCmd.Arg("to", "Saved change set").Required().String()

	applyCmd         = app.Command("apply", "Add or update a security group in team projects")
	applyTemplate    = applyCmd.Flag("template", "Saved change set to apply").Required().String()
	applyName        = applyCmd.Flag("name", "Short group name").Required().String()
	applyDescription = applyCmd.Flag("description", "Group description").String()
	applyProjects    = applyCmd.Flag("project", "Team project, all if omitted").Short('p').Strings()

	exportCmd      = app.Command("export", "Export permissions of security groups")
	exportOut      = exportCmd.Flag("out", "File for a single group, else root folder or s3://bucket/prefix with one file per group").Required().String()
	exportProjects = exportCmd.Flag("project", "Team project, all if omitted").Short('p').Strings()
	exportGroups   = exportCmd.Flag("group", "Short group name, all if omitted").Short('g').Strings()
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	if *collection == "" {
		*collection = env.Collection
	}
	if *s3Region == "" {
		*s3Region = env.S3Region
	}
	if *groupsListMembership == "" {
		*groupsListMembership = env.Membership
	}

	color.NoColor = color.NoColor || *noColor || env.NoColor
	stdr.SetVerbosity(max(*verbosity, env.LogVerbosity))
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolver := storage.DefaultResolver{S3Region: *s3Region}
	data, err := storage.ReadLocation(ctx, resolver, *collection)
	if err != nil {
		fail(fmt.Errorf("read collection %s: %w", *collection, err))
	}
	conn, err := fake.LoadSnapshot(data)
	if err != nil {
		fail(err)
	}

	persister := filter.NewChangeSetPersister(
		xmlfile.New(xmlfile.WithLogger(logger.WithName("xml persister")), xmlfile.WithS3Region(*s3Region)),
		logger.WithName("persister filter"),
	)
	m, err := tpsec.New(ctx, tpsec.WithConnection(conn), tpsec.WithPersister(persister), tpsec.WithLogger(logger))
	if err != nil {
		fail(err)
	}

	c := &cli{m: m, conn: conn, persister: persister, resolver: resolver, log: logger}

	var changed bool
	switch command {
	case projectsListCmd.FullCommand():
		err = c.listProjects(ctx)
	case groupsListCmd.FullCommand():
		err = c.listGroups(ctx, *groupsListProjects, *groupsListMembership)
	case groupsDeleteCmd.FullCommand():
		changed, err = c.deleteGroups(ctx, *groupsDeleteProjects, *groupsDeleteNames)
	case permissionsTemplateCmd.FullCommand():
		err = c.template(ctx, *permissionsTemplateOut, *permissionsTemplateForce)
	case permissionsShowCmd.FullCommand():
		err = c.show(ctx, *permissionsShowLocation)
	case permissionsCatalogCmd.FullCommand():
		c.catalog()
	case permissionsDiffCmd.FullCommand():
		err = c.diff(ctx, *permissionsDiffFrom, *permissionsDiffTo)
	case applyCmd.FullCommand():
		changed, err = c.apply(ctx, *applyTemplate, *applyName, *applyDescription, *applyProjects)
	case exportCmd.FullCommand():
		err = c.export(ctx, *exportOut, *exportProjects, *exportGroups)
	}
	if err := commit(err, changed, resolver, *collection, conn); err != nil {
		fail(err)
	}
}

// commit writes the collection back if the command changed it, even when the command failed half way
func commit(err error, changed bool, resolver storage.Resolver, location string, conn *fake.Connection) error {
	if !changed {
		return err
	}
	return errors.Join(err, writeCollection(resolver, location, conn))
}

func writeCollection(resolver storage.Resolver, location string, conn *fake.Connection) error {
	data, err := conn.MarshalSnapshot()
	if err != nil {
		return err
	}
	if err := storage.WriteLocation(context.Background(), resolver, location, data); err != nil {
		return fmt.Errorf("write collection %s: %w", location, err)
	}
	return nil
}

func fail(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
