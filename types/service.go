package types

import "context"

// Connection is an authenticated session to a project collection.
// It is the only way the reconciliation logic talks to a server.
type Connection interface {
	IdentityService
	SecurityService
	ProjectService

	// Name of the project collection, used in logs and messages
	Name() string
}

// IdentityService lists and manages application groups
type IdentityService interface {
	// ListApplicationGroups returns all application groups scoped to the project, active or not
	ListApplicationGroups(ctx context.Context, projectURI string) ([]Identity, error)

	// ReadIdentity reads a single identity, resolving its members as the mode says
	ReadIdentity(ctx context.Context, d Descriptor, mode MembershipMode) (Identity, error)

	// ReadIdentities reads identities in bulk, unknown descriptors yield nil entries
	ReadIdentities(ctx context.Context, ds []Descriptor, mode MembershipMode) ([]*Identity, error)

	// CreateApplicationGroup creates a group scoped to the project
	CreateApplicationGroup(ctx context.Context, projectURI, name, description string) (Descriptor, error)

	// UpdateApplicationGroup changes the description of a group
	UpdateApplicationGroup(ctx context.Context, d Descriptor, description string) error

	// DeleteApplicationGroup removes a group
	DeleteApplicationGroup(ctx context.Context, d Descriptor) error
}

// SecurityService reads the permission catalog and gets or sets access control entries
type SecurityService interface {
	// PermissionGroups returns the catalog of controllable permissions
	PermissionGroups(ctx context.Context) ([]PermissionGroup, error)

	// SetPermission sets the allow or deny bit of one permission, NotSet clears both
	SetPermission(ctx context.Context, target PermissionTarget, constant string, act Action) error

	// Permissions returns the explicit state of every catalog permission for a group in a project
	Permissions(ctx context.Context, project TeamProject, group Descriptor) ([]PermissionRecord, error)
}

// ProjectService lists team projects
type ProjectService interface {
	ListTeamProjects(ctx context.Context) ([]TeamProject, error)
	TeamProject(ctx context.Context, name string) (TeamProject, error)
}
