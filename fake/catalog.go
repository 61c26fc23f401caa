package fake

import "github.com/supremind/tpsec/types"

// security namespaces of the default catalog
const (
	ProjectScope = "Project"
	BuildScope   = "Build"
	CSSScope     = "CSS"
)

// DefaultCatalog returns the permissions a freshly installed collection exposes per team project
func DefaultCatalog() []types.PermissionGroup {
	project := func(constant, name string) types.PermissionDescriptor {
		return types.PermissionDescriptor{Scope: ProjectScope, Constant: constant, DisplayName: name}
	}
	build := func(constant, name string) types.PermissionDescriptor {
		return types.PermissionDescriptor{Scope: BuildScope, Constant: constant, DisplayName: name}
	}
	css := func(constant, name string) types.PermissionDescriptor {
		return types.PermissionDescriptor{Scope: CSSScope, Constant: constant, DisplayName: name}
	}

	return []types.PermissionGroup{
		{
			Scope:       ProjectScope,
			DisplayName: "Team Project",
			Permissions: []types.PermissionDescriptor{
				project("GENERIC_READ", "View project-level information"),
				project("GENERIC_WRITE", "Edit project-level information"),
				project("DELETE", "Delete team project"),
				project("PUBLISH_TEST_RESULTS", "Create test runs"),
				project("MANAGE_TEST_CONFIGURATIONS", "Manage test configurations"),
				project("MANAGE_TEST_ENVIRONMENTS", "Manage test environments"),
				project("START_BUILD", "Start a build"),
			},
		},
		{
			Scope:       BuildScope,
			DisplayName: "Build",
			Permissions: []types.PermissionDescriptor{
				build("ViewBuilds", "View builds"),
				build("EditBuildQuality", "Edit build quality"),
				build("QueueBuilds", "Queue builds"),
				build("DeleteBuilds", "Delete builds"),
				build("EditBuildDefinition", "Edit build definition"),
				build("AdministerBuildPermissions", "Administer build permissions"),
			},
		},
		{
			Scope:       CSSScope,
			DisplayName: "Areas",
			Permissions: []types.PermissionDescriptor{
				css("GENERIC_READ", "View this node"),
				css("WORK_ITEM_READ", "View work items in this node"),
				css("WORK_ITEM_WRITE", "Edit work items in this node"),
				css("CREATE_CHILDREN", "Create child nodes"),
			},
		},
	}
}
