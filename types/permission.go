package types

// PermissionDescriptor identifies a single controllable permission in a security namespace
type PermissionDescriptor struct {
	// Scope is the namespace the permission belongs to, like "Project" or "Build"
	Scope string
	// Constant is the key the server knows the permission by, like "GENERIC_READ"
	Constant string
	// DisplayName is for humans only
	DisplayName string
}

// PermissionGroup is a named set of permissions sharing one scope
type PermissionGroup struct {
	Scope       string
	DisplayName string
	Permissions []PermissionDescriptor
}

// PermissionRecord is the persisted form of a permission change
type PermissionRecord struct {
	Scope  string
	Name   string
	Action Action
}

// PermissionTarget addresses the access control entry of a group in one scope of a team project
type PermissionTarget struct {
	Project TeamProject
	Scope   string
	Group   Descriptor
}
