package types

import (
	"fmt"
	"strings"
)

// TeamProject is a named project container within a project collection
type TeamProject struct {
	Name string
	URI  string
}

// Descriptor identifies an identity on the server
type Descriptor struct {
	IdentityType string
	Identifier   string
}

func (d Descriptor) String() string {
	return d.IdentityType + ";" + d.Identifier
}

// identity types known to the collaborators
const (
	GroupIdentityType = "Microsoft.TeamFoundation.Identity"
	UserIdentityType  = "System.Security.Principal.WindowsIdentity"
)

// Identity is a user or a group as read from the identity service
type Identity struct {
	Descriptor  Descriptor
	DisplayName string
	Description string
	IsActive    bool
	IsGroup     bool
	// Members is only filled when the identity is read with a membership mode other than MembershipNone
	Members []Descriptor
}

// MembershipMode controls whether group membership is resolved and how deeply
type MembershipMode uint8

// membership modes
const (
	MembershipNone MembershipMode = iota
	MembershipDirect
	MembershipExpanded
)

func (m MembershipMode) String() string {
	switch m {
	case MembershipNone:
		return "None"
	case MembershipDirect:
		return "Direct"
	case MembershipExpanded:
		return "Expanded"
	}
	return "unknown"
}

// ParseMembershipMode parses a serialized MembershipMode, ignoring case
func ParseMembershipMode(s string) (MembershipMode, error) {
	for _, m := range []MembershipMode{MembershipNone, MembershipDirect, MembershipExpanded} {
		if strings.EqualFold(m.String(), strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return MembershipNone, fmt.Errorf("%w: unknown membership mode %q", ErrParse, s)
}

// SecurityGroupInfo is a snapshot of one application security group
type SecurityGroupInfo struct {
	TeamProject TeamProject
	Sid         string
	FullName    string
	Name        string
	Description string
	Members     []string
	MembersList string
}

// NewSecurityGroupInfo builds a SecurityGroupInfo, deriving the short name from the full name
func NewSecurityGroupInfo(project TeamProject, sid, fullName, description string, members []string) SecurityGroupInfo {
	if members == nil {
		members = []string{}
	}
	return SecurityGroupInfo{
		TeamProject: project,
		Sid:         sid,
		FullName:    fullName,
		Name:        ShortGroupName(fullName),
		Description: description,
		Members:     members,
		MembersList: strings.Join(members, "; "),
	}
}

// ShortGroupName strips everything up to the last path separator of a full group name:
// "[Project]\Readers" becomes "Readers"
func ShortGroupName(fullName string) string {
	if i := strings.LastIndexByte(fullName, '\\'); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}

// GroupFullName is the reverse of ShortGroupName for groups scoped to a team project
func GroupFullName(project, name string) string {
	return "[" + project + "]\\" + name
}
