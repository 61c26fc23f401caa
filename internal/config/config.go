// Package config loads command line defaults from TPSEC_ environment variables
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/supremind/tpsec/types"
)

const namespace = "TPSEC"

// Env holds defaults for the command line, flags override them
type Env struct {
	// Collection is the location of the collection snapshot, on local disk or s3://bucket/key
	Collection string `envconfig:"COLLECTION" default:"collection.yaml"`
	S3Region   string `envconfig:"S3_REGION"`
	// LogVerbosity is the stdr verbosity, 4 shows every server call
	LogVerbosity int    `envconfig:"LOG_VERBOSITY" default:"0"`
	Membership   string `envconfig:"MEMBERSHIP" default:"none"`
	NoColor      bool   `envconfig:"NO_COLOR" default:"false"`
}

// LoadEnv reads Env from the environment
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if _, err := env.MembershipMode(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// MembershipMode parses Membership
func (e *Env) MembershipMode() (types.MembershipMode, error) {
	if e == nil || e.Membership == "" {
		return types.MembershipNone, nil
	}
	return types.ParseMembershipMode(e.Membership)
}
