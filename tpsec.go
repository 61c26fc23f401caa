package tpsec

import (
	"context"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/supremind/tpsec/persist/xmlfile"
	"github.com/supremind/tpsec/types"
)

// New creates a Manager session
func New(ctx context.Context, opts ...ManagerOption) (*Manager, error) {
	cfg := &ManagerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var l logr.Logger
	if cfg.log != nil {
		l = *cfg.log
	} else {
		l = stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile))
	}

	if cfg.persister == nil {
		cfg.persister = xmlfile.New(xmlfile.WithLogger(l.WithName("xml persister")))
	}

	m := &Manager{
		persister: cfg.persister,
		change:    &SecurityGroupChange{},
		log:       l,
	}

	if cfg.conn != nil {
		if e := m.SelectConnection(ctx, cfg.conn); e != nil {
			return nil, e
		}
	}

	return m, nil
}

// WithConnection selects the connection at start
// could be omitted and set later with Manager.SelectConnection
func WithConnection(conn types.Connection) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.conn = conn
	}
}

// WithPersister sets where permission change sets are loaded from and saved to
// xml files on local disk or s3 are used if not set
func WithPersister(p types.ChangeSetPersister) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.persister = p
	}
}

// WithLogger sets logger for the manager and its tasks
func WithLogger(l logr.Logger) ManagerOption {
	return func(cfg *ManagerConfig) {
		cfg.log = &l
	}
}

// ManagerConfig works together with ManagerOption to control the initialization of a manager
type ManagerConfig struct {
	conn      types.Connection
	persister types.ChangeSetPersister
	log       *logr.Logger
}

// ManagerOption controls how to init a manager
type ManagerOption func(*ManagerConfig)
