package mgo

import (
	"errors"
	"fmt"

	"github.com/globalsign/mgo"
	"github.com/go-logr/logr"
	"github.com/supremind/tpsec/types"
)

type collection struct {
	*mgo.Collection
	log logr.Logger
}

func (c *collection) copySession() *collection {
	db := c.Database
	return &collection{Collection: db.Session.Copy().DB(db.Name).C(c.Name), log: c.log}
}

func (c *collection) closeSession() {
	c.Database.Session.Close()
}

type collectionOption func(*collection)

// WithLogger sets logger for the persister
func WithLogger(l logr.Logger) collectionOption {
	return func(c *collection) {
		c.log = l
	}
}

func parseMgoError(e error) error {
	switch {
	case e == nil:
		return nil
	case errors.Is(e, mgo.ErrNotFound):
		return fmt.Errorf("%w: %v", types.ErrIO, types.ErrNotFound)
	}
	return fmt.Errorf("%w: %v", types.ErrIO, e)
}
