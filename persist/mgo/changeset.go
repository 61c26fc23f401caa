package mgo

import (
	"context"
	"fmt"
	"time"

	"github.com/globalsign/mgo"
	"github.com/go-logr/logr"
	"github.com/supremind/tpsec/types"
)

var _ types.ChangeSetPersister = (*ChangeSetPersister)(nil)

// ChangeSetPersister is a ChangeSetPersister backed by mongodb, one document per location
type ChangeSetPersister struct {
	*collection
}

// NewChangeSet uses the given mongodb collection as backend to persist change sets
func NewChangeSet(coll *mgo.Collection, opts ...collectionOption) (*ChangeSetPersister, error) {
	c := &ChangeSetPersister{&collection{Collection: coll, log: logr.Discard()}}
	for _, opt := range opts {
		opt(c.collection)
	}

	ss := c.copySession()
	defer ss.closeSession()

	if e := ss.EnsureIndex(mgo.Index{Key: []string{"updated_at"}}); e != nil {
		return nil, parseMgoError(e)
	}

	return c, nil
}

type changeSetDO struct {
	Location  string     `bson:"_id"`
	Records   []recordDO `bson:"records"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

type recordDO struct {
	Scope  string `bson:"scope"`
	Name   string `bson:"name"`
	Action string `bson:"action"`
}

// Load all records saved at the location
func (p *ChangeSetPersister) Load(ctx context.Context, location string) ([]types.PermissionRecord, error) {
	ss := p.copySession()
	defer ss.closeSession()

	var doc changeSetDO
	if e := ss.FindId(location).One(&doc); e != nil {
		return nil, fmt.Errorf("load change set %s: %w", location, parseMgoError(e))
	}

	records := make([]types.PermissionRecord, 0, len(doc.Records))
	for _, r := range doc.Records {
		act, e := types.ParseAction(r.Action)
		if e != nil {
			return nil, fmt.Errorf("load change set %s: %w", location, e)
		}
		records = append(records, types.PermissionRecord{Scope: r.Scope, Name: r.Name, Action: act})
	}

	p.log.V(4).Info("load change set", "location", location, "records", len(records))
	return records, nil
}

// Save records to the location, replacing whatever was there
func (p *ChangeSetPersister) Save(ctx context.Context, location string, records []types.PermissionRecord) error {
	ss := p.copySession()
	defer ss.closeSession()

	doc := changeSetDO{
		Location:  location,
		Records:   make([]recordDO, 0, len(records)),
		UpdatedAt: time.Now(),
	}
	for _, r := range records {
		doc.Records = append(doc.Records, recordDO{Scope: r.Scope, Name: r.Name, Action: r.Action.String()})
	}

	info, e := ss.UpsertId(location, doc)
	if e != nil {
		return fmt.Errorf("save change set %s: %w", location, parseMgoError(e))
	}
	p.log.V(4).Info("save change set", "location", location, "records", len(records), "updated", info.Updated, "upserted", info.UpsertedId)
	return nil
}
