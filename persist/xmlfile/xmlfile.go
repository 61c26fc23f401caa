// Package xmlfile persists permission change sets as xml documents, one element per record
package xmlfile

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/supremind/tpsec/internal/storage"
	"github.com/supremind/tpsec/types"
)

var _ types.ChangeSetPersister = (*Persister)(nil)

// Persister reads and writes xml permission files through a storage resolver
type Persister struct {
	resolver storage.Resolver
	log      logr.Logger
}

// Option configures a Persister
type Option func(*Persister)

// WithLogger sets logger for the persister
func WithLogger(l logr.Logger) Option {
	return func(p *Persister) {
		p.log = l
	}
}

// WithS3Region sets the region of s3 locations
func WithS3Region(region string) Option {
	return func(p *Persister) {
		p.resolver = storage.DefaultResolver{S3Region: region}
	}
}

// New creates a Persister for local paths and s3://bucket/key locations
func New(opts ...Option) *Persister {
	p := &Persister{
		resolver: storage.DefaultResolver{},
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type document struct {
	XMLName xml.Name `xml:"ArrayOfPermissionChangePersistenceData"`
	Records []record `xml:"PermissionChangePersistenceData"`
}

type record struct {
	Scope  string       `xml:"Scope"`
	Name   string       `xml:"Name"`
	Action types.Action `xml:"Action"`
}

// Load implements types.ChangeSetPersister
func (p *Persister) Load(ctx context.Context, location string) ([]types.PermissionRecord, error) {
	data, e := storage.ReadLocation(ctx, p.resolver, location)
	if e != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrIO, e)
	}

	records, e := Decode(data)
	if e != nil {
		return nil, fmt.Errorf("%s: %w", location, e)
	}
	p.log.V(4).Info("load permission records", "location", location, "records", len(records))
	return records, nil
}

// Save implements types.ChangeSetPersister
func (p *Persister) Save(ctx context.Context, location string, records []types.PermissionRecord) error {
	data, e := Encode(records)
	if e != nil {
		return e
	}
	if e := storage.WriteLocation(ctx, p.resolver, location, data); e != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, e)
	}
	p.log.V(4).Info("save permission records", "location", location, "records", len(records))
	return nil
}

// Decode parses an xml permission document
func Decode(data []byte) ([]types.PermissionRecord, error) {
	var doc document
	if e := xml.Unmarshal(data, &doc); e != nil {
		if errors.Is(e, types.ErrParse) {
			return nil, e
		}
		return nil, fmt.Errorf("%w: %v", types.ErrParse, e)
	}

	out := make([]types.PermissionRecord, 0, len(doc.Records))
	for _, r := range doc.Records {
		out = append(out, types.PermissionRecord{Scope: r.Scope, Name: r.Name, Action: r.Action})
	}
	return out, nil
}

// Encode renders records as an xml permission document
func Encode(records []types.PermissionRecord) ([]byte, error) {
	doc := document{Records: make([]record, 0, len(records))}
	for _, r := range records {
		doc.Records = append(doc.Records, record{Scope: r.Scope, Name: r.Name, Action: r.Action})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if e := enc.Encode(doc); e != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrParse, e)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
