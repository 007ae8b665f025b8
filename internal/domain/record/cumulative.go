package record

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
)

// CumulativeRecord is a patient's append-only log of resources and
// supersessions. The current view, code index and encounter timeline are
// all derived from the two logs.
type CumulativeRecord struct {
	PatientID uuid.UUID
	Version   int64

	resources     []*Resource
	supersessions []Supersession

	byID          map[uuid.UUID]*Resource
	supersededIdx map[uuid.UUID]uuid.UUID
	codeIndex     map[string][]uuid.UUID
	encounters    []dateEntry
}

type dateEntry struct {
	at time.Time
	id uuid.UUID
}

func NewCumulativeRecord(patientID uuid.UUID) *CumulativeRecord {
	return &CumulativeRecord{
		PatientID:     patientID,
		byID:          make(map[uuid.UUID]*Resource),
		supersededIdx: make(map[uuid.UUID]uuid.UUID),
		codeIndex:     make(map[string][]uuid.UUID),
	}
}

// CodeKey is the code index key for a coding.
func CodeKey(system, code string) string {
	return system + "|" + code
}

// Append adds resources and supersessions to the logs and indexes. A
// resource id already present is ignored, which keeps replays harmless.
func (c *CumulativeRecord) Append(resources []*Resource, supersessions []Supersession) {
	for _, r := range resources {
		if _, ok := c.byID[r.ID]; ok {
			continue
		}
		c.resources = append(c.resources, r)
		c.byID[r.ID] = r
		for _, cd := range r.Codings() {
			key := CodeKey(cd.System, cd.Code)
			c.codeIndex[key] = append(c.codeIndex[key], r.ID)
		}
		if r.Kind == extraction.KindEncounter && !r.Effective.IsZero() {
			c.insertEncounter(dateEntry{at: r.Effective.Time(), id: r.ID})
		}
	}
	for _, s := range supersessions {
		if _, ok := c.supersededIdx[s.Superseded]; ok {
			continue
		}
		c.supersessions = append(c.supersessions, s)
		c.supersededIdx[s.Superseded] = s.By
	}
}

func (c *CumulativeRecord) insertEncounter(e dateEntry) {
	i := sort.Search(len(c.encounters), func(i int) bool {
		return c.encounters[i].at.After(e.at)
	})
	c.encounters = append(c.encounters, dateEntry{})
	copy(c.encounters[i+1:], c.encounters[i:])
	c.encounters[i] = e
}

// Clone returns a record that shares the immutable resources but can be
// appended to independently.
func (c *CumulativeRecord) Clone() *CumulativeRecord {
	out := NewCumulativeRecord(c.PatientID)
	out.Version = c.Version
	out.Append(c.resources, c.supersessions)
	return out
}

// Get returns a resource by id, current or not.
func (c *CumulativeRecord) Get(id uuid.UUID) (*Resource, bool) {
	r, ok := c.byID[id]
	return r, ok
}

// IsCurrent reports whether id is in the record and not superseded.
func (c *CumulativeRecord) IsCurrent(id uuid.UUID) bool {
	if _, ok := c.byID[id]; !ok {
		return false
	}
	_, superseded := c.supersededIdx[id]
	return !superseded
}

// SupersededBy returns the resource that replaced id, if any.
func (c *CumulativeRecord) SupersededBy(id uuid.UUID) (uuid.UUID, bool) {
	by, ok := c.supersededIdx[id]
	return by, ok
}

// All returns every resource ever merged, in append order.
func (c *CumulativeRecord) All() []*Resource {
	out := make([]*Resource, len(c.resources))
	copy(out, c.resources)
	return out
}

// Supersessions returns the supersession log in append order.
func (c *CumulativeRecord) Supersessions() []Supersession {
	out := make([]Supersession, len(c.supersessions))
	copy(out, c.supersessions)
	return out
}

// Current returns the resources not superseded, in append order.
func (c *CumulativeRecord) Current() []*Resource {
	var out []*Resource
	for _, r := range c.resources {
		if c.IsCurrent(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// CurrentByIdentity returns the current resources of kind sharing key.
func (c *CumulativeRecord) CurrentByIdentity(kind extraction.Kind, key string) []*Resource {
	var out []*Resource
	for _, r := range c.resources {
		if r.Kind == kind && r.IdentityKey == key && c.IsCurrent(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// SearchCode returns current resources coded with system|code.
func (c *CumulativeRecord) SearchCode(system, code string) []*Resource {
	var out []*Resource
	for _, id := range c.codeIndex[CodeKey(system, code)] {
		if c.IsCurrent(id) {
			out = append(out, c.byID[id])
		}
	}
	return out
}

// Timeline returns current encounters dated within [from, to], oldest first.
// A zero bound is open.
func (c *CumulativeRecord) Timeline(from, to time.Time) []*Resource {
	start := 0
	if !from.IsZero() {
		start = sort.Search(len(c.encounters), func(i int) bool {
			return !c.encounters[i].at.Before(from)
		})
	}
	var out []*Resource
	for _, e := range c.encounters[start:] {
		if !to.IsZero() && e.at.After(to) {
			break
		}
		if c.IsCurrent(e.id) {
			out = append(out, c.byID[e.id])
		}
	}
	return out
}

// Len is the number of resources ever appended.
func (c *CumulativeRecord) Len() int { return len(c.resources) }
