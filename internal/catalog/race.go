package catalog

import (
	"fmt"
	"slices"
)

// Race is the partition of the catalog a single faction may build.
type Race struct {
	Name    string
	catalog *Catalog
	members []EntityID
	member  map[EntityID]struct{}
	seed    []string
}

func (c *Catalog) newRace(rd raceDef) (*Race, error) {
	if len(rd.members) == 0 {
		return nil, fmt.Errorf("%w: race %s has no entities", ErrInvalidDefinition, rd.name)
	}
	r := &Race{
		Name:    rd.name,
		catalog: c,
		member:  make(map[EntityID]struct{}, len(rd.members)),
	}
	for _, name := range rd.members {
		e, err := c.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("race %s: %w", rd.name, err)
		}
		if _, ok := r.member[e.ID]; ok {
			continue
		}
		r.member[e.ID] = struct{}{}
		r.members = append(r.members, e.ID)
	}
	for _, name := range rd.seed {
		if _, err := r.Lookup(name); err != nil {
			return nil, fmt.Errorf("race %s seed: %w", rd.name, err)
		}
	}
	r.seed = slices.Clone(rd.seed)
	return r, nil
}

func (r *Race) Catalog() *Catalog { return r.catalog }

// Entities returns the race's entities in declaration order.
func (r *Race) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.members))
	for _, id := range r.members {
		out = append(out, r.catalog.entities[id])
	}
	return out
}

// Seed is the default opening used when a build is created without units.
func (r *Race) Seed() []string {
	return slices.Clone(r.seed)
}

func (r *Race) Has(id EntityID) bool {
	_, ok := r.member[id]
	return ok
}

// Lookup resolves name within the race. Entities of other races are reported
// as unknown.
func (r *Race) Lookup(name string) (*Entity, error) {
	if id, ok := r.catalog.byName[name]; ok && r.Has(id) {
		return r.catalog.entities[id], nil
	}
	return nil, &UnknownEntityError{Name: name, Race: r.Name, Suggestions: suggest(name, r.catalog.Names(r.members))}
}
