// Package buildorder validates construction sequences against a race catalog.
//
// A BuildOrder is owned by a single caller; it carries no locking and must not
// be mutated from two goroutines at once.
package buildorder

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/domain"
)

var ErrRequirementsNotMet = errors.New("requirements not met")

// RequirementsNotMetError identifies the rejected entity. Missing lists the
// direct requirements absent from the active set; it is empty when the
// failure came from consumption.
type RequirementsNotMetError struct {
	Entity  string
	Missing []string
}

func (e *RequirementsNotMetError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s requirements not met: missing %s", e.Entity, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s requirements not met: nothing available to consume", e.Entity)
}

func (e *RequirementsNotMetError) Unwrap() error { return ErrRequirementsNotMet }

type BuildOrder struct {
	race      *catalog.Race
	unitOrder []catalog.EntityID
	active    []catalog.EntityID
}

func New(race *catalog.Race) *BuildOrder {
	return &BuildOrder{race: race}
}

// FromNames replays names from an empty state and stops at the first rejected
// unit.
func FromNames(race *catalog.Race, names []string) (*BuildOrder, error) {
	b := New(race)
	for _, name := range names {
		if _, err := b.AddUnit(name); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// BasedOn starts a new line by replaying base's unit order from scratch.
func BasedOn(base *BuildOrder) (*BuildOrder, error) {
	if len(base.unitOrder) == 0 {
		return nil, domain.ErrEmptySequence
	}
	b := New(base.race)
	for _, id := range base.unitOrder {
		if _, err := b.AddEntity(base.race.Catalog().Entity(id)); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *BuildOrder) Race() *catalog.Race { return b.race }

func (b *BuildOrder) Len() int { return len(b.unitOrder) }

func (b *BuildOrder) AddUnit(name string) (*BuildOrder, error) {
	e, err := b.race.Lookup(name)
	if err != nil {
		return nil, err
	}
	return b.AddEntity(e)
}

// AddEntity validates e against the current state and applies it. On error the
// order is left exactly as it was.
func (b *BuildOrder) AddEntity(e *catalog.Entity) (*BuildOrder, error) {
	consumed, err := b.plan(e)
	if err != nil {
		return nil, err
	}

	if len(consumed) > 0 {
		kept := make([]catalog.EntityID, 0, len(b.active)-len(consumed))
		for i, id := range b.active {
			if !slices.Contains(consumed, i) {
				kept = append(kept, id)
			}
		}
		b.active = kept
	}
	b.unitOrder = append(b.unitOrder, e.ID)
	if len(e.Yields) > 0 {
		b.active = append(b.active, e.Yields...)
	} else {
		b.active = append(b.active, e.ID)
	}
	return b, nil
}

// Check reports whether name could be added now without applying it.
func (b *BuildOrder) Check(name string) error {
	e, err := b.race.Lookup(name)
	if err != nil {
		return err
	}
	_, err = b.plan(e)
	return err
}

// plan returns the indexes of active entries that adding e would remove.
func (b *BuildOrder) plan(e *catalog.Entity) ([]int, error) {
	return planAgainst(b.race, b.active, e)
}

func planAgainst(race *catalog.Race, active []catalog.EntityID, e *catalog.Entity) ([]int, error) {
	if !race.Has(e.ID) {
		return nil, &catalog.UnknownEntityError{Name: e.Name, Race: race.Name}
	}

	caps := capabilities(race.Catalog(), active)
	var missing []string
	for _, req := range e.Requirements {
		if !caps[req] {
			missing = append(missing, race.Catalog().Entity(req).Name)
		}
	}
	if len(missing) > 0 {
		return nil, &RequirementsNotMetError{Entity: e.Name, Missing: missing}
	}

	if e.Consumes.Empty() {
		return nil, nil
	}
	// First declared group that fits wins; later groups are never compared.
	for _, group := range e.Consumes.Groups {
		if idx, ok := matchGroup(active, group); ok {
			return idx, nil
		}
	}
	return nil, &RequirementsNotMetError{Entity: e.Name}
}

func capabilities(c *catalog.Catalog, active []catalog.EntityID) map[catalog.EntityID]bool {
	caps := make(map[catalog.EntityID]bool, len(active))
	for _, id := range active {
		for _, alias := range c.ActsAs(id) {
			caps[alias] = true
		}
	}
	return caps
}

// matchGroup claims one distinct active entry per group member, so a group
// naming an entity twice needs two copies.
func matchGroup(active []catalog.EntityID, group []catalog.EntityID) ([]int, bool) {
	taken := make([]bool, len(active))
	idx := make([]int, 0, len(group))
	for _, want := range group {
		found := -1
		for i, id := range active {
			if id == want && !taken[i] {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		taken[found] = true
		idx = append(idx, found)
	}
	return idx, true
}

func (b *BuildOrder) UnitOrderIDs() []catalog.EntityID { return slices.Clone(b.unitOrder) }

func (b *BuildOrder) ActiveIDs() []catalog.EntityID { return slices.Clone(b.active) }

// UnitOrder returns the requested sequence, including units consumed since.
func (b *BuildOrder) UnitOrder() []string {
	return b.race.Catalog().Names(b.unitOrder)
}

func (b *BuildOrder) Active() []string {
	return b.race.Catalog().Names(b.active)
}

// Costs totals the resource costs of every unit in the order.
func (b *BuildOrder) Costs() catalog.Costs {
	total := catalog.Costs{}
	for _, id := range b.unitOrder {
		total = total.Plus(b.race.Catalog().Entity(id).Costs)
	}
	return total
}
