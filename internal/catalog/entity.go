package catalog

import "sort"

// EntityID is the arena handle of an entity inside one Catalog.
type EntityID int

// Costs holds resource amounts keyed by resource kind.
type Costs map[string]int

// Plus returns the per-kind sum of c and other. Neither operand is modified.
func (c Costs) Plus(other Costs) Costs {
	out := make(Costs, len(c)+len(other))
	for kind, amount := range c {
		out[kind] += amount
	}
	for kind, amount := range other {
		out[kind] += amount
	}
	return out
}

// Kinds returns the resource kinds present in c, sorted.
func (c Costs) Kinds() []string {
	kinds := make([]string, 0, len(c))
	for kind := range c {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

type ConsumeKind int

const (
	ConsumeNothing ConsumeKind = iota
	// ConsumeAll removes a single group; every member must be present.
	ConsumeAll
	// ConsumeAnyOf removes the first declared group that is fully present.
	ConsumeAnyOf
)

// Consumption describes what building an entity removes from the active set.
// A group may name the same entity more than once to require several copies.
type Consumption struct {
	Kind   ConsumeKind
	Groups [][]EntityID
}

func (c Consumption) Empty() bool {
	return c.Kind == ConsumeNothing || len(c.Groups) == 0
}

type Entity struct {
	ID           EntityID
	Name         string
	Requirements []EntityID
	Costs        Costs
	Consumes     Consumption
	ActsAs       []EntityID
	Yields       []EntityID
}

func (e *Entity) String() string {
	return e.Name
}

// EntityView is the presentation shape of an entity. Field names and the order of
// FullRequirements are stable for a given catalog.
type EntityView struct {
	Name             string   `json:"name"`
	FullRequirements []string `json:"full_requirements"`
	Allows           []string `json:"allows"`
}
