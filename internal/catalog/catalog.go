// Package catalog holds the static registry of buildable entities and the
// closures derived from it. A Catalog is immutable once Build returns and may be
// shared between goroutines without locking.
package catalog

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Definition is the declarative form of an entity, as read from race files.
// Consumes and ConsumesAny are mutually exclusive.
type Definition struct {
	Name        string     `yaml:"name"`
	Requires    []string   `yaml:"requires"`
	Costs       Costs      `yaml:"costs"`
	Consumes    []string   `yaml:"consumes"`
	ConsumesAny [][]string `yaml:"consumes_any"`
	ActsAs      []string   `yaml:"acts_as"`
	Yields      []string   `yaml:"yields"`
	// DerivedOnly entities only appear through another entity's yields and are
	// not offered as race members.
	DerivedOnly bool `yaml:"derived_only"`
}

type raceDef struct {
	name    string
	seed    []string
	members []string
}

// Builder collects definitions and races before the catalog is frozen.
type Builder struct {
	defs  []Definition
	index map[string]int
	races []raceDef
}

func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

func (b *Builder) Register(def Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if len(def.Consumes) > 0 && len(def.ConsumesAny) > 0 {
		return fmt.Errorf("%w: %s declares both consumes and consumes_any", ErrInvalidDefinition, def.Name)
	}
	if _, ok := b.index[def.Name]; ok {
		return &DuplicateNameError{Name: def.Name}
	}
	b.index[def.Name] = len(b.defs)
	b.defs = append(b.defs, def)
	return nil
}

// AddRace declares a race partition. Members are entity names, possibly shared
// with other races; seed is the default opening order for new builds.
func (b *Builder) AddRace(name string, seed, members []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: race name is required", ErrInvalidDefinition)
	}
	for _, r := range b.races {
		if r.name == name {
			return fmt.Errorf("%w: race %s declared twice", ErrInvalidDefinition, name)
		}
	}
	b.races = append(b.races, raceDef{name: name, seed: slices.Clone(seed), members: slices.Clone(members)})
	return nil
}

// Build resolves every reference, rejects cycles and precomputes closures.
func (b *Builder) Build() (*Catalog, error) {
	c := &Catalog{
		entities: make([]*Entity, len(b.defs)),
		byName:   make(map[string]EntityID, len(b.defs)),
		races:    make(map[string]*Race, len(b.races)),
	}
	for i, def := range b.defs {
		costs := make(Costs, len(def.Costs))
		for kind, amount := range def.Costs {
			costs[kind] = amount
		}
		c.entities[i] = &Entity{ID: EntityID(i), Name: def.Name, Costs: costs}
		c.byName[def.Name] = EntityID(i)
	}

	for i, def := range b.defs {
		e := c.entities[i]
		var err error
		if e.Requirements, err = c.resolve(def.Requires); err != nil {
			return nil, fmt.Errorf("%s requires: %w", def.Name, err)
		}
		if e.ActsAs, err = c.resolve(def.ActsAs); err != nil {
			return nil, fmt.Errorf("%s acts_as: %w", def.Name, err)
		}
		if e.Yields, err = c.resolve(def.Yields); err != nil {
			return nil, fmt.Errorf("%s yields: %w", def.Name, err)
		}
		if e.Consumes, err = c.resolveConsumption(def); err != nil {
			return nil, fmt.Errorf("%s consumes: %w", def.Name, err)
		}
	}

	reqOrder, err := c.topoOrder("requires", func(e *Entity) []EntityID { return e.Requirements })
	if err != nil {
		return nil, err
	}
	aliasOrder, err := c.topoOrder("acts_as", func(e *Entity) []EntityID { return e.ActsAs })
	if err != nil {
		return nil, err
	}
	c.fullReqs = fullRequirements(c.entities, reqOrder)
	c.actsAs = actsAsClosure(c.entities, aliasOrder)

	for _, rd := range b.races {
		race, err := c.newRace(rd)
		if err != nil {
			return nil, err
		}
		c.races[race.Name] = race
		c.raceOrder = append(c.raceOrder, race.Name)
	}
	return c, nil
}

type Catalog struct {
	entities  []*Entity
	byName    map[string]EntityID
	fullReqs  [][]EntityID
	actsAs    [][]EntityID
	races     map[string]*Race
	raceOrder []string

	allowsOnce sync.Once
	allows     [][]EntityID
}

func (c *Catalog) Len() int { return len(c.entities) }

func (c *Catalog) Entity(id EntityID) *Entity {
	if id < 0 || int(id) >= len(c.entities) {
		return nil
	}
	return c.entities[id]
}

// Entities returns every registered entity in registration order.
func (c *Catalog) Entities() []*Entity {
	return slices.Clone(c.entities)
}

func (c *Catalog) Lookup(name string) (*Entity, error) {
	id, ok := c.byName[name]
	if !ok {
		return nil, &UnknownEntityError{Name: name, Suggestions: suggest(name, c.names())}
	}
	return c.entities[id], nil
}

// FullRequirements returns the transitive prerequisites of id, each once,
// every entry after its own prerequisites.
func (c *Catalog) FullRequirements(id EntityID) []EntityID {
	return slices.Clone(c.fullReqs[id])
}

// ActsAs returns the capability closure of id. The first element is id itself.
func (c *Catalog) ActsAs(id EntityID) []EntityID {
	return slices.Clone(c.actsAs[id])
}

// Allows returns the entities that list id as a direct requirement.
func (c *Catalog) Allows(id EntityID) []EntityID {
	c.allowsOnce.Do(c.buildAllows)
	return slices.Clone(c.allows[id])
}

func (c *Catalog) buildAllows() {
	c.allows = make([][]EntityID, len(c.entities))
	for _, e := range c.entities {
		for _, req := range e.Requirements {
			if !slices.Contains(c.allows[req], e.ID) {
				c.allows[req] = append(c.allows[req], e.ID)
			}
		}
	}
}

func (c *Catalog) Names(ids []EntityID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.entities[id].Name)
	}
	return out
}

func (c *Catalog) View(id EntityID) EntityView {
	return EntityView{
		Name:             c.entities[id].Name,
		FullRequirements: c.Names(c.fullReqs[id]),
		Allows:           c.Names(c.Allows(id)),
	}
}

// Races returns race names in declaration order.
func (c *Catalog) Races() []string {
	return slices.Clone(c.raceOrder)
}

func (c *Catalog) Race(name string) (*Race, error) {
	r, ok := c.races[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRace, name)
	}
	return r, nil
}

func (c *Catalog) names() []string {
	out := make([]string, len(c.entities))
	for i, e := range c.entities {
		out[i] = e.Name
	}
	return out
}

func (c *Catalog) resolve(names []string) ([]EntityID, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]EntityID, 0, len(names))
	for _, name := range names {
		e, err := c.Lookup(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, e.ID)
	}
	return out, nil
}

func (c *Catalog) resolveConsumption(def Definition) (Consumption, error) {
	switch {
	case len(def.Consumes) > 0:
		group, err := c.resolve(def.Consumes)
		if err != nil {
			return Consumption{}, err
		}
		return Consumption{Kind: ConsumeAll, Groups: [][]EntityID{group}}, nil
	case len(def.ConsumesAny) > 0:
		groups := make([][]EntityID, 0, len(def.ConsumesAny))
		for _, names := range def.ConsumesAny {
			if len(names) == 0 {
				return Consumption{}, fmt.Errorf("%w: empty alternative group", ErrInvalidDefinition)
			}
			group, err := c.resolve(names)
			if err != nil {
				return Consumption{}, err
			}
			groups = append(groups, group)
		}
		return Consumption{Kind: ConsumeAnyOf, Groups: groups}, nil
	default:
		return Consumption{}, nil
	}
}

// topoOrder sorts entities so that every entity follows the ones it points to
// through edges. Ties keep registration order.
func (c *Catalog) topoOrder(relation string, edges func(*Entity) []EntityID) ([]EntityID, error) {
	n := len(c.entities)
	pending := make([]int, n)
	dependents := make([][]EntityID, n)
	for _, e := range c.entities {
		for _, target := range edges(e) {
			pending[e.ID]++
			dependents[target] = append(dependents[target], e.ID)
		}
	}

	queue := make([]EntityID, 0, n)
	for id := 0; id < n; id++ {
		if pending[id] == 0 {
			queue = append(queue, EntityID(id))
		}
	}
	order := make([]EntityID, 0, n)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			pending[dep]--
			if pending[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) < n {
		stuck := make([]string, 0, n-len(order))
		for id, count := range pending {
			if count > 0 {
				stuck = append(stuck, c.entities[id].Name)
			}
		}
		sort.Strings(stuck)
		return nil, &CyclicDependencyError{Relation: relation, Names: stuck}
	}
	return order, nil
}

func fullRequirements(entities []*Entity, order []EntityID) [][]EntityID {
	out := make([][]EntityID, len(entities))
	for _, id := range order {
		seen := make(map[EntityID]bool)
		var closure []EntityID
		for _, req := range entities[id].Requirements {
			for _, more := range out[req] {
				if !seen[more] {
					seen[more] = true
					closure = append(closure, more)
				}
			}
			if !seen[req] {
				seen[req] = true
				closure = append(closure, req)
			}
		}
		out[id] = closure
	}
	return out
}

func actsAsClosure(entities []*Entity, order []EntityID) [][]EntityID {
	out := make([][]EntityID, len(entities))
	for _, id := range order {
		seen := map[EntityID]bool{id: true}
		closure := []EntityID{id}
		for _, alias := range entities[id].ActsAs {
			for _, more := range out[alias] {
				if !seen[more] {
					seen[more] = true
					closure = append(closure, more)
				}
			}
		}
		out[id] = closure
	}
	return out
}
