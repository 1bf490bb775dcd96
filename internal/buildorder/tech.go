package buildorder

import "github.com/dagoof/sc-buildorders/internal/catalog"

// AvailableTech lists the race entities that could be added to active right
// now, in race declaration order. It never modifies active.
func AvailableTech(race *catalog.Race, active []catalog.EntityID) []*catalog.Entity {
	var out []*catalog.Entity
	for _, e := range race.Entities() {
		if _, err := planAgainst(race, active, e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

func (b *BuildOrder) AvailableTech() []*catalog.Entity {
	return AvailableTech(b.race, b.active)
}

// TechNode is one step of a prerequisite path. Available marks the entities
// that are constructible; the other nodes only exist as path prefixes.
type TechNode struct {
	Name      string      `json:"name"`
	Available bool        `json:"available"`
	Children  []*TechNode `json:"children,omitempty"`
}

// AvailableTechTree groups AvailableTech by each entity's full requirement path.
func AvailableTechTree(race *catalog.Race, active []catalog.EntityID) []*TechNode {
	c := race.Catalog()
	root := &TechNode{}
	for _, e := range AvailableTech(race, active) {
		node := root
		for _, name := range c.Names(c.FullRequirements(e.ID)) {
			node = node.child(name)
		}
		node.child(e.Name).Available = true
	}
	return root.Children
}

func (b *BuildOrder) AvailableTechTree() []*TechNode {
	return AvailableTechTree(b.race, b.active)
}

func (n *TechNode) child(name string) *TechNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	c := &TechNode{Name: name}
	n.Children = append(n.Children, c)
	return c
}
