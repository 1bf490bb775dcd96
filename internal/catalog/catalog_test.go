package catalog

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCatalog(t *testing.T, defs ...Definition) *Catalog {
	t.Helper()
	b := NewBuilder()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		require.NoError(t, b.Register(def))
		names = append(names, def.Name)
	}
	require.NoError(t, b.AddRace("Test", nil, names))
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func mustLookup(t *testing.T, c *Catalog, name string) *Entity {
	t.Helper()
	e, err := c.Lookup(name)
	require.NoError(t, err)
	return e
}

func TestActsAsIsReflexiveAndTransitive(t *testing.T) {
	c := buildCatalog(t,
		Definition{Name: "Hatchery"},
		Definition{Name: "Lair", ActsAs: []string{"Hatchery"}},
		Definition{Name: "Hive", ActsAs: []string{"Lair"}},
	)

	hive := mustLookup(t, c, "Hive")
	got := c.Names(c.ActsAs(hive.ID))
	if diff := cmp.Diff([]string{"Hive", "Lair", "Hatchery"}, got); diff != "" {
		t.Fatalf("acts_as closure mismatch (-want +got):\n%s", diff)
	}

	hatch := mustLookup(t, c, "Hatchery")
	assert.Equal(t, []string{"Hatchery"}, c.Names(c.ActsAs(hatch.ID)))
}

func TestFullRequirementsOrderAndDedup(t *testing.T) {
	c := buildCatalog(t,
		Definition{Name: "Base"},
		Definition{Name: "Supply"},
		Definition{Name: "Barracks", Requires: []string{"Base", "Supply"}},
		Definition{Name: "Factory", Requires: []string{"Barracks"}},
		Definition{Name: "Armory", Requires: []string{"Factory", "Barracks", "Base"}},
	)

	armory := mustLookup(t, c, "Armory")
	got := c.Names(c.FullRequirements(armory.ID))
	want := []string{"Base", "Supply", "Barracks", "Factory"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("full requirements mismatch (-want +got):\n%s", diff)
	}

	base := mustLookup(t, c, "Base")
	assert.Empty(t, c.FullRequirements(base.ID))
}

func TestAllowsIsReverseOfRequirements(t *testing.T) {
	c := buildCatalog(t,
		Definition{Name: "Base"},
		Definition{Name: "Worker", Requires: []string{"Base"}},
		Definition{Name: "Pool", Requires: []string{"Base"}},
		Definition{Name: "Ling", Requires: []string{"Pool"}},
	)

	base := mustLookup(t, c, "Base")
	assert.Equal(t, []string{"Worker", "Pool"}, c.Names(c.Allows(base.ID)))

	ling := mustLookup(t, c, "Ling")
	assert.Empty(t, c.Allows(ling.ID))

	view := c.View(mustLookup(t, c, "Pool").ID)
	assert.Equal(t, EntityView{Name: "Pool", FullRequirements: []string{"Base"}, Allows: []string{"Ling"}}, view)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register(Definition{Name: "Pylon"}))

	err := b.Register(Definition{Name: "Pylon"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)

	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Pylon", dup.Name)
}

func TestRegisterRejectsInvalidDefinitions(t *testing.T) {
	b := NewBuilder()
	assert.ErrorIs(t, b.Register(Definition{Name: "  "}), ErrInvalidDefinition)
	assert.ErrorIs(t, b.Register(Definition{
		Name:        "Archon",
		Consumes:    []string{"High Templar"},
		ConsumesAny: [][]string{{"Dark Templar"}},
	}), ErrInvalidDefinition)
}

func TestBuildRejectsCycles(t *testing.T) {
	tests := []struct {
		name     string
		defs     []Definition
		relation string
		involved []string
	}{
		{
			name: "requires",
			defs: []Definition{
				{Name: "A", Requires: []string{"C"}},
				{Name: "B", Requires: []string{"A"}},
				{Name: "C", Requires: []string{"B"}},
				{Name: "D"},
			},
			relation: "requires",
			involved: []string{"A", "B", "C"},
		},
		{
			name: "acts_as",
			defs: []Definition{
				{Name: "X", ActsAs: []string{"Y"}},
				{Name: "Y", ActsAs: []string{"X"}},
			},
			relation: "acts_as",
			involved: []string{"X", "Y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			for _, def := range tt.defs {
				require.NoError(t, b.Register(def))
			}
			c, err := b.Build()
			require.Nil(t, c)
			require.ErrorIs(t, err, ErrCyclicDependency)

			var cyc *CyclicDependencyError
			require.True(t, errors.As(err, &cyc))
			assert.Equal(t, tt.relation, cyc.Relation)
			assert.Equal(t, tt.involved, cyc.Names)
		})
	}
}

func TestBuildRejectsUnknownReference(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Register(Definition{Name: "Gateway", Requires: []string{"Pylone"}}))
	require.NoError(t, b.Register(Definition{Name: "Pylon"}))

	_, err := b.Build()
	require.ErrorIs(t, err, ErrUnknownEntity)

	var unknown *UnknownEntityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Pylone", unknown.Name)
	assert.Equal(t, []string{"Pylon"}, unknown.Suggestions)
}

func TestRaceLookup(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	zerg, err := c.Race("Zerg")
	require.NoError(t, err)

	pool, err := zerg.Lookup("Spawning Pool")
	require.NoError(t, err)
	assert.Equal(t, "Spawning Pool", pool.Name)

	_, err = zerg.Lookup("Spawning Pol")
	var unknown *UnknownEntityError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Zerg", unknown.Race)
	assert.Contains(t, unknown.Suggestions, "Spawning Pool")
	assert.Contains(t, err.Error(), "did you mean")

	_, err = zerg.Lookup("Zealot")
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = c.Race("Xel'Naga")
	assert.ErrorIs(t, err, ErrUnknownRace)
}

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"Protoss", "Terran", "Zerg"}, c.Races())

	for _, name := range c.Races() {
		race, err := c.Race(name)
		require.NoError(t, err)
		assert.NotEmpty(t, race.Seed(), name)
		for _, seed := range race.Seed() {
			_, err := race.Lookup(seed)
			assert.NoError(t, err, "%s seed %s", name, seed)
		}
	}

	terran, err := c.Race("Terran")
	require.NoError(t, err)
	_, err = terran.Lookup("Tech Lab")
	assert.ErrorIs(t, err, ErrUnknownEntity, "derived-only entities are not race members")

	hive, err := c.Lookup("Hive")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hive", "Lair", "Hatchery"}, c.Names(c.ActsAs(hive.ID)))
	assert.Equal(t,
		[]string{"Hatchery", "Spawning Pool", "Lair", "Infestation Pit"},
		c.Names(c.FullRequirements(hive.ID)),
	)

	archon, err := c.Lookup("Archon")
	require.NoError(t, err)
	assert.Equal(t, ConsumeAnyOf, archon.Consumes.Kind)
	assert.Len(t, archon.Consumes.Groups, 3)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	fsys := fstest.MapFS{
		"x.yaml": {Data: []byte("race: X\nentities:\n  - name: A\n    needs: [B]\n")},
	}
	_, err := Load(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.yaml")
}

func TestLoadSharesEntitiesAcrossFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"a.yaml": {Data: []byte("race: A\nseed: [Base]\nentities:\n  - name: Base\n")},
		"b.yaml": {Data: []byte("race: B\ninclude: [Base]\nentities:\n  - name: Tower\n    requires: [Base]\n")},
	}
	c, err := Load(fsys)
	require.NoError(t, err)

	b, err := c.Race("B")
	require.NoError(t, err)
	assert.Equal(t, []string{"Tower", "Base"}, c.Names(entityIDs(b.Entities())))
}

func TestCostsPlus(t *testing.T) {
	total := Costs{"minerals": 50}.Plus(Costs{"minerals": 100, "gas": 25})
	assert.Equal(t, Costs{"minerals": 150, "gas": 25}, total)
	assert.Equal(t, []string{"gas", "minerals"}, total.Kinds())
}

func entityIDs(es []*Entity) []EntityID {
	out := make([]EntityID, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}
