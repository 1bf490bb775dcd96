package buildorder

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagoof/sc-buildorders/internal/catalog"
	"github.com/dagoof/sc-buildorders/internal/domain"
)

func testRace(t *testing.T, defs ...catalog.Definition) *catalog.Race {
	t.Helper()
	b := catalog.NewBuilder()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		require.NoError(t, b.Register(def))
		names = append(names, def.Name)
	}
	require.NoError(t, b.AddRace("Test", nil, names))
	c, err := b.Build()
	require.NoError(t, err)
	race, err := c.Race("Test")
	require.NoError(t, err)
	return race
}

func defaultRace(t *testing.T, name string) *catalog.Race {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	race, err := c.Race(name)
	require.NoError(t, err)
	return race
}

func TestConsumingUnitReplacesWorker(t *testing.T) {
	race := testRace(t,
		catalog.Definition{Name: "Base"},
		catalog.Definition{Name: "Worker", Requires: []string{"Base"}},
		catalog.Definition{Name: "Advanced", Requires: []string{"Base"}, Consumes: []string{"Worker"}},
	)

	b, err := FromNames(race, []string{"Base", "Worker", "Advanced"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Base", "Worker", "Advanced"}, b.UnitOrder())
	assert.Equal(t, []string{"Base", "Advanced"}, b.Active())

	_, err = FromNames(race, []string{"Worker"})
	require.ErrorIs(t, err, ErrRequirementsNotMet)
	var notMet *RequirementsNotMetError
	require.True(t, errors.As(err, &notMet))
	assert.Equal(t, "Worker", notMet.Entity)
	assert.Equal(t, []string{"Base"}, notMet.Missing)
}

func TestConsumptionRespectsMultiplicity(t *testing.T) {
	race := testRace(t,
		catalog.Definition{Name: "TemplarA"},
		catalog.Definition{Name: "Merge", ConsumesAny: [][]string{{"TemplarA", "TemplarA"}}},
	)

	one, err := FromNames(race, []string{"TemplarA"})
	require.NoError(t, err)
	_, err = one.AddUnit("Merge")
	require.ErrorIs(t, err, ErrRequirementsNotMet)
	assert.Equal(t, []string{"TemplarA"}, one.Active())

	two, err := FromNames(race, []string{"TemplarA", "TemplarA"})
	require.NoError(t, err)
	_, err = two.AddUnit("Merge")
	require.NoError(t, err)
	assert.Equal(t, []string{"Merge"}, two.Active())
}

func TestYieldsReplaceTheUnitItself(t *testing.T) {
	race := testRace(t,
		catalog.Definition{Name: "PartX"},
		catalog.Definition{Name: "PartY"},
		catalog.Definition{Name: "Combo", Consumes: []string{"PartX", "PartY"}},
		catalog.Definition{Name: "Detach", Consumes: []string{"Combo"}, Yields: []string{"PartX", "PartY"}},
	)

	b, err := FromNames(race, []string{"PartX", "PartY", "Combo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Combo"}, b.Active())

	_, err = b.AddUnit("Detach")
	require.NoError(t, err)
	assert.Equal(t, []string{"PartX", "PartY"}, b.Active())
	assert.Equal(t, []string{"PartX", "PartY", "Combo", "Detach"}, b.UnitOrder())
}

func TestFailedAddLeavesStateUntouched(t *testing.T) {
	race := defaultRace(t, "Zerg")

	b, err := FromNames(race, []string{"Hatchery", "Drone", "Spawning Pool"})
	require.NoError(t, err)
	order, active := b.UnitOrderIDs(), b.ActiveIDs()

	got, err := b.AddUnit("Extractor")
	require.Nil(t, got)
	var notMet *RequirementsNotMetError
	require.True(t, errors.As(err, &notMet))
	assert.Empty(t, notMet.Missing, "Hatchery is present, only the Drone is missing")
	assert.Equal(t, order, b.UnitOrderIDs())
	assert.Equal(t, active, b.ActiveIDs())

	_, err = b.AddUnit("Lair")
	require.NoError(t, err)
	assert.Equal(t, append(order, mustID(t, race, "Lair")), b.UnitOrderIDs())
	order, active = b.UnitOrderIDs(), b.ActiveIDs()

	_, err = b.AddUnit("Hive")
	require.ErrorIs(t, err, ErrRequirementsNotMet)
	assert.Equal(t, order, b.UnitOrderIDs())
	assert.Equal(t, active, b.ActiveIDs())
	assert.Equal(t, []string{"Spawning Pool", "Lair"}, b.Active())
}

func TestCapabilityAliasSatisfiesRequirement(t *testing.T) {
	race := defaultRace(t, "Zerg")

	b, err := FromNames(race, []string{
		"Hatchery", "Drone", "Drone", "Spawning Pool", "Lair",
	})
	require.NoError(t, err)
	assert.NotContains(t, b.Active(), "Hatchery")

	// Lair acts as Hatchery, so Hatchery-gated units stay available.
	require.NoError(t, b.Check("Drone"))
	require.NoError(t, b.Check("Evolution Chamber"))

	// Consumption is literal; the Lair cannot be spent as a Hatchery.
	_, err = b.AddUnit("Lair")
	require.ErrorIs(t, err, ErrRequirementsNotMet)
}

func TestArchonPicksFirstSatisfiableGroup(t *testing.T) {
	race := defaultRace(t, "Protoss")
	opening := []string{
		"Nexus", "Pylon", "Gateway", "Cybernetics Core", "Twilight Council",
		"Templar Archives", "Dark Shrine",
	}

	tests := []struct {
		name   string
		units  []string
		active []string
	}{
		{"two high templar", []string{"High Templar", "High Templar"}, []string{"Archon"}},
		{"two dark templar", []string{"Dark Templar", "Dark Templar"}, []string{"Archon"}},
		{"mixed", []string{"Dark Templar", "High Templar"}, []string{"Archon"}},
		{"first group wins", []string{"High Templar", "Dark Templar", "High Templar"}, []string{"Dark Templar", "Archon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := FromNames(race, append(append([]string{}, opening...), tt.units...))
			require.NoError(t, err)
			_, err = b.AddUnit("Archon")
			require.NoError(t, err)

			active := b.Active()
			tail := active[len(active)-len(tt.active):]
			assert.Equal(t, tt.active, tail)
			assert.NotContains(t, active[:len(active)-len(tt.active)], "High Templar")
		})
	}
}

func TestTerranAddOnSwap(t *testing.T) {
	race := defaultRace(t, "Terran")

	b, err := FromNames(race, []string{
		"Command Center", "Supply Depot", "Barracks", "Barracks Tech Lab",
		"Factory", "Barracks Lift Off Tech Lab", "Factory Land On Tech Lab",
	})
	require.NoError(t, err)

	want := []string{"Command Center", "Supply Depot", "Barracks", "Factory Tech Lab"}
	if diff := cmp.Diff(want, b.Active()); diff != "" {
		t.Fatalf("active mismatch (-want +got):\n%s", diff)
	}
}

func TestBasedOnReplaysOrder(t *testing.T) {
	race := defaultRace(t, "Zerg")

	base, err := FromNames(race, race.Seed())
	require.NoError(t, err)
	_, err = base.AddUnit("Spawning Pool")
	require.NoError(t, err)

	branch, err := BasedOn(base)
	require.NoError(t, err)
	assert.Equal(t, base.UnitOrder(), branch.UnitOrder())
	assert.Equal(t, base.Active(), branch.Active())

	_, err = branch.AddUnit("Zergling")
	require.NoError(t, err)
	assert.Equal(t, base.Len()+1, branch.Len())
	assert.NotContains(t, base.UnitOrder(), "Zergling")

	_, err = BasedOn(New(race))
	assert.ErrorIs(t, err, domain.ErrEmptySequence)
}

func TestUnknownUnit(t *testing.T) {
	race := defaultRace(t, "Terran")
	b := New(race)

	_, err := b.AddUnit("Zergling")
	assert.ErrorIs(t, err, catalog.ErrUnknownEntity)
	assert.ErrorIs(t, b.Check("Marin"), catalog.ErrUnknownEntity)
	assert.Zero(t, b.Len())
}

func TestCosts(t *testing.T) {
	race := defaultRace(t, "Zerg")
	b, err := FromNames(race, []string{"Hatchery", "Drone", "Spawning Pool", "Lair"})
	require.NoError(t, err)
	assert.Equal(t, catalog.Costs{"minerals": 700, "gas": 100}, b.Costs())
}

func mustID(t *testing.T, race *catalog.Race, name string) catalog.EntityID {
	t.Helper()
	e, err := race.Lookup(name)
	require.NoError(t, err)
	return e.ID
}
