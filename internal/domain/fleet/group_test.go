package fleet

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func seqIDs(prefix string) func() UnitID {
	n := 0
	return func() UnitID {
		n++
		return UnitID(fmt.Sprintf("%s-%d", prefix, n))
	}
}

func newTestGroup(t *testing.T, qty int, policy Policy) (*Group, []*Unit) {
	t.Helper()
	g, units, err := NewGroup(CreateGroupParams{
		ID:          "grp-1",
		Name:        "Toyota Camry",
		VehicleType: "sedan",
		Quantity:    qty,
		Policy:      policy,
		Template: UnitTemplate{
			PricePerDay:    decimal.RequireFromString("49.90"),
			Specifications: map[string]string{"seats": "5"},
			Images:         []string{"camry.jpg"},
			Description:    "Comfortable sedan",
			Available:      true,
		},
		NewUnitID: seqIDs("u"),
		Now:       testNow,
	})
	require.NoError(t, err)
	return g, units
}

func TestNewGroupCreatesOrderedMembers(t *testing.T) {
	g, units := newTestGroup(t, 3, Policy{})

	require.Len(t, units, 3)
	assert.Equal(t, 3, g.TotalQuantity)
	assert.Equal(t, StrategySequential, g.Policy.Strategy)
	for i, u := range units {
		assert.Equal(t, g.ID, u.GroupID)
		assert.Equal(t, i+1, u.Position)
		assert.Equal(t, i == 0, u.IsGroupPrimary)
		assert.Equal(t, fmt.Sprintf("Toyota Camry #%d", i+1), u.DisplayName)
		assert.True(t, u.PricePerDay.Equal(decimal.RequireFromString("49.90")))
	}
	assert.Empty(t, CheckInvariants(g, units))

	evts := g.PendingEvents()
	require.Len(t, evts, 1)
	assert.Equal(t, "fleet.group_created", evts[0].EventName())
}

func TestNewGroupValidation(t *testing.T) {
	base := CreateGroupParams{ID: "g", Name: "Van", VehicleType: "van", Quantity: 1, NewUnitID: seqIDs("u"), Now: testNow}

	p := base
	p.Quantity = 0
	_, _, err := NewGroup(p)
	assert.ErrorIs(t, err, ErrQuantity)

	p = base
	p.Name = " "
	_, _, err = NewGroup(p)
	assert.ErrorIs(t, err, ErrNameRequired)

	p = base
	p.Policy = Policy{Strategy: Strategy(42)}
	_, _, err = NewGroup(p)
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	p = base
	p.Template.PricePerDay = decimal.NewFromInt(-1)
	_, _, err = NewGroup(p)
	assert.ErrorIs(t, err, ErrNegativePrice)
}

func standalone(t *testing.T, id UnitID, vehicleType string, price string) *Unit {
	t.Helper()
	u, err := NewUnit(CreateUnitParams{
		ID:          id,
		DisplayName: string(id),
		VehicleType: vehicleType,
		Template: UnitTemplate{
			PricePerDay:    decimal.RequireFromString(price),
			Specifications: map[string]string{"color": string(id)},
			Available:      true,
		},
		Now: testNow,
	})
	require.NoError(t, err)
	return u
}

func TestFormGroupSyncsFromPrimary(t *testing.T) {
	a := standalone(t, "a", "scooter", "10")
	b := standalone(t, "b", "scooter", "12")

	policy := DefaultPolicy()
	policy.ShareSpecifications = false
	g, err := FormGroup(FormGroupParams{ID: "g", Name: "Vespa", Policy: policy, Now: testNow}, []*Unit{a, b})
	require.NoError(t, err)

	assert.Equal(t, 2, g.TotalQuantity)
	assert.True(t, a.IsGroupPrimary)
	assert.False(t, b.IsGroupPrimary)
	assert.Equal(t, "Vespa #2", b.DisplayName)
	assert.True(t, b.PricePerDay.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "b", b.Specifications["color"], "unshared category must stay per-unit")
}

func TestFormGroupRejectsInvalidMembers(t *testing.T) {
	a := standalone(t, "a", "scooter", "10")
	c := standalone(t, "c", "truck", "90")

	_, err := FormGroup(FormGroupParams{ID: "g", Name: "Mix", Now: testNow}, []*Unit{a, c})
	assert.ErrorIs(t, err, ErrHeterogeneousPool)

	_, err = FormGroup(FormGroupParams{ID: "g", Name: "Dup", Now: testNow}, []*Unit{a, a})
	assert.ErrorIs(t, err, ErrDuplicateUnit)

	_, err = FormGroup(FormGroupParams{ID: "g", Name: "None", Now: testNow}, nil)
	assert.ErrorIs(t, err, ErrEmptyGroup)

	grouped := standalone(t, "x", "scooter", "10")
	grouped.GroupID = "other"
	_, err = FormGroup(FormGroupParams{ID: "g", Name: "Taken", Now: testNow}, []*Unit{grouped})
	assert.ErrorIs(t, err, ErrUnitAlreadyGrouped)
}

func TestGrowClonesPrimary(t *testing.T) {
	g, units := newTestGroup(t, 2, Policy{})
	g.ClearEvents()

	added, err := g.Grow(units, 2, seqIDs("n"), testNow.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, 4, g.TotalQuantity)
	assert.Equal(t, 3, added[0].Position)
	assert.Equal(t, 4, added[1].Position)
	assert.False(t, added[0].IsGroupPrimary)
	assert.Equal(t, "Toyota Camry #4", added[1].DisplayName)
	assert.Equal(t, units[0].Specifications, added[0].Specifications)
	assert.Empty(t, CheckInvariants(g, append(units, added...)))

	_, err = g.Grow(units, 0, seqIDs("n"), testNow)
	assert.ErrorIs(t, err, ErrQuantity)
}

func TestDetachPromotesAndDissolves(t *testing.T) {
	g, units := newTestGroup(t, 2, Policy{})

	res, err := g.Detach(units, units[0].ID, testNow)
	require.NoError(t, err)
	assert.False(t, res.Unit.Grouped())
	assert.False(t, res.Unit.IsGroupPrimary)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, units[1].ID, res.Promoted.ID)
	assert.True(t, units[1].IsGroupPrimary)
	assert.Equal(t, 1, g.TotalQuantity)
	assert.False(t, res.Dissolved)

	res, err = g.Detach(res.Remaining, units[1].ID, testNow)
	require.NoError(t, err)
	assert.True(t, res.Dissolved)
	assert.Equal(t, 0, g.TotalQuantity)

	_, err = g.Detach(nil, "missing", testNow)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestPropagateHonoursSharePolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.SharePricing = false
	g, units := newTestGroup(t, 3, policy)

	price := decimal.NewFromInt(80)
	desc := "Freshly serviced"
	res, err := g.Propagate(units, UnitPatch{PricePerDay: &price, Description: &desc}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []Category{CategoryDescription}, res.Applied)
	assert.Equal(t, []Category{CategoryPricing}, res.Skipped)
	assert.Len(t, res.Updated, 3)
	for _, u := range units {
		assert.Equal(t, desc, u.Description)
		assert.True(t, u.PricePerDay.Equal(decimal.RequireFromString("49.90")))
	}
}

func TestPropagateNothingToApply(t *testing.T) {
	policy := DefaultPolicy()
	policy.SharePricing = false
	g, units := newTestGroup(t, 2, policy)

	price := decimal.NewFromInt(80)
	_, err := g.Propagate(units, UnitPatch{PricePerDay: &price}, testNow)
	assert.ErrorIs(t, err, ErrNothingToApply)
	for _, u := range units {
		assert.True(t, u.PricePerDay.Equal(decimal.RequireFromString("49.90")))
	}

	_, err = g.Propagate(units, UnitPatch{}, testNow)
	assert.ErrorIs(t, err, ErrNothingToApply)
}

func TestPropagateClearsWithEmptyCollections(t *testing.T) {
	g, units := newTestGroup(t, 2, Policy{ShareImages: true})

	_, err := g.Propagate(units, UnitPatch{Images: []string{}}, testNow)
	require.NoError(t, err)
	for _, u := range units {
		assert.Empty(t, u.Images)
	}
}

func TestUpdatePolicyResyncsAndRenames(t *testing.T) {
	policy := DefaultPolicy()
	policy.SharePricing = false
	g, units := newTestGroup(t, 3, policy)
	units[2].PricePerDay = decimal.NewFromInt(99)

	next := DefaultPolicy()
	next.Strategy = StrategyLeastUsed
	next.NamingTemplate = "{name} unit {n}"
	change, err := g.UpdatePolicy(units, next, testNow)
	require.NoError(t, err)

	assert.Equal(t, []Category{CategoryPricing}, change.Resynced)
	assert.True(t, change.Renamed)
	assert.Len(t, change.Changed, 3)
	assert.Equal(t, StrategyLeastUsed, g.Policy.Strategy)
	assert.True(t, units[2].PricePerDay.Equal(units[0].PricePerDay))
	assert.Equal(t, "Toyota Camry unit 2", units[1].DisplayName)
}

func TestCheckInvariantsDetectsDrift(t *testing.T) {
	g, units := newTestGroup(t, 2, Policy{})
	units[1].IsGroupPrimary = true
	g.TotalQuantity = 5

	rules := map[string]bool{}
	for _, v := range CheckInvariants(g, units) {
		rules[v.Rule] = true
	}
	assert.True(t, rules["quantity_mismatch"])
	assert.True(t, rules["multiple_primaries"])
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStrategy("round_robin")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	var s Strategy
	require.NoError(t, s.UnmarshalText([]byte("LEAST_USED")))
	assert.Equal(t, StrategyLeastUsed, s)
}
