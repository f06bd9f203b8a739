package fleet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/app/uow"
	domainbooking "rentpool/internal/domain/booking"
	domainfleet "rentpool/internal/domain/fleet"
	"rentpool/internal/domain/shared/daterange"
	"rentpool/internal/infra/storage/memory"
)

var now = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func newHandlers(t *testing.T) (*Handlers, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	n := 0
	return &Handlers{
		UoWFactory: memory.Factory{Store: store},
		NewID: func() string {
			n++
			return fmt.Sprintf("id%d", n)
		},
		Now: func() time.Time { return now },
	}, store
}

func boolPtr(v bool) *bool { return &v }

func createGroup(t *testing.T, h *Handlers, quantity int, policy PolicyInput) string {
	t.Helper()
	g, err := CreateGroupHandler{h}.Handle(context.Background(), CreateGroupCommand{
		Name:           "Toyota Yaris",
		VehicleType:    "car",
		Quantity:       quantity,
		Policy:         policy,
		PricePerDay:    decimal.NewFromInt(300),
		Specifications: map[string]string{"seats": "5"},
		Description:    "compact",
	})
	require.NoError(t, err)
	return g.ID
}

func TestCreateGroupNamesAndStampsUnits(t *testing.T) {
	h, store := newHandlers(t)
	id := createGroup(t, h, 3, PolicyInput{})

	g, err := GetGroupHandler{h}.Handle(context.Background(), GetGroupQuery{GroupID: id})
	require.NoError(t, err)
	assert.Equal(t, 3, g.TotalQuantity)
	require.Len(t, g.Units, 3)
	for i, u := range g.Units {
		assert.Equal(t, i+1, u.Position)
		assert.Equal(t, fmt.Sprintf("Toyota Yaris #%d", i+1), u.DisplayName)
		assert.Equal(t, "300.00", u.PricePerDay)
		assert.Equal(t, i == 0, u.IsGroupPrimary)
	}

	records := store.OutboxRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "fleet.group_created", records[0].Name)
}

func TestBulkUpdateRespectsSharePolicy(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()
	id := createGroup(t, h, 2, PolicyInput{SharePricing: boolPtr(false)})

	price := decimal.NewFromInt(500)
	_, err := BulkUpdateHandler{h}.Handle(ctx, BulkUpdateCommand{GroupID: id, PricePerDay: &price})
	assert.ErrorIs(t, err, domainfleet.ErrNothingToApply)

	g, err := GetGroupHandler{h}.Handle(ctx, GetGroupQuery{GroupID: id})
	require.NoError(t, err)
	for _, u := range g.Units {
		assert.Equal(t, "300.00", u.PricePerDay)
	}

	desc := "freshly serviced"
	res, err := BulkUpdateHandler{h}.Handle(ctx, BulkUpdateCommand{GroupID: id, PricePerDay: &price, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, 2, res.AppliedCount)
	assert.Equal(t, []string{"description"}, res.Applied)
	assert.Equal(t, []string{"pricing"}, res.Skipped)

	g, err = GetGroupHandler{h}.Handle(ctx, GetGroupQuery{GroupID: id})
	require.NoError(t, err)
	for _, u := range g.Units {
		assert.Equal(t, "freshly serviced", u.Description)
		assert.Equal(t, "300.00", u.PricePerDay)
	}
}

func TestBulkUpdateUnknownGroup(t *testing.T) {
	h, _ := newHandlers(t)
	desc := "x"
	_, err := BulkUpdateHandler{h}.Handle(context.Background(), BulkUpdateCommand{GroupID: "nope", Description: &desc})
	assert.ErrorIs(t, err, domainfleet.ErrGroupNotFound)

	_, err = BulkUpdateHandler{h}.Handle(context.Background(), BulkUpdateCommand{GroupID: " ", Description: &desc})
	assert.ErrorIs(t, err, ErrGroupIDRequired)
}

func TestAddUnitsAndDetach(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()
	id := createGroup(t, h, 2, PolicyInput{})

	g, err := AddUnitsHandler{h}.Handle(ctx, AddUnitsCommand{GroupID: id, Count: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, g.TotalQuantity)
	require.Len(t, g.Units, 4)
	assert.Equal(t, "Toyota Yaris #4", g.Units[3].DisplayName)
	assert.Equal(t, "300.00", g.Units[3].PricePerDay)

	primary := g.Units[0].ID
	res, err := DetachUnitHandler{h}.Handle(ctx, DetachUnitCommand{GroupID: id, UnitID: primary})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Remaining)
	assert.NotEmpty(t, res.PromotedID)
	assert.False(t, res.Dissolved)

	detached, err := GetUnitHandler{h}.Handle(ctx, GetUnitQuery{UnitID: primary})
	require.NoError(t, err)
	assert.Empty(t, detached.GroupID)
	assert.False(t, detached.IsGroupPrimary)

	report, err := AuditGroupsHandler{h}.Handle(ctx, AuditGroupsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.GroupsChecked)
	assert.Empty(t, report.Violations)
}

func TestDetachLastUnitDissolvesGroup(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()
	id := createGroup(t, h, 1, PolicyInput{})
	g, err := GetGroupHandler{h}.Handle(ctx, GetGroupQuery{GroupID: id})
	require.NoError(t, err)

	res, err := DetachUnitHandler{h}.Handle(ctx, DetachUnitCommand{GroupID: id, UnitID: g.Units[0].ID, Delete: true})
	require.NoError(t, err)
	assert.True(t, res.Dissolved)
	assert.True(t, res.Deleted)

	_, err = GetGroupHandler{h}.Handle(ctx, GetGroupQuery{GroupID: id})
	assert.ErrorIs(t, err, domainfleet.ErrNotFound)
	_, err = GetUnitHandler{h}.Handle(ctx, GetUnitQuery{UnitID: g.Units[0].ID})
	assert.ErrorIs(t, err, domainfleet.ErrUnitNotFound)
}

func TestDeleteRefusedWithActiveBookings(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()
	id := createGroup(t, h, 2, PolicyInput{})
	g, err := GetGroupHandler{h}.Handle(ctx, GetGroupQuery{GroupID: id})
	require.NoError(t, err)
	unitID := domainfleet.UnitID(g.Units[1].ID)

	tx, err := h.UoWFactory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         "b1",
		UnitID:     unitID,
		GroupID:    domainfleet.GroupID(id),
		CustomerID: "alice",
		Range:      daterange.MustNew(now, now.AddDate(0, 0, 2)),
		CreatedAt:  now,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Bookings().Insert(ctx, b))
	require.NoError(t, tx.Commit(ctx))

	_, err = DetachUnitHandler{h}.Handle(ctx, DetachUnitCommand{GroupID: id, UnitID: string(unitID), Delete: true})
	assert.ErrorIs(t, err, domainfleet.ErrUnitHasActiveBookings)

	_, err = DetachUnitHandler{h}.Handle(ctx, DetachUnitCommand{GroupID: id, UnitID: "stranger"})
	assert.ErrorIs(t, err, domainfleet.ErrUnitNotFound)
}

func TestConvertUnitsIntoGroup(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()

	var ids []string
	for i, price := range []int64{250, 280} {
		u, err := CreateUnitHandler{h}.Handle(ctx, CreateUnitCommand{
			DisplayName: fmt.Sprintf("Vespa %d", i),
			VehicleType: "scooter",
			PricePerDay: decimal.NewFromInt(price),
		})
		require.NoError(t, err)
		ids = append(ids, u.ID)
	}

	g, err := ConvertToGroupHandler{h}.Handle(ctx, ConvertToGroupCommand{Name: "Vespa Primavera", UnitIDs: ids})
	require.NoError(t, err)
	require.Len(t, g.Units, 2)
	assert.Equal(t, "scooter", g.VehicleType)
	for _, u := range g.Units {
		assert.Equal(t, "250.00", u.PricePerDay, "shared pricing follows the primary")
	}

	_, err = ConvertToGroupHandler{h}.Handle(ctx, ConvertToGroupCommand{Name: "again", UnitIDs: ids[:1]})
	assert.ErrorIs(t, err, domainfleet.ErrUnitAlreadyGrouped)
}

func TestUpdatePolicyRenamesMembers(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()
	id := createGroup(t, h, 2, PolicyInput{})

	g, err := UpdatePolicyHandler{h}.Handle(ctx, UpdatePolicyCommand{
		GroupID: id,
		Policy:  PolicyInput{Strategy: "least_used", NamingTemplate: "Yaris {n}"},
	})
	require.NoError(t, err)
	assert.Equal(t, "least_used", g.Policy.Strategy)

	stored, err := GetGroupHandler{h}.Handle(ctx, GetGroupQuery{GroupID: id})
	require.NoError(t, err)
	assert.Equal(t, "Yaris 1", stored.Units[0].DisplayName)
	assert.Equal(t, "Yaris 2", stored.Units[1].DisplayName)

	_, err = UpdatePolicyHandler{h}.Handle(ctx, UpdatePolicyCommand{GroupID: id, Policy: PolicyInput{Strategy: "fastest"}})
	assert.ErrorIs(t, err, domainfleet.ErrUnknownStrategy)
}

func TestAppendImagesFollowsSharePolicy(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()
	shared := createGroup(t, h, 2, PolicyInput{})
	private := createGroup(t, h, 2, PolicyInput{ShareImages: boolPtr(false)})

	res, err := AppendImagesHandler{h}.Handle(ctx, AppendImagesCommand{GroupID: shared, URLs: []string{"https://img.example/a.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.AppliedCount)

	res, err = AppendImagesHandler{h}.Handle(ctx, AppendImagesCommand{GroupID: private, URLs: []string{"https://img.example/b.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AppliedCount)

	g, err := GetGroupHandler{h}.Handle(ctx, GetGroupQuery{GroupID: private})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example/b.jpg"}, g.Units[0].Images)
	assert.Empty(t, g.Units[1].Images)
}

type fakeImages struct {
	puts    int
	deleted []string
}

func (f *fakeImages) Put(_ context.Context, groupID, _, _ string, _ []byte) (string, string, error) {
	f.puts++
	key := fmt.Sprintf("groups/%s/%d.jpg", groupID, f.puts)
	return key, "https://cdn.example/" + key, nil
}

func (f *fakeImages) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func TestUploadImageAppendsOrCleansUp(t *testing.T) {
	h, _ := newHandlers(t)
	ctx := context.Background()
	id := createGroup(t, h, 2, PolicyInput{})
	images := &fakeImages{}
	upload := UploadImageHandler{Handlers: h, Images: images}

	res, err := upload.Handle(ctx, UploadImageCommand{GroupID: id, Filename: "a.jpg", ContentType: "image/jpeg", Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/groups/"+id+"/1.jpg", res.URL)
	assert.Equal(t, 2, res.AppliedCount)

	_, err = upload.Handle(ctx, UploadImageCommand{GroupID: "missing", ContentType: "image/jpeg", Data: []byte{1}})
	assert.ErrorIs(t, err, domainfleet.ErrGroupNotFound)
	assert.Equal(t, []string{"groups/missing/2.jpg"}, images.deleted)

	_, err = upload.Handle(ctx, UploadImageCommand{GroupID: id, ContentType: "image/jpeg"})
	assert.ErrorIs(t, err, ErrImageRequired)
}
