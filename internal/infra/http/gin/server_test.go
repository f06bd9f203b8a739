package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/app/bootstrap"
	bookingapp "rentpool/internal/app/handlers/booking"
	fleetapp "rentpool/internal/app/handlers/fleet"
	"rentpool/internal/domain/assignment"
	domainbooking "rentpool/internal/domain/booking"
	"rentpool/internal/infra/obs"
	"rentpool/internal/infra/storage/memory"
	"rentpool/internal/infra/validation"
)

type stubImages struct{}

func (stubImages) Put(_ context.Context, groupID, _, _ string, _ []byte) (string, string, error) {
	key := "groups/" + groupID + "/img.png"
	return key, "https://cdn.example/" + key, nil
}

func (stubImages) Delete(context.Context, string) error { return nil }

type apiFixture struct {
	router *gin.Engine
}

func newAPI(t *testing.T, images fleetapp.ImageStore) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	buses := bootstrap.Build(bootstrap.Deps{
		UoWFactory:  memory.Factory{Store: store},
		Idempotency: memory.NewIdempotencyStore(0),
		Validator:   validation.New(),
		Images:      images,
		Random:      assignment.NewSource(1),
		MaxAttempts: 3,
	})
	router := NewRouter(obs.Middleware{}, obs.NewHealth(0, nil), Handlers{
		Availability: NewAvailabilityHandler(buses.Queries, nil),
		Booking:      NewBookingHandler(buses.Commands, buses.Queries, nil),
		Fleet:        NewFleetHandler(buses.Commands, buses.Queries, nil),
	})
	return &apiFixture{router: router}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	out := map[string]any{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (f *apiFixture) createGroup(t *testing.T, quantity int, policy map[string]any) (string, []string) {
	t.Helper()
	w, body := f.do(t, http.MethodPost, "/api/v1/groups", map[string]any{
		"name":          "Honda PCX",
		"vehicle_type":  "scooter",
		"quantity":      quantity,
		"price_per_day": "19.50",
		"policy":        policy,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var unitIDs []string
	for _, u := range body["units"].([]any) {
		unitIDs = append(unitIDs, u.(map[string]any)["id"].(string))
	}
	return body["id"].(string), unitIDs
}

func booking(groupID, unitID, customer string) map[string]any {
	return map[string]any{
		"group_id":    groupID,
		"unit_id":     unitID,
		"customer_id": customer,
		"start":       "2025-07-01",
		"end":         "2025-07-04",
	}
}

func TestBookingFlowOverHTTP(t *testing.T) {
	api := newAPI(t, nil)
	groupID, units := api.createGroup(t, 2, nil)

	w, body := api.do(t, http.MethodGet, "/api/v1/groups/"+groupID+"/availability?start=2025-07-01&end=2025-07-04", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["free_count"])

	w, first := api.do(t, http.MethodPost, "/api/v1/bookings", booking(groupID, "", "alice"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bookingID := first["booking"].(map[string]any)["id"].(string)
	assert.Equal(t, "/api/v1/bookings/"+bookingID, w.Header().Get("Location"))

	w, _ = api.do(t, http.MethodPost, "/api/v1/bookings", booking(groupID, "", "bob"))
	require.Equal(t, http.StatusCreated, w.Code)

	w, body = api.do(t, http.MethodPost, "/api/v1/bookings", booking(groupID, "", "carol"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, codeNoUnitsAvailable, body["code"])

	w, body = api.do(t, http.MethodPost, "/api/v1/bookings", booking("", units[0], "dave"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, codeUnitUnavailable, body["code"])

	w, body = api.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", body["status"])

	w, body = api.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/cancel", map[string]any{"reason": "flight cancelled"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", body["status"])

	w, body = api.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, codeConflict, body["code"])

	w, body = api.do(t, http.MethodGet, "/api/v1/units/"+units[0]+"/bookings?status=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 1)
}

func TestBookingRequestErrors(t *testing.T) {
	api := newAPI(t, nil)
	groupID, _ := api.createGroup(t, 1, nil)

	req := booking(groupID, "", "alice")
	req["end"] = "2025-07-01"
	w, body := api.do(t, http.MethodPost, "/api/v1/bookings", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeInvalidRequest, body["code"])

	req = booking(groupID, "", "")
	w, body = api.do(t, http.MethodPost, "/api/v1/bookings", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, body["fields"])

	req = booking(groupID, "", "alice")
	req["start"] = "next tuesday"
	w, _ = api.do(t, http.MethodPost, "/api/v1/bookings", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = api.do(t, http.MethodGet, "/api/v1/bookings/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeNotFound, body["code"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/groups/ghost/availability?start=2025-07-01&end=2025-07-02", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookingIdempotencyKeyReplays(t *testing.T) {
	api := newAPI(t, nil)
	groupID, _ := api.createGroup(t, 2, nil)

	w, first := api.do(t, http.MethodPost, "/api/v1/bookings", booking(groupID, "", "alice"), "Idempotency-Key", "req-7")
	require.Equal(t, http.StatusCreated, w.Code)
	w, second := api.do(t, http.MethodPost, "/api/v1/bookings", booking(groupID, "", "alice"), "Idempotency-Key", "req-7")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, first["booking"], second["booking"])

	w, body := api.do(t, http.MethodGet, "/api/v1/groups/"+groupID+"/availability?start=2025-07-01&end=2025-07-04", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["free_count"])
}

func TestFleetEndpoints(t *testing.T) {
	api := newAPI(t, nil)
	groupID, units := api.createGroup(t, 2, map[string]any{"share_pricing": false})

	w, body := api.do(t, http.MethodPatch, "/api/v1/groups/"+groupID+"/units", map[string]any{"price_per_day": "25"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, codeNothingToApply, body["code"])

	w, body = api.do(t, http.MethodPatch, "/api/v1/groups/"+groupID+"/units", map[string]any{"description": "helmet included"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["applied_count"])

	w, body = api.do(t, http.MethodPut, "/api/v1/groups/"+groupID+"/policy", map[string]any{"strategy": "teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code, body)

	w, body = api.do(t, http.MethodPost, "/api/v1/groups/"+groupID+"/units", map[string]any{"count": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["total_quantity"])

	w, body = api.do(t, http.MethodDelete, "/api/v1/groups/"+groupID+"/units/"+units[1]+"?delete=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["deleted"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/units/"+units[1], nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(t, http.MethodGet, "/api/v1/audit/groups", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["groups_checked"])
}

func TestUploadImage(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	upload := func(api *apiFixture, groupID string, data []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "front.png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/groups/%s/images", groupID), &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		return w
	}

	api := newAPI(t, stubImages{})
	groupID, _ := api.createGroup(t, 2, nil)
	w := upload(api, groupID, png)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "https://cdn.example/groups/"+groupID)

	w = upload(api, groupID, []byte("plain text, not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	disabled := newAPI(t, nil)
	groupID, _ = disabled.createGroup(t, 1, nil)
	w = upload(disabled, groupID, png)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domainbooking.ErrTimeout, http.StatusGatewayTimeout, codeTimeout},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, codeTimeout},
		{assignment.ErrNoUnitsAvailable, http.StatusConflict, codeNoUnitsAvailable},
		{bookingapp.ErrPinMismatch, http.StatusBadRequest, codeInvalidRequest},
		{errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
