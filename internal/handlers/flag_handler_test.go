package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trovia/backend/internal/models"
	"github.com/trovia/backend/internal/services"
)

type flagAPIFixture struct {
	router *chi.Mux
	users  *services.MemoryUserStore
	orders *services.MemoryOrderStore
}

func newFlagAPIFixture(t *testing.T) *flagAPIFixture {
	t.Helper()

	flags, err := services.NewMemoryFlagStore(nil)
	require.NoError(t, err)
	users, err := services.NewMemoryUserStore(nil)
	require.NoError(t, err)
	orders, err := services.NewMemoryOrderStore(nil)
	require.NoError(t, err)

	eval := services.NewPolicyEvaluator(flags, users, services.DefaultPolicyConfig())
	svc := services.NewFlagService(flags, orders, eval)
	h := NewFlagHandler(svc)

	r := chi.NewRouter()
	r.Post("/flags", h.CreateFlag)
	r.Get("/flags", h.ListFlags)
	r.Patch("/flags/{flagId}/status", h.UpdateFlagStatus)

	return &flagAPIFixture{router: r, users: users, orders: orders}
}

func (f *flagAPIFixture) register(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), &models.RegisterRequest{
		Email:    email,
		Password: "secret1",
		Name:     email,
	})
	require.NoError(t, err)
	return u
}

func (f *flagAPIFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "expected success envelope, got error: %s", envelope.Error)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestCreateFlagEndpoint(t *testing.T) {
	f := newFlagAPIFixture(t)
	buyer := f.register(t, "buyer@example.com")
	seller := f.register(t, "seller@example.com")

	order, err := f.orders.Create(context.Background(), buyer.ID, &models.CreateOrderRequest{
		SellerID: seller.ID,
		Items:    []models.CreateOrderItemRequest{{Name: "bike", Price: 80, Quantity: 1}},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/flags", models.CreateFlagRequest{
		FlaggedUserRole: models.RoleBuyer,
		OrderID:         order.ID,
		ItemID:          order.Items[0].ID,
		Reason:          "never paid",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var result services.FlagOpResult
	decodeData(t, rec, &result)
	assert.Equal(t, buyer.ID, result.Flag.FlaggedUserID)
	assert.Equal(t, seller.ID, result.Flag.CreatedByUserID)
	assert.Equal(t, models.FlagStatusPending, result.Flag.Status)
	require.NotNil(t, result.Policy)
	assert.False(t, result.Policy.Locked)
	assert.Equal(t, int64(1), result.Policy.Count)
}

func TestCreateFlagEndpointValidation(t *testing.T) {
	f := newFlagAPIFixture(t)

	tests := []struct {
		name string
		body models.CreateFlagRequest
	}{
		{"missing reason", models.CreateFlagRequest{FlaggedUserID: "u1"}},
		{"order flag without item", models.CreateFlagRequest{FlaggedUserID: "u1", OrderID: "o1", Reason: "bad"}},
		{"bad role", models.CreateFlagRequest{FlaggedUserID: "u1", FlaggedUserRole: "admin", Reason: "bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/flags", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateFlagEndpointDuplicate(t *testing.T) {
	f := newFlagAPIFixture(t)
	buyer := f.register(t, "buyer@example.com")
	seller := f.register(t, "seller@example.com")

	order, err := f.orders.Create(context.Background(), buyer.ID, &models.CreateOrderRequest{
		SellerID: seller.ID,
		Items:    []models.CreateOrderItemRequest{{Name: "bike", Price: 80, Quantity: 1}},
	})
	require.NoError(t, err)

	body := models.CreateFlagRequest{
		FlaggedUserRole: models.RoleBuyer,
		OrderID:         order.ID,
		ItemID:          order.Items[0].ID,
		Reason:          "never paid",
	}
	rec := f.do(t, http.MethodPost, "/flags", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/flags", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestThirdFlagLocksAccount(t *testing.T) {
	f := newFlagAPIFixture(t)
	buyer := f.register(t, "buyer@example.com")
	seller := f.register(t, "seller@example.com")

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		order, err := f.orders.Create(context.Background(), buyer.ID, &models.CreateOrderRequest{
			SellerID: seller.ID,
			Items:    []models.CreateOrderItemRequest{{Name: "bike", Price: 80, Quantity: 1}},
		})
		require.NoError(t, err)
		rec = f.do(t, http.MethodPost, "/flags", models.CreateFlagRequest{
			FlaggedUserRole: models.RoleBuyer,
			OrderID:         order.ID,
			ItemID:          order.Items[0].ID,
			Reason:          "never paid",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	var result services.FlagOpResult
	decodeData(t, rec, &result)
	require.NotNil(t, result.Policy)
	assert.True(t, result.Policy.Locked)
	assert.Equal(t, 1, result.Policy.Strikes)

	u, err := f.users.GetByID(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.False(t, u.IsActive)
}

func TestListFlagsEndpoint(t *testing.T) {
	f := newFlagAPIFixture(t)
	buyer := f.register(t, "buyer@example.com")
	seller := f.register(t, "seller@example.com")

	order, err := f.orders.Create(context.Background(), buyer.ID, &models.CreateOrderRequest{
		SellerID: seller.ID,
		Items:    []models.CreateOrderItemRequest{{Name: "bike", Price: 80, Quantity: 1}},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/flags", models.CreateFlagRequest{
		FlaggedUserRole: models.RoleBuyer,
		OrderID:         order.ID,
		ItemID:          order.Items[0].ID,
		Reason:          "never paid",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/flags?storeId="+buyer.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var flags []*models.Flag
	decodeData(t, rec, &flags)
	assert.Len(t, flags, 1)

	rec = f.do(t, http.MethodGet, "/flags?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateFlagStatusEndpoint(t *testing.T) {
	f := newFlagAPIFixture(t)
	buyer := f.register(t, "buyer@example.com")
	seller := f.register(t, "seller@example.com")

	order, err := f.orders.Create(context.Background(), buyer.ID, &models.CreateOrderRequest{
		SellerID: seller.ID,
		Items:    []models.CreateOrderItemRequest{{Name: "bike", Price: 80, Quantity: 1}},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/flags", models.CreateFlagRequest{
		FlaggedUserRole: models.RoleBuyer,
		OrderID:         order.ID,
		ItemID:          order.Items[0].ID,
		Reason:          "never paid",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created services.FlagOpResult
	decodeData(t, rec, &created)

	status := models.FlagStatusDismissed
	notes := "not actionable"
	rec = f.do(t, http.MethodPatch, "/flags/"+created.Flag.ID+"/status", models.UpdateFlagStatusRequest{
		Status:     &status,
		AdminNotes: &notes,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated services.FlagOpResult
	decodeData(t, rec, &updated)
	assert.Equal(t, models.FlagStatusDismissed, updated.Flag.Status)
	assert.Equal(t, notes, updated.Flag.AdminNotes)

	// Unknown flag id is fatal for status updates.
	rec = f.do(t, http.MethodPatch, "/flags/missing/status", models.UpdateFlagStatusRequest{Status: &status})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Neither status nor notes.
	rec = f.do(t, http.MethodPatch, "/flags/"+created.Flag.ID+"/status", models.UpdateFlagStatusRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
