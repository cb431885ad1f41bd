package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/realtime"
	"kitchenbot/pkg/tracker"
	"kitchenbot/service"
	"kitchenbot/storage/memory"
)

const testSecret = "test-secret"

type testEnv struct {
	router       *gin.Engine
	svc          service.IServiceManager
	hub          *realtime.Hub
	tracker      *tracker.Tracker
	board        *tracker.Board
	customer     string
	other        string
	operator     string
	customerUser *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()

	stg := memory.NewWithMenu(
		models.MenuItem{ID: 1, Name: "Plov", Price: 500, IsAvailable: true},
		models.MenuItem{ID: 2, Name: "Samsa", Price: 300, IsAvailable: true},
	)
	svc := service.New(stg, service.Options{
		Pricing:                 service.Pricing{DeliveryFee: 399, FreeDeliveryThreshold: 2500},
		RequireDeliveryLocation: true,
	}, log)

	hub := realtime.NewHub(log)
	tr := tracker.New(svc.Order(), hub, 10*time.Millisecond, log)
	board := tracker.NewBoard(nil, time.Second, log)

	ctx := context.Background()
	alice, err := svc.User().Register(ctx, 100, "alice", "Alice")
	require.NoError(t, err)
	bob, err := svc.User().Register(ctx, 200, "bob", "Bob")
	require.NoError(t, err)
	cook, err := svc.User().Register(ctx, 300, "cook", "Cook")
	require.NoError(t, err)
	require.NoError(t, svc.User().PromoteOperator(ctx, 300))
	cook.Role = models.RoleOperator

	env := &testEnv{
		router:       NewRouter(NewHandler(svc, tr, board, hub, log), testSecret),
		svc:          svc,
		hub:          hub,
		tracker:      tr,
		board:        board,
		customerUser: alice,
	}
	env.customer = mustToken(t, alice)
	env.other = mustToken(t, bob)
	env.operator = mustToken(t, cook)
	return env
}

func mustToken(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := IssueToken(testSecret, u, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func orderBody(lines ...models.CartLine) gin.H {
	return gin.H{
		"items":          append([]models.CartLine{}, lines...),
		"payment_method": "cash",
		"delivery": gin.H{
			"address": "1 Main St",
			"lat":     41.31,
			"lng":     69.24,
		},
	}
}

func (e *testEnv) placeOrder(t *testing.T) *models.Order {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/orders", e.customer, orderBody(models.CartLine{MenuItemID: 1, Quantity: 4}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	o := decode[models.Order](t, w)
	return &o
}

func TestPublicEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/menu", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.MenuItem](t, w), 2)

	w = env.do(t, http.MethodGet, "/api/settings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.StoreSettings](t, w).AcceptingOrders)
}

func TestAuthGuard(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		path   string
		want   int
	}{
		{"missing token", "", "/api/orders", http.StatusUnauthorized},
		{"wrong scheme", "Token abc", "/api/orders", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", "/api/orders", http.StatusUnauthorized},
		{"customer on kitchen route", "Bearer " + env.customer, "/kitchen/orders/x/advance", http.StatusForbidden},
		{"customer ok", "Bearer " + env.customer, "/api/orders", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if strings.HasPrefix(tt.path, "/kitchen") {
				method = http.MethodPost
			}
			req := httptest.NewRequest(method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthGuardRejectsOtherSecret(t *testing.T) {
	env := newTestEnv(t)
	tok, err := IssueToken("another-secret", env.customerUser, time.Hour)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/orders", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t)

	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, int64(2399), order.Total)
	assert.Equal(t, env.customerUser.ID, order.CustomerID)
	assert.Equal(t, "Alice", order.CustomerName)
}

func TestCreateOrderErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/orders", env.customer, gin.H{"payment_method": "cash"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation failed", decode[map[string]interface{}](t, w)["error"])

	w = env.do(t, http.MethodPost, "/api/orders", env.customer, orderBody())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cart is empty", decode[map[string]string](t, w)["error"])

	w = env.do(t, http.MethodPut, "/kitchen/settings", env.operator, gin.H{"accepting_orders": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.StoreSettings](t, w).AcceptingOrders)

	w = env.do(t, http.MethodPost, "/api/orders", env.customer, orderBody(models.CartLine{MenuItemID: 1, Quantity: 1}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/orders", env.operator, nil)
	assert.Empty(t, decode[[]models.Order](t, w))
}

func TestOrderVisibility(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t)

	w := env.do(t, http.MethodGet, "/api/orders/"+order.ID, env.customer, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/orders/"+order.ID, env.other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/orders/"+order.ID, env.operator, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/orders", env.other, nil)
	assert.Empty(t, decode[[]models.Order](t, w))

	w = env.do(t, http.MethodGet, "/api/orders", env.operator, nil)
	assert.Len(t, decode[[]models.Order](t, w), 1)

	w = env.do(t, http.MethodGet, "/api/orders/not-an-id", env.operator, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t)
	path := "/kitchen/orders/" + order.ID

	w := env.do(t, http.MethodPatch, path+"/status", env.operator, gin.H{"status": "cooking"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPatch, path+"/status", env.operator, gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, path+"/status", env.operator, gin.H{"status": "accepted"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusAccepted, decode[models.Order](t, w).Status)

	w = env.do(t, http.MethodPost, path+"/advance", env.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusCooking, decode[models.Order](t, w).Status)

	w = env.do(t, http.MethodPost, path+"/paid", env.operator, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentPaid, decode[models.Order](t, w).PaymentStatus)
}

func TestPositionAndTracking(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t)
	path := "/kitchen/orders/" + order.ID

	w := env.do(t, http.MethodPost, path+"/position", env.operator, gin.H{"lat": 41.3, "lng": 69.2})
	assert.Equal(t, http.StatusConflict, w.Code)

	for i := 0; i < 4; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path+"/advance", env.operator, nil).Code)
	}

	w = env.do(t, http.MethodPost, path+"/position", env.operator, gin.H{"lat": 41.3})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, path+"/position", env.operator, gin.H{"lat": 41.3, "lng": 69.2})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 1, env.tracker.Active())

	require.Eventually(t, func() bool {
		o, err := env.svc.Order().GetOrder(context.Background(), order.ID)
		return err == nil && o.DriverLat != nil
	}, time.Second, 5*time.Millisecond)

	stored, err := env.svc.Order().GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	env.board.Observe(stored)

	w = env.do(t, http.MethodGet, "/api/orders/"+order.ID+"/tracking", env.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[trackingResponse](t, w)
	assert.True(t, resp.Active)
	require.NotNil(t, resp.Tracking)
	assert.True(t, resp.Tracking.HasMarker)
	assert.InDelta(t, 41.3, resp.Tracking.Marker.Lat, 1e-9)

	w = env.do(t, http.MethodDelete, path+"/position", env.operator, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, env.tracker.Active())

	stored, err = env.svc.Order().GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.DriverLat)
	assert.Equal(t, models.StatusDelivering, stored.Status)
}

func TestTrackingInactive(t *testing.T) {
	env := newTestEnv(t)
	order := env.placeOrder(t)

	w := env.do(t, http.MethodGet, "/api/orders/"+order.ID+"/tracking", env.customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[trackingResponse](t, w)
	assert.False(t, resp.Active)
	assert.Nil(t, resp.Tracking)
	assert.Equal(t, models.StatusPending, resp.Status)
}

func TestStreamFiltersByCustomer(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/orders/stream?token="+env.customer, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var name string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "event:") {
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
			if strings.HasPrefix(line, "data:") {
				return name + " " + strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
	}

	assert.True(t, strings.HasPrefix(readEvent(), "ready "))
	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	env.hub.Publish(models.ChangeEvent{Type: models.ChangeInsert, Order: &models.Order{ID: "theirs", CustomerID: 999}})
	env.hub.Publish(models.ChangeEvent{Type: models.ChangeInsert, Order: &models.Order{ID: "mine", CustomerID: env.customerUser.ID}})

	got := readEvent()
	assert.True(t, strings.HasPrefix(got, "insert "), got)
	assert.Contains(t, got, `"id":"mine"`)
	assert.NotContains(t, got, "theirs")
}
