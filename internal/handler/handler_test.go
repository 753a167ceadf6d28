package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mmeshcher/pos-checkout/internal/checkout"
	"github.com/mmeshcher/pos-checkout/internal/metrics"
	"github.com/mmeshcher/pos-checkout/internal/middleware"
	"github.com/mmeshcher/pos-checkout/internal/model"
	"github.com/mmeshcher/pos-checkout/internal/register"
)

type stubService struct {
	registerID  int64
	registerErr error

	authID  int64
	authErr error

	orders    []model.Order
	ordersErr error
	order     *model.Order
	orderErr  error
	summary   model.SalesSummary
}

func (s *stubService) RegisterEmployee(ctx context.Context, login, fullName, password string) (int64, error) {
	return s.registerID, s.registerErr
}

func (s *stubService) AuthenticateEmployee(ctx context.Context, login, password string) (int64, error) {
	return s.authID, s.authErr
}

func (s *stubService) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return s.orders, s.ordersErr
}

func (s *stubService) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) TodaySummary(ctx context.Context) (model.SalesSummary, error) {
	return s.summary, nil
}

type stubCatalog struct {
	products map[int64]model.Product
}

func (c *stubCatalog) ListAvailable(ctx context.Context) ([]model.Product, error) {
	var res []model.Product
	for _, p := range c.products {
		res = append(res, p)
	}
	return res, nil
}

func (c *stubCatalog) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	return &p, nil
}

func (c *stubCatalog) CreateProduct(ctx context.Context, name string, price model.Money, stock int) (*model.Product, error) {
	return &model.Product{ID: 99, Name: name, Price: price, Stock: stock}, nil
}

// stubCheckout завершает любую непустую корзину успехом.
type stubCheckout struct{}

func (stubCheckout) Checkout(ctx context.Context, req checkout.Request, observe checkout.Observer) checkout.Outcome {
	observe(checkout.StateValidating)
	if len(req.Lines) == 0 {
		observe(checkout.StateFailed)
		return checkout.Outcome{State: checkout.StateFailed, Err: model.ErrEmptyCart}
	}
	var total model.Money
	for _, l := range req.Lines {
		total += l.Subtotal
	}
	observe(checkout.StateSucceeded)
	return checkout.Outcome{State: checkout.StateSucceeded, OrderID: 7, Total: total}
}

type testServer struct {
	handler *Handler
	router  http.Handler
	cookie  *http.Cookie
}

func newTestServer(t *testing.T, svc *stubService) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cat := &stubCatalog{products: map[int64]model.Product{
		1: {ID: 1, Name: "Coffee", Price: 25000, Stock: 3},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	pool := register.NewPool(1, 4, logger)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		_ = pool.Run(ctx)
	}()
	regs := register.NewRegistry(ctx, cat, stubCheckout{}, pool, nil, logger)
	t.Cleanup(func() {
		regs.Close()
		cancel()
		<-poolDone
	})

	reg := prometheus.NewRegistry()
	metrics.NewCheckout(reg)

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, cat, regs, logger, auth,
		WithMetrics(metrics.Handler(reg)),
		WithCurrencyScale(2),
	)

	rec := httptest.NewRecorder()
	auth.SetAuthCookie(rec, 5)

	return &testServer{handler: h, router: h.SetupRouter(), cookie: rec.Result().Cookies()[0]}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	req.AddCookie(ts.cookie)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec.Result()
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func TestRegister_SetsCookie(t *testing.T) {
	ts := newTestServer(t, &stubService{registerID: 42})

	body, _ := json.Marshal(credentialsRequest{Login: "anna", Password: "pass"})
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/employee/register", bytes.NewReader(body)))

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Cookies())
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "duplicate login",
			svc:        &stubService{registerErr: model.ErrEmployeeExists},
			body:       `{"login":"anna","password":"pass"}`,
			wantStatus: http.StatusConflict,
			wantError:  "employee already exists",
		},
		{
			name:       "missing password",
			svc:        &stubService{},
			body:       `{"login":"anna"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Bad Request",
		},
		{
			name:       "raw storage failure",
			svc:        &stubService{registerErr: errors.New("pq: connection refused")},
			body:       `{"login":"anna","password":"pass"}`,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "ledger unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.svc)
			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/employee/register", strings.NewReader(tt.body)))

			res := rec.Result()
			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Equal(t, tt.wantError, decode[errorResponse](t, res).Error)
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts := newTestServer(t, &stubService{authErr: model.ErrInvalidCredentials})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/employee/login",
		strings.NewReader(`{"login":"anna","password":"bad"}`)))

	assert.Equal(t, http.StatusUnauthorized, rec.Result().StatusCode)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	res := rec.Result()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "not logged in", decode[errorResponse](t, res).Error)
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t, &stubService{})

	res := ts.do(t, http.MethodGet, "/api/products", nil)
	products := decode[[]model.Product](t, res)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, products, 1)

	res = ts.do(t, http.MethodPost, "/api/products", productRequest{Name: "Tea", Price: "12.50", Stock: 4})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, model.Money(1250), decode[model.Product](t, res).Price)

	res = ts.do(t, http.MethodPost, "/api/products", productRequest{Name: "Tea", Price: "12.505", Stock: 4})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "invalid product", decode[errorResponse](t, res).Error)
}

func TestCartLifecycle(t *testing.T) {
	ts := newTestServer(t, &stubService{})

	res := ts.do(t, http.MethodGet, "/api/cart", nil)
	empty := decode[cartResponse](t, res)
	assert.Empty(t, empty.Lines)
	assert.NotNil(t, empty.Lines)

	res = ts.do(t, http.MethodPost, "/api/cart/lines", map[string]any{"product_id": 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	c := decode[cartResponse](t, res)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, model.Money(25000), c.Total)

	res = ts.do(t, http.MethodPost, "/api/cart/lines", map[string]any{"product_id": 1, "quantity": 2})
	c = decode[cartResponse](t, res)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.Equal(t, model.Money(75000), c.Total)

	res = ts.do(t, http.MethodPost, "/api/cart/lines", map[string]any{"product_id": 1, "quantity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "insufficient stock", decode[errorResponse](t, res).Error)

	res = ts.do(t, http.MethodPost, "/api/cart/lines", map[string]any{"product_id": 2})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = ts.do(t, http.MethodDelete, "/api/cart/lines/5", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "line not found", decode[errorResponse](t, res).Error)

	res = ts.do(t, http.MethodDelete, "/api/cart/lines/1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[cartResponse](t, res).Lines)
}

func TestCheckoutFlow(t *testing.T) {
	ts := newTestServer(t, &stubService{})

	res := ts.do(t, http.MethodPost, "/api/cart/lines", map[string]any{"product_id": 1, "quantity": 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	res = ts.do(t, http.MethodPost, "/api/checkout", checkoutRequest{PaymentMethod: "cash", Tendered: "500.00"})
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	started := decode[attemptResponse](t, res)
	require.NotEmpty(t, started.AttemptID)

	res = ts.do(t, http.MethodGet, "/api/checkout/"+started.AttemptID+"?wait=5s", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	final := decode[attemptResponse](t, res)
	assert.True(t, final.Done)
	assert.Equal(t, checkout.StateSucceeded, final.State)
	assert.Equal(t, int64(7), final.OrderID)
	assert.Equal(t, model.Money(25000), final.Total)

	res = ts.do(t, http.MethodGet, "/api/checkout/"+started.AttemptID, nil)
	raw := decode[map[string]any](t, res)
	assert.Equal(t, float64(25000), raw["total"])
	assert.Contains(t, raw, "change")
	assert.Equal(t, float64(0), raw["change"])

	res = ts.do(t, http.MethodGet, "/api/cart", nil)
	assert.Empty(t, decode[cartResponse](t, res).Lines)

	res = ts.do(t, http.MethodDelete, "/api/checkout/"+started.AttemptID, nil)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	res.Body.Close()
}

func TestCheckoutErrors(t *testing.T) {
	ts := newTestServer(t, &stubService{})

	res := ts.do(t, http.MethodPost, "/api/checkout", checkoutRequest{PaymentMethod: "cheque"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Equal(t, "invalid payment", decode[errorResponse](t, res).Error)

	res = ts.do(t, http.MethodGet, "/api/checkout/unknown", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()

	res = ts.do(t, http.MethodGet, "/api/checkout/unknown?wait=forever", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res.Body.Close()
}

func TestOrdersAndReports(t *testing.T) {
	svc := &stubService{
		orderErr:  model.ErrOrderNotFound,
		ordersErr: errors.New("dial tcp 10.0.0.1:5432: i/o timeout"),
		summary:   model.SalesSummary{Orders: 3, Total: 90000},
	}
	ts := newTestServer(t, svc)

	res := ts.do(t, http.MethodGet, "/api/orders/12", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "order not found", decode[errorResponse](t, res).Error)

	res = ts.do(t, http.MethodGet, "/api/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	res.Body.Close()

	res = ts.do(t, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	body := decode[errorResponse](t, res)
	assert.Equal(t, "ledger unavailable", body.Error)

	res = ts.do(t, http.MethodGet, "/api/reports/today", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, svc.summary, decode[model.SalesSummary](t, res))

	svc.ordersErr = nil
	res = ts.do(t, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	res.Body.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pos_checkout_in_flight")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(model.ErrConcurrentStockConflict))
	assert.Equal(t, http.StatusConflict, statusFor(model.ErrCheckoutInProgress))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(model.ErrEmptyCart))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(model.ErrLedgerUnavailable))
}
