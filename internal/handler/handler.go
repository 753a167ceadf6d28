// Package handler содержит HTTP-обработчики API кассового сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-checkout/internal/middleware"
	"github.com/mmeshcher/pos-checkout/internal/model"
	"github.com/mmeshcher/pos-checkout/internal/register"
	"github.com/mmeshcher/pos-checkout/internal/validation"
)

// Service определяет вход сотрудников и отчёты, используемые HTTP-обработчиками.
type Service interface {
	RegisterEmployee(ctx context.Context, login, fullName, password string) (int64, error)
	AuthenticateEmployee(ctx context.Context, login, password string) (int64, error)
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	TodaySummary(ctx context.Context) (model.SalesSummary, error)
}

// Catalog отдаёт и пополняет каталог товаров.
type Catalog interface {
	ListAvailable(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, name string, price model.Money, stock int) (*model.Product, error)
}

// Registers выдаёт кассовую сессию сотрудника.
type Registers interface {
	Session(employeeID int64) (*register.Session, error)
}

// Handler реализует HTTP-обработчики API кассового сервиса.
type Handler struct {
	service        Service
	catalog        Catalog
	registers      Registers
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        http.Handler
	scale          int32
}

// Option настраивает Handler.
type Option func(*Handler)

// WithMetrics публикует обработчик метрик на /metrics.
func WithMetrics(h http.Handler) Option {
	return func(hd *Handler) { hd.metrics = h }
}

// WithCurrencyScale задаёт число дробных знаков при разборе цен.
func WithCurrencyScale(scale int32) Option {
	return func(hd *Handler) { hd.scale = scale }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, c Catalog, regs Registers, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		catalog:        c,
		registers:      regs,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError отвечает видом ошибки. Исходный текст ошибки хранилища наружу не попадает.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, register.ErrAttemptNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: register.ErrAttemptNotFound.Error()})
		return
	case errors.Is(err, register.ErrSessionClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: model.ErrLedgerUnavailable.Error()})
		return
	}

	kind := model.Classify(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op, zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: kind.Error()})
}

func statusFor(kind error) int {
	switch kind {
	case model.ErrEmptyCart, model.ErrOutOfStock, model.ErrInsufficientStock,
		model.ErrInvalidPayment, model.ErrInvalidQuantity, model.ErrInvalidProduct:
		return http.StatusUnprocessableEntity
	case model.ErrConcurrentStockConflict, model.ErrCheckoutInProgress,
		model.ErrEmployeeExists, model.ErrCheckoutCancelled:
		return http.StatusConflict
	case model.ErrLineNotFound, model.ErrProductNotFound, model.ErrOrderNotFound:
		return http.StatusNotFound
	case model.ErrNotLoggedIn, model.ErrInvalidCredentials, model.ErrEmployeeNotFound:
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

func badRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: http.StatusText(http.StatusBadRequest)})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// Register обрабатывает регистрацию нового сотрудника и открывает его смену.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	if req.Login == "" || req.Password == "" {
		badRequest(w)
		return
	}

	employeeID, err := h.service.RegisterEmployee(r.Context(), req.Login, req.FullName, req.Password)
	if err != nil {
		h.writeError(w, "register employee error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, employeeID)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию сотрудника и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	if req.Login == "" || req.Password == "" {
		badRequest(w)
		return
	}

	employeeID, err := h.service.AuthenticateEmployee(r.Context(), req.Login, req.Password)
	if err != nil {
		h.writeError(w, "login employee error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, employeeID)
	w.WriteHeader(http.StatusOK)
}

// ListProducts возвращает товары, доступные к продаже.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListAvailable(r.Context())
	if err != nil {
		h.writeError(w, "list products error", err)
		return
	}

	if len(products) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

type productRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	price, err := validation.ParseAmount(req.Price, h.scale)
	if err != nil {
		h.writeError(w, "create product error", model.ErrInvalidProduct)
		return
	}

	p, err := h.catalog.CreateProduct(r.Context(), req.Name, price, req.Stock)
	if err != nil {
		h.writeError(w, "create product error", err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// ListOrders возвращает последние зафиксированные заказы.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w)
			return
		}
		limit = n
	}

	orders, err := h.service.ListOrders(r.Context(), limit)
	if err != nil {
		h.writeError(w, "list orders error", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ со строками.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "orderID")
	if !ok {
		badRequest(w)
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, "get order error", err)
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// TodaySummary возвращает итоги продаж за текущие сутки.
func (h *Handler) TodaySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.TodaySummary(r.Context())
	if err != nil {
		h.writeError(w, "today summary error", err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
