package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/pos-checkout/internal/checkout"
	"github.com/mmeshcher/pos-checkout/internal/middleware"
	"github.com/mmeshcher/pos-checkout/internal/model"
	"github.com/mmeshcher/pos-checkout/internal/register"
	"github.com/mmeshcher/pos-checkout/internal/validation"
)

const maxWait = 30 * time.Second

type cartResponse struct {
	Lines []model.CartLine `json:"lines"`
	Total model.Money      `json:"total"`
}

type addLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity,omitempty"`
}

type checkoutRequest struct {
	PaymentMethod string `json:"payment_method"`
	Tendered      string `json:"tendered"`
}

type attemptResponse struct {
	AttemptID string         `json:"attempt_id"`
	State     checkout.State `json:"state"`
	Done      bool           `json:"done"`
	OrderID   int64          `json:"order_id,omitempty"`
	Total     model.Money    `json:"total"`
	Change    model.Money    `json:"change"`
	Error     string         `json:"error,omitempty"`
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*register.Session, bool) {
	employeeID, err := middleware.CurrentEmployeeID(r.Context())
	if err != nil {
		h.writeError(w, "current employee", err)
		return nil, false
	}

	s, err := h.registers.Session(employeeID)
	if err != nil {
		h.writeError(w, "open register session", err)
		return nil, false
	}
	return s, true
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, s *register.Session) {
	lines, err := s.Lines(r.Context())
	if err != nil {
		h.writeError(w, "read cart error", err)
		return
	}

	resp := cartResponse{Lines: lines}
	if resp.Lines == nil {
		resp.Lines = []model.CartLine{}
	}
	for _, l := range lines {
		resp.Total += l.Subtotal
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCart возвращает корзину текущего сотрудника.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeCart(w, r, s)
}

// AddCartLine добавляет товар в корзину. Без quantity добавляется одна единица.
func (h *Handler) AddCartLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID <= 0 {
		badRequest(w)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	if err := s.AddToCart(r.Context(), req.ProductID, qty); err != nil {
		h.writeError(w, "add to cart error", err)
		return
	}
	h.writeCart(w, r, s)
}

// RemoveCartLine удаляет строку товара из корзины.
func (h *Handler) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	productID, ok := pathID(r, "productID")
	if !ok {
		badRequest(w)
		return
	}

	if err := s.RemoveFromCart(r.Context(), productID); err != nil {
		h.writeError(w, "remove from cart error", err)
		return
	}
	h.writeCart(w, r, s)
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.ClearCart(r.Context()); err != nil {
		h.writeError(w, "clear cart error", err)
		return
	}
	h.writeCart(w, r, s)
}

// BeginCheckout запускает оформление продажи и сразу возвращает идентификатор попытки.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	method, err := validation.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.writeError(w, "begin checkout error", err)
		return
	}

	a, err := s.BeginCheckout(r.Context(), method, req.Tendered)
	if err != nil {
		h.writeError(w, "begin checkout error", err)
		return
	}

	writeJSON(w, http.StatusAccepted, attemptView(a))
}

// GetCheckout возвращает состояние попытки. С параметром wait ждёт результата не дольше указанного.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	a, ok := h.attempt(w, r)
	if !ok {
		return
	}

	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			badRequest(w)
			return
		}
		if d > maxWait {
			d = maxWait
		}

		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		_, _ = a.Wait(ctx)
	}

	writeJSON(w, http.StatusOK, attemptView(a))
}

// CancelCheckout просит прервать попытку. Запись, которая уже началась, доводится до конца.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	a, ok := h.attempt(w, r)
	if !ok {
		return
	}

	a.Cancel()
	h.logger.Info("checkout cancel requested", zap.String("attemptID", a.ID))
	writeJSON(w, http.StatusAccepted, attemptView(a))
}

func (h *Handler) attempt(w http.ResponseWriter, r *http.Request) (*register.Attempt, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}

	a, err := s.Attempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		h.writeError(w, "find checkout attempt", err)
		return nil, false
	}
	return a, true
}

func attemptView(a *register.Attempt) attemptResponse {
	resp := attemptResponse{AttemptID: a.ID, State: a.State()}

	out, done := a.Result()
	if !done {
		return resp
	}

	resp.Done = true
	resp.State = out.State
	resp.OrderID = out.OrderID
	resp.Total = out.Total
	resp.Change = out.Change
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	return resp
}
