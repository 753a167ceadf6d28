package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/pos-checkout/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware кассового сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/employee/register", h.Register)
		r.Post("/employee/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/products", h.ListProducts)
			r.Post("/products", h.CreateProduct)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/lines", h.AddCartLine)
			r.Delete("/cart/lines/{productID}", h.RemoveCartLine)
			r.Delete("/cart", h.ClearCart)

			r.Post("/checkout", h.BeginCheckout)
			r.Get("/checkout/{attemptID}", h.GetCheckout)
			r.Delete("/checkout/{attemptID}", h.CancelCheckout)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{orderID}", h.GetOrder)
			r.Get("/reports/today", h.TodaySummary)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
