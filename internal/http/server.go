package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors)
	r.Use(countRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", handler.Status)
	r.Get("/config", handler.Config)
	r.Post("/tx", handler.Broadcast)
	r.Get("/websocket", handler.Websocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", handler.ListOrders)
		r.Get("/{orderId}", handler.GetOrder)
	})
	r.Get("/owners/{owner}/orders", handler.OwnerOrders)
	r.Get("/purchases/last", handler.LastPurchase)
	r.Get("/balances/{address}", handler.Balances)
	r.Get("/accounts/{address}", handler.Account)

	if handler.Sim {
		r.Route("/sim", func(r chi.Router) {
			r.Post("/mint", handler.Mint)
			r.Post("/approve", handler.Approve)
		})
	}

	return &Server{Router: r}
}
