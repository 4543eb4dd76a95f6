package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lumaline/payrecon/internal/app/engine"
)

type BaseHandler struct {
	*chi.Mux
	engine         *engine.Engine
	callbackSecret []byte
}

func NewBaseHandler(eng *engine.Engine, callbackSecret string) *BaseHandler {
	bh := &BaseHandler{
		Mux:            chi.NewMux(),
		engine:         eng,
		callbackSecret: []byte(callbackSecret),
	}

	bh.Use(middleware.RequestID)
	bh.Use(middleware.RealIP)
	bh.Use(middleware.Logger)
	bh.Use(middleware.Recoverer)

	bh.Use(middleware.Compress(5))
	bh.Use(gzipHandle)

	bh.Route("/webhooks", func(r chi.Router) {
		r.Post("/order-created", bh.orderCreated())
		r.Post("/gateway-callback", bh.gatewayCallback())
	})
	bh.Get("/healthz", bh.healthz())

	return bh
}
