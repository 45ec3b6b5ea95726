package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traqcheck/bgv-agent/internal/api"
	apiMiddleware "github.com/traqcheck/bgv-agent/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() (http.Handler, error) {
	agentHandler, err := api.NewAgentHandler(api.AgentHandlerDeps{
		Agent:     app.provider,
		Requests:  app.stores.requests,
		Audit:     app.stores.audit,
		Emitter:   app.emitter,
		Reminders: app.reminder,
		Dedupe:    app.dedupe,
		Version:   version,
	}, app.logger)
	if err != nil {
		return nil, err
	}
	auditHandler, err := api.NewAuditHandler(app.stores.audit, app.logger)
	if err != nil {
		return nil, err
	}

	gate := apiMiddleware.NewServiceAuth(app.config.Auth.ServiceSecretHash, app.config.Auth.JWTSecret)
	if !gate.Enabled() {
		app.logger.Warn("service authentication disabled, /agent and /api are open")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	r.Get("/", agentHandler.Root)
	r.Get("/health", agentHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/agent", func(r chi.Router) {
		r.Use(gate.Handler)
		r.Post("/reset", agentHandler.Reset)
		r.Post("/send-credentials", agentHandler.SendCredentials)
		r.Post("/send-reminder", agentHandler.SendReminder)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(gate.Handler)
		r.Get("/bgv-requests/{id}/agent-logs", auditHandler.AgentLogs)
	})

	return r, nil
}
