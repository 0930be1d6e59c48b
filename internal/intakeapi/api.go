// Package intakeapi exposes the HTTP surface: intake webhooks, the ticket
// admin API, and the live event stream.
package intakeapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/intake/internal/ticket"
	"github.com/linnemanlabs/intake/internal/triage"
)

// IntakeService defines the business operations intakeapi needs.
type IntakeService interface {
	Intake(ctx context.Context, msg *triage.InboundMessage) (*ticket.Ticket, error)
	Get(ctx context.Context, id string) (*ticket.Ticket, bool, error)
	List(ctx context.Context, limit, offset int) ([]*ticket.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status ticket.Status) (*ticket.Ticket, bool, error)
	Assign(ctx context.Context, id, admin string) (*ticket.Ticket, bool, error)
	Stats(ctx context.Context) (*ticket.Stats, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    IntakeService
	events http.Handler                    // websocket event stream, optional
	auth   func(http.Handler) http.Handler // admin endpoint middleware, optional
}

// New creates a new API handler. events and auth may be nil.
func New(logger log.Logger, svc IntakeService, events http.Handler, auth func(http.Handler) http.Handler) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("intake service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		events: events,
		auth:   auth,
	}
}

// RegisterRoutes attaches API endpoints to the router. Webhook intake stays
// open; the admin routes go behind the auth middleware when one is set.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/chat", a.handleChatWebhook)
		r.Post("/email", a.handleEmailWebhook)
		r.Post("/intake", a.handleIntakeWebhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if a.events != nil {
			r.Get("/events", a.events.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			if a.auth != nil {
				r.Use(a.auth)
			}
			r.Get("/tickets", a.handleListTickets)
			r.Get("/tickets/stats", a.handleStats)
			r.Get("/tickets/{id}", a.handleGetTicket)
			r.Patch("/tickets/{id}/status", a.handleUpdateStatus)
			r.Patch("/tickets/{id}/assign", a.handleAssign)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
