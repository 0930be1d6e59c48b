package intakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/intake/internal/ticket"
	"github.com/linnemanlabs/intake/internal/triage"
)

// defaultWebSender is used when the generic intake form carries no sender.
const defaultWebSender = "Web User"

type chatWebhook struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type emailWebhook struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type intakeWebhook struct {
	Source  string `json:"source"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// ackResponse acknowledges an accepted message with the triage outcome.
type ackResponse struct {
	TicketID              string          `json:"ticket_id"`
	Status                ticket.Status   `json:"status"`
	Category              string          `json:"category"`
	Priority              ticket.Priority `json:"priority"`
	Spam                  bool            `json:"is_spam"`
	ClarificationQuestion string          `json:"clarification_question,omitempty"`
	Message               string          `json:"message"`
}

func (a *API) handleChatWebhook(w http.ResponseWriter, r *http.Request) {
	var wh chatWebhook
	if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(wh.Sender) == "" {
		writeError(w, http.StatusBadRequest, "sender is required")
		return
	}
	if strings.TrimSpace(wh.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	a.intake(w, r, &triage.InboundMessage{
		Source: ticket.SourceChat,
		Sender: wh.Sender,
		Text:   wh.Message,
	})
}

func (a *API) handleEmailWebhook(w http.ResponseWriter, r *http.Request) {
	var wh emailWebhook
	if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(wh.From) == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}
	if strings.TrimSpace(wh.Subject) == "" && strings.TrimSpace(wh.Body) == "" {
		writeError(w, http.StatusBadRequest, "subject or body is required")
		return
	}

	a.intake(w, r, &triage.InboundMessage{
		Source: ticket.SourceEmail,
		Sender: wh.From,
		Text:   foldEmail(wh.Subject, wh.Body),
	})
}

func (a *API) handleIntakeWebhook(w http.ResponseWriter, r *http.Request) {
	var wh intakeWebhook
	if err := json.NewDecoder(r.Body).Decode(&wh); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(wh.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	source := ticket.SourceWeb
	switch ticket.Source(wh.Source) {
	case ticket.SourceChat, ticket.SourceEmail, ticket.SourceWeb:
		source = ticket.Source(wh.Source)
	case "":
	default:
		writeError(w, http.StatusBadRequest, "unknown source")
		return
	}

	sender := strings.TrimSpace(wh.Sender)
	if sender == "" {
		sender = defaultWebSender
	}

	a.intake(w, r, &triage.InboundMessage{
		Source: source,
		Sender: sender,
		Text:   wh.Message,
	})
}

// intake runs the triage pipeline for one validated inbound message and
// writes the acknowledgment.
func (a *API) intake(w http.ResponseWriter, r *http.Request, msg *triage.InboundMessage) {
	ctx := r.Context()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("intake.source", string(msg.Source)))

	t, err := a.svc.Intake(ctx, msg)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client went away mid-triage; nothing was persisted.
			a.logger.Warn(ctx, "intake abandoned by caller", "source", msg.Source)
			return
		}
		a.logger.Error(ctx, err, "intake failed", "source", msg.Source)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span.SetAttributes(
		attribute.String("intake.ticket.id", t.ID),
		attribute.String("intake.ticket.status", string(t.Status)),
	)

	writeJSON(w, http.StatusCreated, &ackResponse{
		TicketID:              t.ID,
		Status:                t.Status,
		Category:              t.Category,
		Priority:              t.Priority,
		Spam:                  t.Spam,
		ClarificationQuestion: t.ClarificationQuestion,
		Message:               ackLine(t),
	})
}

func ackLine(t *ticket.Ticket) string {
	switch {
	case t.Spam:
		return "Your message could not be processed as a support request."
	case !t.Complete && t.ClarificationQuestion != "":
		return "We need a bit more detail: " + t.ClarificationQuestion
	default:
		return fmt.Sprintf("Ticket %s created with %s priority.", t.ID, t.Priority)
	}
}

func foldEmail(subject, body string) string {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	switch {
	case subject == "":
		return body
	case body == "":
		return subject
	default:
		return subject + "\n\n" + body
	}
}
