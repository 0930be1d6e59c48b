package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/intake/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/intake/internal/triage")

const (
	// DefaultClassifyTimeout bounds the primary classification call. On expiry
	// the gateway reports failure like any other classifier error; it never
	// retries.
	DefaultClassifyTimeout = 15 * time.Second

	// DefaultValidateTimeout bounds the best-effort department revalidation
	// pass.
	DefaultValidateTimeout = 5 * time.Second

	ClassifyMaxTokens = 1024
	ValidateMaxTokens = 256
)

// Provider is the interface to an LLM completion backend.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// CompletionRequest is a single-shot prompt for the provider.
type CompletionRequest struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completion is the provider's response text plus token usage.
type Completion struct {
	Text  string
	Usage Usage
}

// Usage reports token consumption for one provider call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// GatewayHooks receives instrumentation callbacks from the gateway.
type GatewayHooks struct {
	// OnCall fires after every provider call. op is "classify" or "validate".
	OnCall func(op string, usage Usage, duration float64, err error)
}

func (h GatewayHooks) call(op string, usage Usage, duration float64, err error) {
	if h.OnCall != nil {
		h.OnCall(op, usage, duration, err)
	}
}

// GatewayConfig carries the gateway deadlines. Zero values get defaults.
type GatewayConfig struct {
	ClassifyTimeout time.Duration
	ValidateTimeout time.Duration
}

// Gateway wraps the external classification call: input shaping, a hard
// deadline, and fail-closed response decoding. It holds no mutable state and
// is safe for concurrent use.
type Gateway struct {
	provider        Provider
	classifyTimeout time.Duration
	validateTimeout time.Duration
	logger          log.Logger
	hooks           GatewayHooks
}

// NewGateway creates a classifier gateway around the given provider.
func NewGateway(provider Provider, cfg GatewayConfig, logger log.Logger, hooks GatewayHooks) *Gateway {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = DefaultClassifyTimeout
	}
	if cfg.ValidateTimeout <= 0 {
		cfg.ValidateTimeout = DefaultValidateTimeout
	}
	return &Gateway{
		provider:        provider,
		classifyTimeout: cfg.ClassifyTimeout,
		validateTimeout: cfg.ValidateTimeout,
		logger:          logger,
		hooks:           hooks,
	}
}

// Classify obtains a classification for text from the provider, with the
// supplied open primary incidents as duplicate-matching context. It returns
// the decoded classification and the raw response. Timeouts, transport errors
// and decode failures are all reported as a single error class; the caller
// substitutes the fallback.
func (g *Gateway) Classify(ctx context.Context, text string, active []ticket.IncidentRef) (*Classification, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", errors.New("classify: empty message text")
	}

	resp, err := g.complete(ctx, "classify", g.classifyTimeout, &CompletionRequest{
		System:    classifySystemPrompt,
		Prompt:    buildClassifyPrompt(text, active),
		MaxTokens: ClassifyMaxTokens,
	})
	if err != nil {
		return nil, "", fmt.Errorf("classify: %w", err)
	}

	c, err := decodeClassification(resp.Text)
	if err != nil {
		return nil, resp.Text, fmt.Errorf("classify: %w", err)
	}

	// Secondary department pass. Best effort: a failure here never fails the
	// classification, it just leaves the verdict absent.
	if !c.Spam && c.Department.Valid() {
		v, verr := g.validateDepartment(ctx, text, c.Department)
		if verr != nil {
			g.logger.Warn(ctx, "department revalidation skipped", "error", verr.Error())
		} else {
			c.Validation = v
		}
	}

	return c, resp.Text, nil
}

func (g *Gateway) validateDepartment(ctx context.Context, text string, dept ticket.Department) (*DeptValidation, error) {
	resp, err := g.complete(ctx, "validate", g.validateTimeout, &CompletionRequest{
		System:    validateSystemPrompt,
		Prompt:    buildValidatePrompt(text, dept),
		MaxTokens: ValidateMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("validate department: %w", err)
	}

	return decodeValidation(resp.Text)
}

// complete runs one bounded provider call with tracing and metrics hooks.
func (g *Gateway) complete(ctx context.Context, op string, timeout time.Duration, req *CompletionRequest) (*Completion, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cctx, span := tracer.Start(cctx, "llm.call", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", op),
	))
	defer span.End()

	start := time.Now()
	resp, err := g.provider.Complete(cctx, req)
	if err != nil {
		g.hooks.call(op, Usage{}, time.Since(start).Seconds(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm call failed")
		return nil, err
	}
	g.hooks.call(op, resp.Usage, time.Since(start).Seconds(), nil)
	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)

	return resp, nil
}

const classifySystemPrompt = `You are an IT support triage engine. You receive one raw support message
plus the list of currently open primary incidents, and you answer with a single
JSON object and nothing else. Be decisive: every field in the schema must be
filled according to the rules. Do not invent incident ids that are not in the
provided list.`

const validateSystemPrompt = `You are a department validation engine. Given one support message and the
department it was assigned to, you answer with a single JSON object and nothing
else.`

func buildClassifyPrompt(text string, active []ticket.IncidentRef) string {
	var b strings.Builder

	b.WriteString("Support message:\n")
	b.WriteString(text)
	b.WriteString("\n\nOpen primary incidents (for duplicate matching):\n")
	if len(active) == 0 {
		b.WriteString("(none)\n")
	} else {
		refs, _ := json.MarshalIndent(active, "", "  ")
		b.Write(refs)
		b.WriteString("\n")
	}

	b.WriteString(`
Classification rules:

Priority:
- Critical: total outage, security incident, many users blocked
- High: system down, business blocked, repeated failures, urgent keywords
- Medium: functional issue with a workaround
- Low: minor, cosmetic, informational

Department:
- Network: internet, WiFi, VPN, slow network, connectivity
- Hardware: laptop, desktop, printer, physical devices
- Software: applications, OS, website, email client, bugs
- Access: login, password, permissions, account lock

Sentiment:
- Calm: neutral wording, no urgency
- Frustrated: repeated issues, delays, mild urgency
- Angry: strong language, escalation, threats, caps

Spam: set is_spam true with spam_reason "no_intent" (greeting or gibberish with
no request) or "random_text" (keyboard mashing) when the message contains no
actionable support request. Spam needs no other classification.

Duplicates: if the message describes the same underlying incident as one of
the open primary incidents above, set is_duplicate true, parent_incident_id to
that incident's id, similarity_score 0-100 and a short swarm_reason.

Completeness: if the message lacks the detail needed to act on it, set
is_complete false and write one concrete clarification_question.

Respond with JSON only:
{
  "summary": "one-sentence summary",
  "category": "generic category",
  "priority": "Low | Medium | High | Critical",
  "department": "Network | Hardware | Software | Access",
  "sentiment": "Calm | Frustrated | Angry",
  "is_spam": false,
  "spam_reason": "no_intent | random_text",
  "is_duplicate": false,
  "parent_incident_id": "",
  "similarity_score": 0,
  "swarm_reason": "",
  "is_complete": true,
  "clarification_question": "",
  "handoff_summary": "short narrative for the human agent",
  "ai_attempts": "what was already tried or ruled out",
  "next_best_action": "suggested first step for the agent"
}`)

	return b.String()
}

func buildValidatePrompt(text string, dept ticket.Department) string {
	return fmt.Sprintf(`Support message:
%s

Assigned department: %s

Validate the assignment with keyword-rule mapping:
- Network: internet, WiFi, VPN, connectivity
- Hardware: laptop, physical devices
- Software: apps, website, OS bugs
- Access: login, password, permissions

High-confidence mismatch: action "reroute" with the correct department.
Low-confidence mismatch: action "flag_for_human", keep the department.
Good assignment: action "keep".

Respond with JSON only:
{
  "is_misrouted": false,
  "correct_department": "Network | Hardware | Software | Access",
  "confidence": 0.0,
  "action": "reroute | keep | flag_for_human"
}`, text, dept)
}

// classifierPayload is the wire shape of the classifier response.
type classifierPayload struct {
	Summary               string `json:"summary"`
	Category              string `json:"category"`
	Priority              string `json:"priority"`
	Department            string `json:"department"`
	Sentiment             string `json:"sentiment"`
	IsSpam                bool   `json:"is_spam"`
	SpamReason            string `json:"spam_reason"`
	IsDuplicate           bool   `json:"is_duplicate"`
	ParentIncidentID      string `json:"parent_incident_id"`
	SimilarityScore       int    `json:"similarity_score"`
	SwarmReason           string `json:"swarm_reason"`
	IsComplete            *bool  `json:"is_complete"`
	ClarificationQuestion string `json:"clarification_question"`
	HandoffSummary        string `json:"handoff_summary"`
	AIAttempts            string `json:"ai_attempts"`
	NextBestAction        string `json:"next_best_action"`
}

// decodeClassification parses a model response into a Classification. It fails
// closed: a missing or invalid required field is a decode error, not a partial
// success.
func decodeClassification(raw string) (*Classification, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var p classifierPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if p.Summary == "" {
		return nil, errors.New("decode response: missing summary")
	}
	if p.Category == "" {
		return nil, errors.New("decode response: missing category")
	}

	c := &Classification{
		Summary:               p.Summary,
		Category:              p.Category,
		Spam:                  p.IsSpam,
		Duplicate:             p.IsDuplicate,
		ParentIncidentID:      p.ParentIncidentID,
		SimilarityScore:       p.SimilarityScore,
		SwarmReason:           p.SwarmReason,
		Complete:              true,
		ClarificationQuestion: p.ClarificationQuestion,
		HandoffSummary:        p.HandoffSummary,
		AIAttempts:            p.AIAttempts,
		NextBestAction:        p.NextBestAction,
	}
	if p.IsComplete != nil {
		c.Complete = *p.IsComplete
	}

	if p.IsSpam {
		c.Priority = ticket.PriorityNone
		switch ticket.SpamReason(p.SpamReason) {
		case ticket.SpamRandomText:
			c.SpamReason = ticket.SpamRandomText
		default:
			c.SpamReason = ticket.SpamNoIntent
		}
		return c, nil
	}

	c.Priority = ticket.Priority(p.Priority)
	if !c.Priority.Valid() || c.Priority == ticket.PriorityNone {
		return nil, fmt.Errorf("decode response: invalid priority %q", p.Priority)
	}
	c.Department = ticket.Department(p.Department)
	if !c.Department.Valid() {
		return nil, fmt.Errorf("decode response: invalid department %q", p.Department)
	}
	c.Sentiment = ticket.Sentiment(p.Sentiment)
	if !c.Sentiment.Valid() {
		return nil, fmt.Errorf("decode response: invalid sentiment %q", p.Sentiment)
	}

	return c, nil
}

type validationPayload struct {
	IsMisrouted       bool    `json:"is_misrouted"`
	CorrectDepartment string  `json:"correct_department"`
	Confidence        float64 `json:"confidence"`
	Action            string  `json:"action"`
}

func decodeValidation(raw string) (*DeptValidation, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var p validationPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode validation: %w", err)
	}

	v := &DeptValidation{
		Department: ticket.Department(p.CorrectDepartment),
		Confidence: clampConfidence(p.Confidence),
	}
	switch ValidationAction(p.Action) {
	case ValidationReroute:
		v.Action = ValidationReroute
	case ValidationFlagForHuman:
		v.Action = ValidationFlagForHuman
	default:
		v.Action = ValidationKeep
	}
	return v, nil
}

func clampConfidence(f float64) int {
	n := int(math.Round(f * 100))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// extractJSON pulls the JSON object out of a model response, tolerating
// markdown fences and prose around it.
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", errors.New("decode response: no JSON object found")
	}
	return raw[start : end+1], nil
}
