package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/intake/internal/ticket"
)

// mockProvider returns preconfigured completions in sequence.
type mockProvider struct {
	mu        sync.Mutex
	responses []*Completion
	errs      []error
	callIdx   int
	requests  []*CompletionRequest
	block     bool // block until ctx is done, to exercise the deadline
}

func (m *mockProvider) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	m.mu.Lock()
	idx := m.callIdx
	m.callIdx++
	m.requests = append(m.requests, req)
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return nil, errors.New("mock: no response configured")
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callIdx
}

const validClassifyJSON = `{
	"summary": "VPN is down for the user",
	"category": "Connectivity",
	"priority": "High",
	"department": "Network",
	"sentiment": "Frustrated",
	"is_spam": false,
	"is_duplicate": false,
	"is_complete": true,
	"handoff_summary": "user cannot reach the office network",
	"next_best_action": "check VPN concentrator"
}`

const keepValidationJSON = `{"is_misrouted": false, "correct_department": "Network", "confidence": 0.95, "action": "keep"}`

func newTestGateway(p Provider) *Gateway {
	return NewGateway(p, GatewayConfig{}, log.Nop(), GatewayHooks{})
}

func TestClassify_Success(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*Completion{
		{Text: validClassifyJSON, Usage: Usage{InputTokens: 200, OutputTokens: 80}},
		{Text: keepValidationJSON},
	}}
	g := newTestGateway(provider)

	c, raw, err := g.Classify(context.Background(), "vpn down", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if raw != validClassifyJSON {
		t.Error("raw response not returned")
	}
	if c.Summary != "VPN is down for the user" {
		t.Errorf("Summary = %q", c.Summary)
	}
	if c.Priority != ticket.PriorityHigh {
		t.Errorf("Priority = %q, want High", c.Priority)
	}
	if c.Department != ticket.DeptNetwork {
		t.Errorf("Department = %q, want Network", c.Department)
	}
	if c.Sentiment != ticket.SentimentFrustrated {
		t.Errorf("Sentiment = %q, want Frustrated", c.Sentiment)
	}
	if !c.Complete {
		t.Error("Complete = false, want true")
	}
	if c.Validation == nil {
		t.Fatal("expected validation verdict attached")
	}
	if c.Validation.Action != ValidationKeep {
		t.Errorf("Validation.Action = %q, want keep", c.Validation.Action)
	}
	if c.Validation.Confidence != 95 {
		t.Errorf("Validation.Confidence = %d, want 95", c.Validation.Confidence)
	}
}

func TestClassify_EmptyText(t *testing.T) {
	t.Parallel()

	g := newTestGateway(&mockProvider{})
	if _, _, err := g.Classify(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestClassify_ProviderError(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{errs: []error{errors.New("upstream 500")}}
	g := newTestGateway(provider)

	c, raw, err := g.Classify(context.Background(), "help", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if c != nil {
		t.Error("expected nil classification on failure")
	}
	if raw != "" {
		t.Error("expected empty raw on transport failure")
	}
}

func TestClassify_DeadlineExpires(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{block: true}
	g := NewGateway(provider, GatewayConfig{ClassifyTimeout: 20 * time.Millisecond}, log.Nop(), GatewayHooks{})

	start := time.Now()
	_, _, err := g.Classify(context.Background(), "help", nil)
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("classify did not respect its deadline")
	}
	if provider.calls() != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", provider.calls())
	}
}

func TestClassify_DecodeFailureIsError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"not json", "sorry, I cannot help with that"},
		{"missing summary", `{"category":"c","priority":"Low","department":"Software","sentiment":"Calm"}`},
		{"missing category", `{"summary":"s","priority":"Low","department":"Software","sentiment":"Calm"}`},
		{"invalid priority", `{"summary":"s","category":"c","priority":"Urgent","department":"Software","sentiment":"Calm"}`},
		{"priority none non-spam", `{"summary":"s","category":"c","priority":"None","department":"Software","sentiment":"Calm"}`},
		{"invalid department", `{"summary":"s","category":"c","priority":"Low","department":"Legal","sentiment":"Calm"}`},
		{"missing sentiment", `{"summary":"s","category":"c","priority":"Low","department":"Software"}`},
		{"malformed json", `{"summary": "s", `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := &mockProvider{responses: []*Completion{{Text: tt.text}}}
			g := newTestGateway(provider)

			c, raw, err := g.Classify(context.Background(), "help", nil)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if c != nil {
				t.Error("decode failure must not yield a partial result")
			}
			if tt.text != "sorry, I cannot help with that" && raw == "" && strings.Contains(tt.text, "{") {
				t.Error("raw response should be returned alongside decode errors")
			}
		})
	}
}

func TestClassify_SpamPayloadSkipsFieldChecks(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*Completion{
		{Text: `{"summary":"gibberish","category":"Spam","is_spam":true,"spam_reason":"random_text"}`},
	}}
	g := newTestGateway(provider)

	c, _, err := g.Classify(context.Background(), "asdkjhasd", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !c.Spam {
		t.Fatal("Spam = false, want true")
	}
	if c.SpamReason != ticket.SpamRandomText {
		t.Errorf("SpamReason = %q, want random_text", c.SpamReason)
	}
	if c.Priority != ticket.PriorityNone {
		t.Errorf("Priority = %q, want None", c.Priority)
	}
	// No validation pass for spam.
	if provider.calls() != 1 {
		t.Errorf("calls = %d, want 1", provider.calls())
	}
}

func TestClassify_MarkdownFences(t *testing.T) {
	t.Parallel()

	fenced := "```json\n" + validClassifyJSON + "\n```"
	provider := &mockProvider{responses: []*Completion{
		{Text: fenced},
		{Text: keepValidationJSON},
	}}
	g := newTestGateway(provider)

	c, _, err := g.Classify(context.Background(), "vpn down", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Department != ticket.DeptNetwork {
		t.Errorf("Department = %q, want Network", c.Department)
	}
}

func TestClassify_ValidationFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*Completion{{Text: validClassifyJSON}},
		errs:      []error{nil, errors.New("validator down")},
	}
	g := newTestGateway(provider)

	c, _, err := g.Classify(context.Background(), "vpn down", nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if c.Validation != nil {
		t.Error("expected no validation verdict when the pass fails")
	}
}

func TestClassify_ActiveIncidentsInPrompt(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*Completion{
		{Text: validClassifyJSON},
		{Text: keepValidationJSON},
	}}
	g := newTestGateway(provider)

	active := []ticket.IncidentRef{{IncidentID: "TCK-42", Summary: "VPN outage", Status: ticket.StatusProcessing}}
	if _, _, err := g.Classify(context.Background(), "vpn down", active); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if len(provider.requests) == 0 {
		t.Fatal("no requests captured")
	}
	if !strings.Contains(provider.requests[0].Prompt, "TCK-42") {
		t.Error("active incident id missing from classify prompt")
	}
	if !strings.Contains(provider.requests[0].Prompt, "vpn down") {
		t.Error("message text missing from classify prompt")
	}
}

func TestDecodeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantAct  ValidationAction
		wantDept ticket.Department
		wantConf int
	}{
		{"reroute", `{"action":"reroute","correct_department":"Access","confidence":0.8}`, ValidationReroute, ticket.DeptAccess, 80},
		{"flag", `{"action":"flag_for_human","correct_department":"Network","confidence":0.4}`, ValidationFlagForHuman, ticket.DeptNetwork, 40},
		{"keep", `{"action":"keep","confidence":1.0}`, ValidationKeep, "", 100},
		{"unknown action treated as keep", `{"action":"escalate","confidence":0.5}`, ValidationKeep, "", 50},
		{"confidence clamped high", `{"action":"keep","confidence":3.5}`, ValidationKeep, "", 100},
		{"confidence clamped low", `{"action":"keep","confidence":-1}`, ValidationKeep, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := decodeValidation(tt.raw)
			if err != nil {
				t.Fatalf("decodeValidation: %v", err)
			}
			if v.Action != tt.wantAct {
				t.Errorf("Action = %q, want %q", v.Action, tt.wantAct)
			}
			if v.Department != tt.wantDept {
				t.Errorf("Department = %q, want %q", v.Department, tt.wantDept)
			}
			if v.Confidence != tt.wantConf {
				t.Errorf("Confidence = %d, want %d", v.Confidence, tt.wantConf)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", "Here you go: {\"a\":1} hope that helps", `{"a":1}`, false},
		{"no object", "nope", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		got, err := extractJSON(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestClassify_EmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	provider := &mockProvider{responses: []*Completion{
		{Text: validClassifyJSON, Usage: Usage{InputTokens: 200, OutputTokens: 80}},
		{Text: keepValidationJSON, Usage: Usage{InputTokens: 50, OutputTokens: 20}},
	}}
	g := newTestGateway(provider)

	if _, _, err := g.Classify(context.Background(), "vpn down", nil); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	ops := map[string]tracetest.SpanStub{}
	for _, s := range exporter.GetSpans() {
		if s.Name != "llm.call" {
			continue
		}
		for _, a := range s.Attributes {
			if a.Key == "gen_ai.operation.name" {
				ops[a.Value.AsString()] = s
			}
		}
	}

	if _, ok := ops["classify"]; !ok {
		t.Fatal("no llm.call span with gen_ai.operation.name=classify")
	}
	if _, ok := ops["validate"]; !ok {
		t.Fatal("no llm.call span with gen_ai.operation.name=validate")
	}

	var in, out int64
	for _, a := range ops["classify"].Attributes {
		switch a.Key {
		case "gen_ai.usage.input_tokens":
			in = a.Value.AsInt64()
		case "gen_ai.usage.output_tokens":
			out = a.Value.AsInt64()
		}
	}
	if in != 200 || out != 80 {
		t.Errorf("classify span usage = %d/%d, want 200/80", in, out)
	}
}

func TestGatewayHooks_Called(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var ops []string
	hooks := GatewayHooks{OnCall: func(op string, usage Usage, duration float64, err error) {
		mu.Lock()
		ops = append(ops, op)
		mu.Unlock()
	}}

	provider := &mockProvider{responses: []*Completion{
		{Text: validClassifyJSON, Usage: Usage{InputTokens: 10, OutputTokens: 5}},
		{Text: keepValidationJSON},
	}}
	g := NewGateway(provider, GatewayConfig{}, log.Nop(), hooks)

	if _, _, err := g.Classify(context.Background(), "vpn down", nil); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ops) != 2 || ops[0] != "classify" || ops[1] != "validate" {
		t.Errorf("hook ops = %v, want [classify validate]", ops)
	}
}
