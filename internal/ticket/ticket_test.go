package ticket

import "testing"

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   Status
		wantOK bool
	}{
		{"received", StatusReceived, true},
		{"waiting", StatusWaiting, true},
		{"processing", StatusProcessing, true},
		{"under_review", StatusUnderReview, true},
		{"resolved", StatusResolved, true},
		{"cancelled", StatusCancelled, true},
		{"Cancelled", "", false},
		{"", "", false},
		{"open", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParseStatus(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPriorityValid(t *testing.T) {
	t.Parallel()

	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical, PriorityNone} {
		if !p.Valid() {
			t.Errorf("%q should be valid", p)
		}
	}
	if Priority("Urgent").Valid() {
		t.Error("Urgent should not be valid")
	}
	if Priority("").Valid() {
		t.Error("empty priority should not be valid")
	}
}

func TestDepartmentValid(t *testing.T) {
	t.Parallel()

	for _, d := range []Department{DeptNetwork, DeptHardware, DeptSoftware, DeptAccess} {
		if !d.Valid() {
			t.Errorf("%q should be valid", d)
		}
	}
	if Department("Facilities").Valid() {
		t.Error("Facilities should not be valid")
	}
}

func TestSentimentValid(t *testing.T) {
	t.Parallel()

	for _, s := range []Sentiment{SentimentCalm, SentimentFrustrated, SentimentAngry} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Sentiment("Neutral").Valid() {
		t.Error("Neutral should not be valid")
	}
}
