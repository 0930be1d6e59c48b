package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/intake/internal/postgres"
	"github.com/linnemanlabs/intake/internal/ticket"
	"github.com/linnemanlabs/intake/internal/ticket/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("INTAKE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("INTAKE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func newID() string {
	return "TCK-" + ulid.Make().String()
}

func sample(id string) *ticket.Ticket {
	now := time.Now().Truncate(time.Microsecond).UTC()
	return &ticket.Ticket{
		ID:                   id,
		Source:               ticket.SourceChat,
		Sender:               "u1",
		Message:              "the VPN is down for the whole office",
		Summary:              "VPN outage",
		Category:             "Connectivity",
		Priority:             ticket.PriorityHigh,
		Department:           ticket.DeptNetwork,
		DepartmentConfidence: 92,
		Sentiment:            ticket.SentimentFrustrated,
		Role:                 ticket.RolePrimary,
		Complete:             true,
		Active:               true,
		Status:               ticket.StatusProcessing,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func TestInsertAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	want := sample(newID())
	if err := s.Insert(ctx, want); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := s.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}

	assertEqual(t, "ID", want.ID, got.ID)
	assertEqual(t, "Source", want.Source, got.Source)
	assertEqual(t, "Sender", want.Sender, got.Sender)
	assertEqual(t, "Message", want.Message, got.Message)
	assertEqual(t, "Summary", want.Summary, got.Summary)
	assertEqual(t, "Category", want.Category, got.Category)
	assertEqual(t, "Priority", want.Priority, got.Priority)
	assertEqual(t, "Department", want.Department, got.Department)
	assertEqual(t, "DepartmentConfidence", want.DepartmentConfidence, got.DepartmentConfidence)
	assertEqual(t, "Sentiment", want.Sentiment, got.Sentiment)
	assertEqual(t, "Role", want.Role, got.Role)
	assertEqual(t, "Status", want.Status, got.Status)
	assertEqual(t, "Active", want.Active, got.Active)
	assertEqual(t, "Complete", want.Complete, got.Complete)
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tk := sample(newID())
	if err := s.Insert(ctx, tk); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Insert(ctx, tk); err == nil {
		t.Fatal("expected primary key violation on duplicate id")
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "TCK-nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for nonexistent ID")
	}
}

func TestActivePrimaryIncidents(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	active := sample(newID())
	if err := s.Insert(ctx, active); err != nil {
		t.Fatalf("Insert active: %v", err)
	}

	spam := sample(newID())
	spam.Spam = true
	spam.SpamReason = ticket.SpamNoIntent
	spam.Status = ticket.StatusCancelled
	spam.Active = false
	if err := s.Insert(ctx, spam); err != nil {
		t.Fatalf("Insert spam: %v", err)
	}

	follower := sample(newID())
	follower.Role = ticket.RoleFollower
	follower.Duplicate = true
	follower.ParentIncidentID = active.ID
	if err := s.Insert(ctx, follower); err != nil {
		t.Fatalf("Insert follower: %v", err)
	}

	resolved := sample(newID())
	resolved.Status = ticket.StatusResolved
	if err := s.Insert(ctx, resolved); err != nil {
		t.Fatalf("Insert resolved: %v", err)
	}

	refs, err := s.ActivePrimaryIncidents(ctx)
	if err != nil {
		t.Fatalf("ActivePrimaryIncidents: %v", err)
	}

	seen := make(map[string]bool, len(refs))
	for _, r := range refs {
		seen[r.IncidentID] = true
	}
	if !seen[active.ID] {
		t.Errorf("active primary %s missing from refs", active.ID)
	}
	for _, id := range []string{spam.ID, follower.ID, resolved.ID} {
		if seen[id] {
			t.Errorf("ticket %s must not appear in active set", id)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tk := sample(newID())
	if err := s.Insert(ctx, tk); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := s.UpdateStatus(ctx, tk.ID, ticket.StatusResolved)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !ok {
		t.Fatal("UpdateStatus returned ok=false")
	}
	if got.Status != ticket.StatusResolved {
		t.Errorf("Status = %q, want resolved", got.Status)
	}
	if !got.UpdatedAt.After(tk.UpdatedAt) {
		t.Error("UpdatedAt not advanced")
	}

	_, ok, err = s.UpdateStatus(ctx, "TCK-nonexistent", ticket.StatusResolved)
	if err != nil {
		t.Fatalf("UpdateStatus missing: %v", err)
	}
	if ok {
		t.Error("UpdateStatus returned ok=true for nonexistent ID")
	}
}

func TestAssign(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tk := sample(newID())
	if err := s.Insert(ctx, tk); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok, err := s.Assign(ctx, tk.ID, "casey")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if !ok {
		t.Fatal("Assign returned ok=false")
	}
	if got.AssignedTo != "casey" {
		t.Errorf("AssignedTo = %q, want casey", got.AssignedTo)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Microsecond).UTC()
	var ids []string
	for i := range 3 {
		tk := sample(newID())
		tk.CreatedAt = base.Add(time.Duration(i) * time.Second)
		tk.UpdatedAt = tk.CreatedAt
		if err := s.Insert(ctx, tk); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		ids = append(ids, tk.ID)
	}

	got, err := s.List(ctx, 1000, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	pos := make(map[string]int)
	for i, tk := range got {
		pos[tk.ID] = i
	}
	for i := range len(ids) - 1 {
		older, newer := ids[i], ids[i+1]
		po, okO := pos[older]
		pn, okN := pos[newer]
		if !okO || !okN {
			t.Fatalf("inserted tickets missing from List: %v", ids)
		}
		if pn > po {
			t.Errorf("newer %s listed after older %s", newer, older)
		}
	}
}

func TestStats(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	spam := sample(newID())
	spam.Spam = true
	spam.Status = ticket.StatusCancelled
	if err := s.Insert(ctx, spam); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ByStatus["spam"] < 1 {
		t.Errorf("ByStatus = %v, want spam bucket >= 1", stats.ByStatus)
	}
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: got %v, want %v", field, got, want)
	}
}
