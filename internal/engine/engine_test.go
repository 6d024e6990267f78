package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bountywizard/internal/config"
	"bountywizard/internal/db"
	"bountywizard/internal/domain"
	"bountywizard/internal/engine"
	"bountywizard/internal/migrate"
	"bountywizard/internal/repo"
	"bountywizard/internal/validate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx}
}

func validDraft(title string) domain.Draft {
	return domain.Draft{
		"title":         title,
		"description":   "Plant 100 trees in the park",
		"type":          "Content",
		"dominant_core": "Earth",
		"mode":          "digital",
		"location":      "",
		"reward":        map[string]any{"currency": "USD", "amount": 250.0, "winners": 1},
		"timeline": map[string]any{
			"expiration_date":      "2024-03-01T00:00:00Z",
			"estimated_completion": map[string]any{"days": 3, "hours": 4, "minutes": 30},
		},
		"sdgs":                 []string{"Clean Water"},
		"hasImpactCertificate": false,
		"impactBriefMessage":   "",
		"has_backer":           false,
		"terms_accepted":       true,
	}
}

func TestSubmitBountyStoresSubmissionAndEvent(t *testing.T) {
	env := newTestEnv(t)
	sub, err := env.Engine.SubmitBounty(env.Ctx, domain.SubmitRequest{SessionID: "sess-1", ActorID: "alice", Draft: validDraft("Plant trees")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Title != "Plant trees" || sub.RewardCurrency != "USD" || sub.RewardAmount != 250 {
		t.Fatalf("unexpected submission %+v", sub)
	}
	got, err := env.Engine.GetSubmission(env.Ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActorID != "alice" || got.SessionID != "sess-1" {
		t.Fatalf("unexpected stored submission %+v", got)
	}
	if exp, _ := got.Bounty.String("timeline.expiration_date"); exp != "2024-03-01T00:00:00.000Z" {
		t.Fatalf("expiration not normalized: %q", exp)
	}

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilter{Type: "bounty.submitted"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || evts[0].EntityID != sub.ID || evts[0].ActorID != "alice" {
		t.Fatalf("unexpected events %+v", evts)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(evts[0].Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["title"] != "Plant trees" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestSubmitBountyRejectsInvalidDraft(t *testing.T) {
	env := newTestEnv(t)
	d := validDraft("Plant trees")
	d.Set("terms_accepted", false)
	_, err := env.Engine.SubmitBounty(env.Ctx, domain.SubmitRequest{ActorID: "alice", Draft: d})
	var verr *validate.Error
	if !errors.As(err, &verr) || verr.Step != domain.StepBacker {
		t.Fatalf("expected backer validation error, got %v", err)
	}
	list, err := env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilter{})
	if err != nil || len(list) != 0 {
		t.Fatalf("nothing should be stored: %v %d", err, len(list))
	}
}

func TestListSubmissionsPagination(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"one", "two", "three"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		env.Engine.Now = func() time.Time { return ts }
		if _, err := env.Engine.SubmitBounty(env.Ctx, domain.SubmitRequest{ActorID: "alice", Draft: validDraft(title)}); err != nil {
			t.Fatalf("submit %s: %v", title, err)
		}
	}
	if _, err := env.Engine.SubmitBounty(env.Ctx, domain.SubmitRequest{ActorID: "bob", Draft: validDraft("other")}); err != nil {
		t.Fatalf("submit bob: %v", err)
	}

	page, err := env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilter{ActorID: "alice", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Title != "three" || page[1].Title != "two" {
		t.Fatalf("unexpected first page %+v", page)
	}
	last := page[len(page)-1]
	page, err = env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilter{ActorID: "alice", Limit: 2, CursorCreatedAt: last.CreatedAt, CursorID: last.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].Title != "one" {
		t.Fatalf("unexpected second page %+v", page)
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.GetSubmission(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventsAfterCursor(t *testing.T) {
	env := newTestEnv(t)
	for _, title := range []string{"a", "b"} {
		if _, err := env.Engine.SubmitBounty(env.Ctx, domain.SubmitRequest{ActorID: "alice", Draft: validDraft(title)}); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := env.Engine.Repo.LatestEventID(env.Ctx)
	if err != nil || latest != 2 {
		t.Fatalf("expected latest id 2, got %d %v", latest, err)
	}
	after, err := env.Engine.Repo.EventsAfter(env.Ctx, 10, 1)
	if err != nil || len(after) != 1 || after[0].ID != 2 {
		t.Fatalf("unexpected events after cursor: %+v %v", after, err)
	}
}
