package bountywizardsdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"bountywizard/internal/config"
	"bountywizard/internal/db"
	"bountywizard/internal/engine"
	"bountywizard/internal/migrate"
	"bountywizard/internal/server"
	"bountywizard/internal/wizard"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := server.New(server.Config{
		Engine:   e,
		Sessions: wizard.NewSessions(wizard.SessionsConfig{Submitter: e}),
		Auth:     server.AuthConfig{JWTSecret: "sdk-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientWizardFlow(t *testing.T) {
	srv := newTestAPI(t)
	ctx := context.Background()
	c := New(srv.URL)
	if _, err := c.DevLogin(ctx, "sdk-user", 0); err != nil {
		t.Fatalf("dev login: %v", err)
	}
	sess, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := c.SetFields(ctx, sess.ID, Field{Path: "title", Value: "Plant trees"}); err != nil {
		t.Fatalf("set fields: %v", err)
	}
	_, err = c.Advance(ctx, sess.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 422 || apiErr.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %v", err)
	}
	if len(apiErr.FieldErrors()) == 0 {
		t.Fatalf("expected field errors in %s", apiErr.Body)
	}

	_, err = c.SetFields(ctx, sess.ID,
		Field{Path: "description", Value: "Plant 100 trees in the park"},
		Field{Path: "type", Value: "Design"},
		Field{Path: "dominant_core", Value: "Water"},
		Field{Path: "mode", Value: "digital"},
	)
	if err != nil {
		t.Fatalf("set basics: %v", err)
	}
	if view, err := c.Advance(ctx, sess.ID); err != nil || view != "step2" {
		t.Fatalf("advance basics: %s %v", view, err)
	}
	_, err = c.SetFields(ctx, sess.ID,
		Field{Path: "reward", Value: map[string]any{"currency": "USD", "amount": 50, "winners": 1}},
		Field{Path: "timeline.expiration_date", Value: "2099-06-01T00:00:00Z"},
		Field{Path: "timeline.estimated_completion", Value: map[string]any{"days": 1, "hours": 2, "minutes": 0}},
	)
	if err != nil {
		t.Fatalf("set rewards: %v", err)
	}
	tags, err := c.ToggleSDG(ctx, sess.ID, "Clean Water")
	if err != nil || len(tags) != 1 {
		t.Fatalf("toggle: %v %v", tags, err)
	}
	if view, err := c.Advance(ctx, sess.ID); err != nil || view != "step3" {
		t.Fatalf("advance rewards: %s %v", view, err)
	}
	if _, err := c.SetFields(ctx, sess.ID, Field{Path: "has_backer", Value: false}, Field{Path: "terms_accepted", Value: true}); err != nil {
		t.Fatalf("set backer: %v", err)
	}
	if view, err := c.Advance(ctx, sess.ID); err != nil || view != "confirmation" {
		t.Fatalf("advance backer: %s %v", view, err)
	}

	sub, err := c.Submit(ctx, sess.ID, "once")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ActorID != "sdk-user" || sub.Title != "Plant trees" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	_, err = c.Submit(ctx, sess.ID, "once")
	if !errors.As(err, &apiErr) || apiErr.Code != "duplicate_submission" {
		t.Fatalf("expected duplicate_submission, got %v", err)
	}

	res, err := c.Result(ctx, sess.ID)
	if err != nil || res.Redirected || res.JSON == "" {
		t.Fatalf("result: %+v %v", res, err)
	}
	page, err := c.Bounties(ctx, 10, "")
	if err != nil || len(page.Items) != 1 {
		t.Fatalf("bounties: %+v %v", page, err)
	}
	events, err := c.Events(ctx, 10)
	if err != nil || len(events) != 1 || events[0].Type != "bounty.submitted" {
		t.Fatalf("events: %+v %v", events, err)
	}
}

func TestClientNavigateAndDelete(t *testing.T) {
	srv := newTestAPI(t)
	ctx := context.Background()
	c := New(srv.URL)
	if _, err := c.DevLogin(ctx, "sdk-user", 0); err != nil {
		t.Fatalf("dev login: %v", err)
	}
	sess, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	view, redirected, err := c.Navigate(ctx, sess.ID, "result")
	if err != nil || !redirected || view != "step1" {
		t.Fatalf("navigate: %s %v %v", view, redirected, err)
	}
	if err := c.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = c.GetSession(ctx, sess.ID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
}

func TestClientWithoutCredentials(t *testing.T) {
	srv := newTestAPI(t)
	_, err := New(srv.URL).CreateSession(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected 401, got %v", err)
	}
}
