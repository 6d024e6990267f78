package wizard_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"bountywizard/internal/domain"
	"bountywizard/internal/wizard"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T, sub wizard.Submitter) *wizard.Store {
	t.Helper()
	return wizard.NewStore(wizard.Config{
		SessionID: "sess-1",
		ActorID:   "tester",
		Submitter: sub,
		Now:       func() time.Time { return fixedNow },
	})
}

func fillBasics(t *testing.T, s *wizard.Store) {
	t.Helper()
	err := s.SetFields([]wizard.FieldValue{
		{Path: "title", Value: "Plant trees"},
		{Path: "description", Value: "Plant 100 trees in the park"},
		{Path: "type", Value: "Content"},
		{Path: "dominant_core", Value: "Earth"},
		{Path: "mode", Value: "digital"},
	})
	if err != nil {
		t.Fatalf("fill basics: %v", err)
	}
}

func fillRewards(t *testing.T, s *wizard.Store) {
	t.Helper()
	err := s.SetFields([]wizard.FieldValue{
		{Path: "reward.currency", Value: "USD"},
		{Path: "reward.amount", Value: 250.0},
		{Path: "reward.winners", Value: 2},
		{Path: "timeline.expiration_date", Value: "2024-03-01T00:00:00Z"},
		{Path: "timeline.estimated_completion.days", Value: 3},
		{Path: "timeline.estimated_completion.hours", Value: 4},
		{Path: "timeline.estimated_completion.minutes", Value: 30},
		{Path: "hasImpactCertificate", Value: false},
	})
	if err != nil {
		t.Fatalf("fill rewards: %v", err)
	}
	if _, err := s.ToggleSDG("Clean Water"); err != nil {
		t.Fatalf("toggle sdg: %v", err)
	}
}

func fillBacker(t *testing.T, s *wizard.Store) {
	t.Helper()
	if err := s.SetFields([]wizard.FieldValue{
		{Path: "has_backer", Value: false},
		{Path: "terms_accepted", Value: true},
	}); err != nil {
		t.Fatalf("fill backer: %v", err)
	}
}

func advance(t *testing.T, s *wizard.Store, want domain.View) {
	t.Helper()
	view, res, err := s.Advance()
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !res.Valid {
		t.Fatalf("advance rejected: %+v", res.Errors)
	}
	if view != want {
		t.Fatalf("expected view %s, got %s", want, view)
	}
}

func completeAll(t *testing.T, s *wizard.Store) {
	t.Helper()
	fillBasics(t, s)
	advance(t, s, domain.ViewStep2)
	fillRewards(t, s)
	advance(t, s, domain.ViewStep3)
	fillBacker(t, s)
	advance(t, s, domain.ViewConfirmation)
}

func TestInitialState(t *testing.T) {
	s := newStore(t, nil)
	snap := s.Snapshot()
	if snap.View != domain.ViewStep1 || snap.Progress.CurrentStep != domain.StepBasics {
		t.Fatalf("unexpected initial view %s step %d", snap.View, snap.Progress.CurrentStep)
	}
	if len(snap.Draft) != 0 || len(snap.Progress.CompletedSteps) != 0 {
		t.Fatalf("expected empty draft and progress")
	}
	if !reflect.DeepEqual(snap.Navigable, []domain.Step{domain.StepBasics}) {
		t.Fatalf("unexpected navigable steps %v", snap.Navigable)
	}
}

func TestSetFieldRoundTrip(t *testing.T) {
	s := newStore(t, nil)
	values := map[string]any{
		"title":                               "Plant trees",
		"reward.amount":                       12.5,
		"timeline.estimated_completion.hours": 7,
		"terms_accepted":                      true,
	}
	for path, v := range values {
		if err := s.SetField(path, v); err != nil {
			t.Fatalf("set %s: %v", path, err)
		}
	}
	for path, v := range values {
		got, ok := s.Field(path)
		if !ok || !reflect.DeepEqual(got, v) {
			t.Fatalf("%s: expected %v, got %v", path, v, got)
		}
	}
}

func TestSetFieldPreservesSiblings(t *testing.T) {
	s := newStore(t, nil)
	if err := s.SetField("reward.currency", "EUR"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetField("reward.amount", 10.0); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Field("reward.currency"); v != "EUR" {
		t.Fatalf("sibling lost: %v", v)
	}
}

func TestSetFieldUnknownPath(t *testing.T) {
	s := newStore(t, nil)
	if err := s.SetField("reward.bonus", 1); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if err := s.SetField("backer", map[string]any{"twitter": "x"}); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField for nested key, got %v", err)
	}
}

func TestModeDigitalClearsLocation(t *testing.T) {
	s := newStore(t, nil)
	_ = s.SetField("mode", "physical")
	_ = s.SetField("location", "Berlin")
	if err := s.SetField("mode", "digital"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Field("location"); v != "" {
		t.Fatalf("expected location cleared, got %v", v)
	}
	if err := s.SetField("location", "Paris"); !errors.Is(err, wizard.ErrInactiveField) {
		t.Fatalf("expected ErrInactiveField, got %v", err)
	}
	if err := s.SetField("location", ""); err != nil {
		t.Fatalf("clearing an inactive field should pass: %v", err)
	}
}

func TestImpactCertificateOffClearsBrief(t *testing.T) {
	s := newStore(t, nil)
	_ = s.SetField("hasImpactCertificate", true)
	_ = s.SetField("impactBriefMessage", "monthly report")
	if err := s.SetField("hasImpactCertificate", false); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Field("impactBriefMessage"); v != "" {
		t.Fatalf("expected brief cleared, got %v", v)
	}
}

func TestHasBackerOffRemovesBacker(t *testing.T) {
	s := newStore(t, nil)
	_ = s.SetField("has_backer", true)
	_ = s.SetField("backer.name", "Acme")
	if err := s.SetField("has_backer", false); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Field("backer"); ok {
		t.Fatalf("expected backer removed")
	}
	for _, fv := range []wizard.FieldValue{
		{Path: "backer.name", Value: "Acme"},
		{Path: "backer.name", Value: ""},
		{Path: "backer", Value: map[string]any{}},
	} {
		if err := s.SetField(fv.Path, fv.Value); !errors.Is(err, wizard.ErrInactiveField) {
			t.Fatalf("%s=%v: expected ErrInactiveField, got %v", fv.Path, fv.Value, err)
		}
		if _, ok := s.Field("backer"); ok {
			t.Fatalf("%s=%v re-created backer", fv.Path, fv.Value)
		}
	}
	if err := s.SetField("backer", nil); err != nil {
		t.Fatalf("clearing backer should be allowed: %v", err)
	}
}

func TestToggleSDG(t *testing.T) {
	s := newStore(t, nil)
	tags, err := s.ToggleSDG("Clean Water")
	if err != nil || !reflect.DeepEqual(tags, []string{"Clean Water"}) {
		t.Fatalf("first toggle: %v %v", tags, err)
	}
	tags, _ = s.ToggleSDG("Zero Hunger")
	if !reflect.DeepEqual(tags, []string{"Clean Water", "Zero Hunger"}) {
		t.Fatalf("second toggle: %v", tags)
	}
	tags, _ = s.ToggleSDG("Clean Water")
	if !reflect.DeepEqual(tags, []string{"Zero Hunger"}) {
		t.Fatalf("toggle off: %v", tags)
	}
	if _, err := s.ToggleSDG("Space Travel"); !errors.Is(err, wizard.ErrUnknownSDG) {
		t.Fatalf("expected ErrUnknownSDG, got %v", err)
	}
}

func TestValidateStepDoesNotMutate(t *testing.T) {
	s := newStore(t, nil)
	fillBasics(t, s)
	before := s.Snapshot()
	res, err := s.ValidateStep(domain.StepBasics)
	if err != nil || !res.Valid {
		t.Fatalf("validate: %v %+v", err, res.Errors)
	}
	after := s.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("validate mutated the store")
	}
	if _, err := s.ValidateStep(domain.Step(4)); !errors.Is(err, wizard.ErrInvalidStep) {
		t.Fatalf("expected ErrInvalidStep, got %v", err)
	}
}

func TestAdvanceRejectsInvalidStep(t *testing.T) {
	s := newStore(t, nil)
	_ = s.SetField("title", "Plant trees")
	view, res, err := s.Advance()
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || view != domain.ViewStep1 {
		t.Fatalf("expected to stay on step1, got %s", view)
	}
	snap := s.Snapshot()
	if snap.Progress.Completed(domain.StepBasics) {
		t.Fatalf("step must not be completed")
	}
}

func TestFullFlowAndResult(t *testing.T) {
	s := newStore(t, nil)
	completeAll(t, s)
	sub, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.ID == "" || sub.Title != "Plant trees" {
		t.Fatalf("unexpected submission %+v", sub)
	}
	if snap := s.Snapshot(); snap.View != domain.ViewResult {
		t.Fatalf("expected result view, got %s", snap.View)
	}
	res, err := s.Result()
	if err != nil {
		t.Fatal(err)
	}
	if res.Redirected || !strings.Contains(res.JSON, "\"expiration_date\": \"2024-03-01T00:00:00.000Z\"") {
		t.Fatalf("unexpected result %+v", res)
	}
	if strings.Contains(res.JSON, "\"backer\"") {
		t.Fatalf("backer must be dropped when has_backer is false")
	}
}

func TestBackerStepKeepsActiveBacker(t *testing.T) {
	s := newStore(t, nil)
	fillBasics(t, s)
	advance(t, s, domain.ViewStep2)
	fillRewards(t, s)
	advance(t, s, domain.ViewStep3)
	if err := s.SetFields([]wizard.FieldValue{
		{Path: "has_backer", Value: true},
		{Path: "backer.name", Value: "Acme"},
		{Path: "backer.logo", Value: "https://example.com/logo.png"},
		{Path: "terms_accepted", Value: true},
	}); err != nil {
		t.Fatal(err)
	}
	advance(t, s, domain.ViewConfirmation)
	if v, _ := s.Field("backer.name"); v != "Acme" {
		t.Fatalf("backer must be kept when has_backer is true, got %v", v)
	}
}

func TestResultGuardRedirects(t *testing.T) {
	s := newStore(t, nil)
	fillBasics(t, s)
	advance(t, s, domain.ViewStep2)
	res, err := s.Result()
	if err != nil {
		t.Fatal(err)
	}
	if !res.Redirected || res.View != domain.ViewStep1 || res.JSON != "" {
		t.Fatalf("expected redirect to step1, got %+v", res)
	}
	if view := s.GoToStep(domain.ViewResult); view != domain.ViewStep1 {
		t.Fatalf("GoToStep(result) should redirect, got %s", view)
	}
}

func TestGoToStepIsUnguarded(t *testing.T) {
	s := newStore(t, nil)
	if view := s.GoToStep(domain.ViewStep3); view != domain.ViewStep3 {
		t.Fatalf("expected step3, got %s", view)
	}
	if snap := s.Snapshot(); snap.Progress.CurrentStep != domain.StepBacker {
		t.Fatalf("current step not updated: %d", snap.Progress.CurrentStep)
	}
	if view := s.GoToStep(domain.ViewConfirmation); view != domain.ViewConfirmation {
		t.Fatalf("expected confirmation, got %s", view)
	}
}

func TestNavigateGuards(t *testing.T) {
	s := newStore(t, nil)
	view, redirected := s.Navigate(domain.ViewStep3)
	if !redirected || view != domain.ViewStep1 {
		t.Fatalf("expected redirect to step1, got %s %v", view, redirected)
	}
	fillBasics(t, s)
	advance(t, s, domain.ViewStep2)
	if view, redirected = s.Navigate(domain.ViewStep1); redirected || view != domain.ViewStep1 {
		t.Fatalf("completed step should be reachable, got %s", view)
	}
	if view, redirected = s.Navigate(domain.ViewConfirmation); !redirected || view != domain.ViewStep2 {
		t.Fatalf("confirmation should redirect to step2, got %s", view)
	}
}

func TestBackTransitions(t *testing.T) {
	s := newStore(t, nil)
	completeAll(t, s)
	for _, want := range []domain.View{domain.ViewStep3, domain.ViewStep2, domain.ViewStep1, domain.ViewStep1} {
		if got := s.Back(); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestSubmitRequiresCompletedSteps(t *testing.T) {
	s := newStore(t, nil)
	fillBasics(t, s)
	advance(t, s, domain.ViewStep2)
	if _, err := s.Submit(context.Background()); !errors.Is(err, wizard.ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

type blockingSubmitter struct {
	started chan struct{}
	release chan struct{}
	fail    error
	mu      sync.Mutex
	reqs    []domain.SubmitRequest
}

func (b *blockingSubmitter) SubmitBounty(ctx context.Context, req domain.SubmitRequest) (domain.Submission, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()
	if b.started != nil {
		close(b.started)
	}
	if b.release != nil {
		<-b.release
	}
	if b.fail != nil {
		return domain.Submission{}, b.fail
	}
	return domain.Submission{ID: "sub-1", SessionID: req.SessionID, ActorID: req.ActorID, Bounty: req.Draft}, nil
}

func TestSubmitSingleFlight(t *testing.T) {
	sub := &blockingSubmitter{started: make(chan struct{}), release: make(chan struct{})}
	s := newStore(t, sub)
	completeAll(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	<-sub.started

	if _, err := s.Submit(context.Background()); !errors.Is(err, wizard.ErrSubmitting) {
		t.Fatalf("expected ErrSubmitting, got %v", err)
	}
	if err := s.SetField("title", "changed"); !errors.Is(err, wizard.ErrSubmitting) {
		t.Fatalf("edits must be rejected in flight, got %v", err)
	}
	if !s.Snapshot().Submitting {
		t.Fatalf("snapshot should report submitting")
	}
	close(sub.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(sub.reqs) != 1 {
		t.Fatalf("expected one backend call, got %d", len(sub.reqs))
	}
	if got, ok := s.Submission(); !ok || got.ID != "sub-1" {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	sub := &blockingSubmitter{fail: errors.New("backend down")}
	s := newStore(t, sub)
	completeAll(t, s)
	if _, err := s.Submit(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	snap := s.Snapshot()
	if snap.Submitting || snap.View != domain.ViewConfirmation {
		t.Fatalf("state should be unchanged after failure: %+v", snap)
	}
	sub.fail = nil
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestSubmitHonorsContext(t *testing.T) {
	s := wizard.NewStore(wizard.Config{SubmitDelay: time.Hour, Now: func() time.Time { return fixedNow }})
	completeAll(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Submit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Snapshot().Submitting {
		t.Fatalf("submitting flag must be cleared")
	}
}

func TestSubmitSendsSnapshot(t *testing.T) {
	sub := &blockingSubmitter{}
	s := newStore(t, sub)
	completeAll(t, s)
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = s.Reset()
	if title, _ := sub.reqs[0].Draft.String("title"); title != "Plant trees" {
		t.Fatalf("backend draft changed after reset: %q", title)
	}
}

func TestReset(t *testing.T) {
	s := newStore(t, nil)
	completeAll(t, s)
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if len(snap.Draft) != 0 || snap.View != domain.ViewStep1 || len(snap.Progress.CompletedSteps) != 0 {
		t.Fatalf("reset incomplete: %+v", snap)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := newStore(t, nil)
	_, _ = s.ToggleSDG("Clean Water")
	snap := s.Snapshot()
	snap.Draft.Set("title", "mutated")
	snap.Progress.CompletedSteps[domain.StepBasics] = true
	if _, ok := s.Field("title"); ok {
		t.Fatalf("snapshot draft aliases the store")
	}
	if s.Snapshot().Progress.Completed(domain.StepBasics) {
		t.Fatalf("snapshot progress aliases the store")
	}
}

type countingSubmitter struct {
	calls int
}

func (c *countingSubmitter) SubmitBounty(ctx context.Context, req domain.SubmitRequest) (domain.Submission, error) {
	c.calls++
	return domain.Submission{ID: "sub", SessionID: req.SessionID, ActorID: req.ActorID}, nil
}

func TestSubmitTwiceIsRejected(t *testing.T) {
	sub := &countingSubmitter{}
	s := newStore(t, sub)
	completeAll(t, s)
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, wizard.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
	if sub.calls != 1 {
		t.Fatalf("expected one backend call, got %d", sub.calls)
	}
	if view := s.Snapshot().View; view != domain.ViewResult {
		t.Fatalf("expected result view, got %s", view)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	completeAll(t, s)
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit after reset: %v", err)
	}
	if sub.calls != 2 {
		t.Fatalf("expected a second backend call after reset, got %d", sub.calls)
	}
}

func TestNavigationIsFrozenWhileSubmitting(t *testing.T) {
	sub := &blockingSubmitter{started: make(chan struct{}), release: make(chan struct{})}
	s := newStore(t, sub)
	completeAll(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	<-sub.started

	if view := s.Back(); view != domain.ViewConfirmation {
		t.Fatalf("Back in flight should keep confirmation, got %s", view)
	}
	if view := s.GoToStep(domain.ViewStep1); view != domain.ViewConfirmation {
		t.Fatalf("GoToStep in flight should keep confirmation, got %s", view)
	}
	if view, redirected := s.Navigate(domain.ViewStep2); !redirected || view != domain.ViewConfirmation {
		t.Fatalf("Navigate in flight should keep confirmation, got %s %v", view, redirected)
	}
	close(sub.release)
	if err := <-done; err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view := s.Snapshot().View; view != domain.ViewResult {
		t.Fatalf("expected result view, got %s", view)
	}
}

func TestResultEntryGuardIsShared(t *testing.T) {
	s := newStore(t, nil)
	completeAll(t, s)
	view, redirected := s.Navigate(domain.ViewResult)
	if redirected || view != domain.ViewResult {
		t.Fatalf("Navigate(result) should follow the Result guard, got %s %v", view, redirected)
	}
	res, err := s.Result()
	if err != nil {
		t.Fatal(err)
	}
	if res.Redirected != redirected || res.View != view {
		t.Fatalf("Result and Navigate disagree: %+v vs %s %v", res, view, redirected)
	}

	fresh := newStore(t, nil)
	view, redirected = fresh.Navigate(domain.ViewResult)
	res, _ = fresh.Result()
	if !redirected || view != domain.ViewStep1 || !res.Redirected || res.View != domain.ViewStep1 {
		t.Fatalf("incomplete session must redirect both ways: %s %v %+v", view, redirected, res)
	}
}
