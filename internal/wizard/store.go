package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bountywizard/internal/domain"
	"bountywizard/internal/logging"
	"bountywizard/internal/metrics"
	"bountywizard/internal/validate"
)

var (
	ErrInactiveField = errors.New("field is inactive for the current flag value")
	ErrSubmitting    = errors.New("submission already in flight")
	ErrIncomplete    = errors.New("all steps must be completed first")
	ErrInvalidStep   = errors.New("invalid step")
	ErrUnknownSDG    = errors.New("unknown sdg")

	// ErrAlreadySubmitted is returned by Submit once the session holds a submission.
	// Only Reset clears it.
	ErrAlreadySubmitted = errors.New("bounty already submitted")
)

// DefaultSubmitDelay is the artificial latency of Submit.
const DefaultSubmitDelay = 1500 * time.Millisecond

// Submitter accepts a completed draft. The engine implements it with a durable store.
type Submitter interface {
	SubmitBounty(ctx context.Context, req domain.SubmitRequest) (domain.Submission, error)
}

// Config wires a Store.
type Config struct {
	SessionID   string
	ActorID     string
	Submitter   Submitter
	SubmitDelay time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

// Store owns one wizard session: the draft, the progress and the current view.
// All operations run to completion under the store's lock.
type Store struct {
	mu         sync.Mutex
	cfg        Config
	log        *zap.Logger
	draft      domain.Draft
	progress   domain.Progress
	view       domain.View
	submitting bool
	submission *domain.Submission
}

// NewStore returns a store in its initial state.
func NewStore(cfg Config) *Store {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SubmitDelay < 0 {
		cfg.SubmitDelay = 0
	}
	s := &Store{
		cfg: cfg,
		log: logging.OrNop(cfg.Logger).With(zap.String("session_id", cfg.SessionID)),
	}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.draft = domain.Draft{}
	s.progress = domain.NewProgress()
	s.view = domain.ViewStep1
	s.submission = nil
}

// SetField writes value at path. Governing flags clear their dependents:
// mode=digital blanks location, hasImpactCertificate=false blanks impactBriefMessage
// and has_backer=false removes backer. Values are not validated here.
func (s *Store) SetField(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitting
	}
	return s.setFieldLocked(path, value)
}

// SetFields applies fields in order and stops at the first error.
func (s *Store) SetFields(fields []FieldValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitting
	}
	for _, f := range fields {
		if err := s.setFieldLocked(f.Path, f.Value); err != nil {
			return err
		}
	}
	return nil
}

// FieldValue is one path assignment.
type FieldValue struct {
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

func (s *Store) setFieldLocked(path string, value any) error {
	if err := domain.CheckValue(path, value); err != nil {
		return err
	}
	if err := s.checkDependentLocked(path, value); err != nil {
		return err
	}
	if value == nil {
		s.draft.Delete(path)
	} else {
		s.draft.Set(path, value)
	}
	s.clearDependentsLocked(path, value)
	return nil
}

// checkDependentLocked rejects non-empty writes to a field whose governing flag is off.
// The backer record may not exist at all while has_backer is false, so only a
// delete gets through there.
func (s *Store) checkDependentLocked(path string, value any) error {
	if (path == domain.FieldBacker || isBackerChild(path)) && value != nil && s.draft.FlagOff(domain.FieldHasBacker) {
		return fmt.Errorf("%w: %s requires has_backer=true", ErrInactiveField, path)
	}
	if isEmpty(value) {
		return nil
	}
	switch {
	case path == domain.FieldLocation:
		if mode, _ := s.draft.String(domain.FieldMode); mode == string(domain.ModeDigital) {
			return fmt.Errorf("%w: %s requires mode=physical", ErrInactiveField, path)
		}
	case path == domain.FieldImpactBriefMessage:
		if s.draft.FlagOff(domain.FieldHasImpactCertificate) {
			return fmt.Errorf("%w: %s requires hasImpactCertificate=true", ErrInactiveField, path)
		}
	}
	return nil
}

func (s *Store) clearDependentsLocked(path string, value any) {
	switch path {
	case domain.FieldMode:
		if value == string(domain.ModeDigital) {
			s.draft.Set(domain.FieldLocation, "")
		}
	case domain.FieldHasImpactCertificate:
		if value == false {
			s.draft.Set(domain.FieldImpactBriefMessage, "")
		}
	case domain.FieldHasBacker:
		if value == false {
			s.draft.Delete(domain.FieldBacker)
		}
	}
}

func isBackerChild(path string) bool {
	return len(path) > len(domain.FieldBacker)+1 && path[:len(domain.FieldBacker)+1] == domain.FieldBacker+"."
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		for _, child := range t {
			if !isEmpty(child) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Field reads the value at path.
func (s *Store) Field(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.draft.Get(path)
	if !ok {
		return nil, false
	}
	return domain.Draft{"v": v}.Clone()["v"], true
}

// ToggleSDG removes tag when selected and appends it otherwise.
func (s *Store) ToggleSDG(tag string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return nil, ErrSubmitting
	}
	if !domain.IsSDG(tag) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSDG, tag)
	}
	raw, _ := s.draft.Get(domain.FieldSDGs)
	current, _ := domain.StringList(raw)
	next := make([]string, 0, len(current)+1)
	found := false
	for _, t := range current {
		if t == tag {
			found = true
			continue
		}
		next = append(next, t)
	}
	if !found {
		next = append(next, tag)
	}
	s.draft.Set(domain.FieldSDGs, next)
	out := make([]string, len(next))
	copy(out, next)
	return out, nil
}

// ValidateStep runs the step's validator against the current draft. Nothing is stored.
func (s *Store) ValidateStep(step domain.Step) (validate.Result, error) {
	if !step.Valid() {
		return validate.Result{}, fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateLocked(step), nil
}

func (s *Store) validateLocked(step domain.Step) validate.Result {
	res := validate.Step(step, s.draft, s.cfg.Now())
	metrics.RecordValidation(int(step), res.Valid)
	return res
}

// MarkStepCompleted sets the completion flag of step without validating.
func (s *Store) MarkStepCompleted(step domain.Step, completed bool) error {
	if !step.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStep, step)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitting
	}
	if completed {
		s.progress.CompletedSteps[step] = true
	} else {
		delete(s.progress.CompletedSteps, step)
	}
	return nil
}

// GoToStep moves to target without checking completion, except that entering
// the result view with any step incomplete redirects to step 1. It returns the
// view actually entered. While a submission is in flight the view does not change.
func (s *Store) GoToStep(target domain.View) domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return s.view
	}
	return s.goToLocked(target)
}

// resultReachableLocked is the single entry guard of the result view.
func (s *Store) resultReachableLocked() bool {
	return s.progress.AllCompleted()
}

func (s *Store) goToLocked(target domain.View) domain.View {
	if target == domain.ViewResult && !s.resultReachableLocked() {
		target = domain.ViewStep1
	}
	if step, ok := target.Step(); ok {
		s.progress.CurrentStep = step
	}
	s.view = target
	return target
}

// Navigate is the guarded navigation used by step pickers. A step is reachable
// when it is current or completed, and confirmation needs every step completed.
// Anything else silently redirects to the first incomplete step. While a
// submission is in flight the current view is kept and reported as a redirect.
func (s *Store) Navigate(target domain.View) (domain.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return s.view, s.view != target
	}
	allowed := false
	switch target {
	case domain.ViewConfirmation:
		allowed = s.progress.AllCompleted()
	case domain.ViewResult:
		allowed = s.resultReachableLocked()
	default:
		if step, ok := target.Step(); ok {
			allowed = s.progress.Navigable(step)
		}
	}
	if !allowed {
		return s.goToLocked(domain.ViewForStep(s.progress.FirstIncomplete())), true
	}
	return s.goToLocked(target), false
}

// Advance validates the current step and, on success, stores the normalized
// draft, marks the step completed and moves forward. A failed validation
// changes nothing.
func (s *Store) Advance() (domain.View, validate.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return s.view, validate.Result{}, ErrSubmitting
	}
	step, ok := s.view.Step()
	if !ok {
		return s.view, validate.Result{}, fmt.Errorf("%w: view %s has no step to advance", ErrInvalidStep, s.view)
	}
	res := s.validateLocked(step)
	if !res.Valid {
		s.log.Debug("step rejected", zap.Int("step", int(step)), zap.Int("errors", len(res.Errors)))
		return s.view, res, nil
	}
	s.draft = res.Normalized.Clone()
	s.progress.CompletedSteps[step] = true
	next := domain.ViewConfirmation
	if step < domain.StepBacker {
		next = domain.ViewForStep(step + 1)
	}
	return s.goToLocked(next), res, nil
}

// Back performs the unconditional backward transition from the current view.
func (s *Store) Back() domain.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return s.view
	}
	switch s.view {
	case domain.ViewStep2:
		return s.goToLocked(domain.ViewStep1)
	case domain.ViewStep3:
		return s.goToLocked(domain.ViewStep2)
	case domain.ViewConfirmation:
		return s.goToLocked(domain.ViewStep3)
	default:
		return s.view
	}
}

// Submit hands a snapshot of the completed draft to the submitter after the
// configured delay. Only one submission may be in flight; edits are rejected
// until it finishes. On failure the state is left as it was so the caller can retry.
func (s *Store) Submit(ctx context.Context) (domain.Submission, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		metrics.RecordSubmission("rejected")
		return domain.Submission{}, ErrSubmitting
	}
	if s.submission != nil {
		s.mu.Unlock()
		metrics.RecordSubmission("rejected")
		return domain.Submission{}, ErrAlreadySubmitted
	}
	if !s.progress.AllCompleted() {
		s.mu.Unlock()
		metrics.RecordSubmission("rejected")
		return domain.Submission{}, ErrIncomplete
	}
	s.submitting = true
	req := domain.SubmitRequest{SessionID: s.cfg.SessionID, ActorID: s.cfg.ActorID, Draft: s.draft.Clone()}
	s.mu.Unlock()

	sub, err := s.submit(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		metrics.RecordSubmission("failed")
		s.log.Warn("submission failed", zap.Error(err))
		return domain.Submission{}, fmt.Errorf("submit bounty: %w", err)
	}
	metrics.RecordSubmission("ok")
	s.submission = &sub
	s.goToLocked(domain.ViewResult)
	s.log.Info("bounty submitted", zap.String("submission_id", sub.ID))
	return sub, nil
}

func (s *Store) submit(ctx context.Context, req domain.SubmitRequest) (domain.Submission, error) {
	if s.cfg.SubmitDelay > 0 {
		timer := time.NewTimer(s.cfg.SubmitDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return domain.Submission{}, ctx.Err()
		case <-timer.C:
		}
	}
	if s.cfg.Submitter == nil {
		return stubSubmission(req, s.cfg.Now()), nil
	}
	return s.cfg.Submitter.SubmitBounty(ctx, req)
}

// stubSubmission echoes the draft back when no backend is configured.
func stubSubmission(req domain.SubmitRequest, now time.Time) domain.Submission {
	title, _ := req.Draft.String(domain.FieldTitle)
	typ, _ := req.Draft.String(domain.FieldType)
	return domain.Submission{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		ActorID:   req.ActorID,
		Title:     title,
		Type:      typ,
		Bounty:    req.Draft,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
}

// Submission returns the last successful submission, if any.
func (s *Store) Submission() (domain.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submission == nil {
		return domain.Submission{}, false
	}
	return *s.submission, true
}

// Result enters the result view. With any step incomplete it redirects to step 1.
func (s *Store) Result() (domain.ResultView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := s.goToLocked(domain.ViewResult)
	if view != domain.ViewResult {
		return domain.ResultView{View: view, Redirected: true}, nil
	}
	data, err := s.draft.MarshalIndent()
	if err != nil {
		return domain.ResultView{}, fmt.Errorf("render result: %w", err)
	}
	return domain.ResultView{View: view, JSON: string(data)}, nil
}

// Reset returns the session to its initial state.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmitting
	}
	s.resetLocked()
	return nil
}

// Snapshot returns a deep copy of the session state.
func (s *Store) Snapshot() domain.WizardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	nav := make([]domain.Step, 0, len(domain.Steps))
	for _, step := range domain.Steps {
		if s.progress.Navigable(step) {
			nav = append(nav, step)
		}
	}
	return domain.WizardState{
		SessionID:  s.cfg.SessionID,
		Draft:      s.draft.Clone(),
		Progress:   s.progress.Clone(),
		View:       s.view,
		Navigable:  nav,
		Submitting: s.submitting,
	}
}
