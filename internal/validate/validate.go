// Package validate holds the per-step acceptance checks of the bounty wizard.
//
// Validators are pure: they read a draft snapshot and report every rule violation
// for their step at once, so a caller can annotate all offending fields together.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bountywizard/internal/domain"
)

var rules = validator.New()

// Result is the outcome of validating one step.
type Result struct {
	Step   domain.Step         `json:"step"`
	Valid  bool                `json:"valid"`
	Errors []domain.FieldError `json:"errors"`
	// Normalized is the draft as it should be stored once the step is accepted.
	Normalized domain.Draft `json:"-"`
}

// Err returns a *Error when the result is invalid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Step: r.Step, Fields: r.Errors}
}

// Error is a step validation failure carrying every field violation.
type Error struct {
	Step   domain.Step
	Fields []domain.FieldError
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Path+": "+f.Message)
	}
	return fmt.Sprintf("step %d validation failed: %s", e.Step, strings.Join(parts, "; "))
}

// Step runs the validator registered for step against d.
func Step(step domain.Step, d domain.Draft, now time.Time) Result {
	switch step {
	case domain.StepBasics:
		return Basics(d)
	case domain.StepRewards:
		return Rewards(d, now)
	case domain.StepBacker:
		return Backer(d)
	default:
		return Result{Step: step, Errors: []domain.FieldError{{Path: "step", Message: fmt.Sprintf("unknown step %d", step)}}}
	}
}

type collector struct {
	draft  domain.Draft
	errors []domain.FieldError
}

func (c *collector) fail(path, msg string) {
	c.errors = append(c.errors, domain.FieldError{Path: path, Message: msg})
}

func (c *collector) result(step domain.Step, normalized domain.Draft) Result {
	res := Result{Step: step, Valid: len(c.errors) == 0, Errors: c.errors}
	if res.Errors == nil {
		res.Errors = []domain.FieldError{}
	}
	if res.Valid {
		res.Normalized = normalized
	}
	return res
}

// text returns the string at path. Missing values and non-strings report ok=false
// after recording msg.
func (c *collector) text(path, requiredMsg string) (string, bool) {
	v, present := c.draft.Get(path)
	if !present || v == nil {
		c.fail(path, requiredMsg)
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.fail(path, "Expected text")
		return "", false
	}
	return s, true
}

func (c *collector) enum(path, requiredMsg string, options string) {
	s, ok := c.text(path, requiredMsg)
	if !ok {
		return
	}
	if s == "" {
		c.fail(path, requiredMsg)
		return
	}
	if rules.Var(s, "oneof="+options) != nil {
		c.fail(path, fmt.Sprintf("Invalid option %q", s))
	}
}

func (c *collector) integer(path, requiredMsg, tag, rangeMsg string) {
	v, present := c.draft.Get(path)
	if !present || v == nil {
		c.fail(path, requiredMsg)
		return
	}
	if f, isNum := domain.Number(v); isNum && (f >= 1<<63 || f < -(1<<63)) {
		c.fail(path, "Number too large")
		return
	}
	n, ok := domain.Integer(v)
	if !ok {
		c.fail(path, "Expected a whole number")
		return
	}
	if rules.Var(n, tag) != nil {
		c.fail(path, rangeMsg)
	}
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}

func joinOptions[T ~string](items []T) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = string(it)
	}
	return strings.Join(parts, " ")
}
