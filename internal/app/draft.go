package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bountywizard/internal/domain"
	"bountywizard/internal/wizard"
)

// LoadDraftFile reads a YAML (or JSON) draft. Keys follow the field paths, nested
// objects included; unknown keys are rejected.
func LoadDraftFile(path string) (domain.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDraft(data)
}

func ParseDraft(data []byte) (domain.Draft, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid draft yaml: %w", err)
	}
	for k, v := range raw {
		if err := domain.CheckValue(k, v); err != nil {
			return nil, err
		}
	}
	return domain.Draft(raw), nil
}

// DraftFields flattens d into leaf assignments in form order, so governing flags
// are applied before the fields they control.
func DraftFields(d domain.Draft) []wizard.FieldValue {
	var out []wizard.FieldValue
	for _, f := range domain.Fields {
		if f.Kind == domain.KindObject {
			continue
		}
		if v, ok := d.Get(f.Path); ok {
			out = append(out, wizard.FieldValue{Path: f.Path, Value: v})
		}
	}
	return out
}

// ApplyDraft writes d into s field by field.
func ApplyDraft(s *wizard.Store, d domain.Draft) error {
	for _, fv := range DraftFields(d) {
		if err := s.SetField(fv.Path, fv.Value); err != nil {
			return fmt.Errorf("%s: %w", fv.Path, err)
		}
	}
	return nil
}

// Walk advances s through every step. It stops at the first step that fails and
// returns that step's result.
func Walk(s *wizard.Store) (domain.View, []StepReport, error) {
	var reports []StepReport
	for range domain.Steps {
		state := s.Snapshot()
		step, ok := state.View.Step()
		if !ok {
			return state.View, reports, nil
		}
		view, res, err := s.Advance()
		if err != nil {
			return view, reports, err
		}
		reports = append(reports, StepReport{Step: step, Name: step.Name(), Valid: res.Valid, Errors: res.Errors})
		if !res.Valid {
			return view, reports, nil
		}
	}
	return s.Snapshot().View, reports, nil
}

// StepReport is the outcome of validating one step.
type StepReport struct {
	Step   domain.Step         `json:"step"`
	Name   string              `json:"name"`
	Valid  bool                `json:"valid"`
	Errors []domain.FieldError `json:"errors,omitempty"`
}
