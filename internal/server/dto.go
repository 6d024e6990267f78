package server

import (
	"encoding/json"

	"bountywizard/internal/domain"
	"bountywizard/internal/validate"
	"bountywizard/internal/wizard"
)

// Request payloads

type SetFieldsRequest struct {
	Fields []wizard.FieldValue `json:"fields" minItems:"1"`
}

type ToggleSDGRequest struct {
	Tag string `json:"tag"`
}

type MarkCompletedRequest struct {
	Completed bool `json:"completed"`
}

type NavigateRequest struct {
	Target string `json:"target" example:"step2" doc:"step1..step3, 1..3, confirmation or result"`
}

type DevLoginRequest struct {
	ActorID    string `json:"actor_id"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" minimum:"0"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type SessionResponse struct {
	ID    string             `json:"id"`
	State domain.WizardState `json:"state"`
}

type FieldResponse struct {
	Path    string `json:"path"`
	Present bool   `json:"present"`
	Value   any    `json:"value,omitempty"`
}

type SDGsResponse struct {
	SDGs []string `json:"sdgs"`
}

type ViewResponse struct {
	View       domain.View `json:"view"`
	Redirected bool        `json:"redirected,omitempty"`
}

type AdvanceResponse struct {
	View       domain.View     `json:"view"`
	Validation validate.Result `json:"validation"`
}

type SubmitResponse struct {
	View       domain.View       `json:"view"`
	Submission domain.Submission `json:"submission"`
}

type StepOption struct {
	Step domain.Step `json:"step"`
	Name string      `json:"name"`
}

type OptionsResponse struct {
	Types         []domain.BountyType   `json:"types"`
	DominantCores []domain.DominantCore `json:"dominant_cores"`
	Modes         []domain.Mode         `json:"modes"`
	Currencies    []domain.Currency     `json:"currencies"`
	SDGs          []string              `json:"sdgs"`
	Steps         []StepOption          `json:"steps"`
	Fields        []domain.FieldSpec    `json:"fields"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedSubmissions struct {
	Items      []domain.Submission `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func optionsResponse() OptionsResponse {
	steps := make([]StepOption, 0, len(domain.Steps))
	for _, s := range domain.Steps {
		steps = append(steps, StepOption{Step: s, Name: s.Name()})
	}
	return OptionsResponse{
		Types:         domain.BountyTypes,
		DominantCores: domain.DominantCores,
		Modes:         domain.Modes,
		Currencies:    domain.Currencies,
		SDGs:          domain.SDGOptions,
		Steps:         steps,
		Fields:        domain.Fields,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}
