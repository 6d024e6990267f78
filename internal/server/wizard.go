package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"bountywizard/internal/dedup"
	"bountywizard/internal/domain"
	"bountywizard/internal/engine"
	"bountywizard/internal/wizard"
)

type handlers struct {
	engine   engine.Engine
	sessions *wizard.Sessions
	deduper  dedup.Deduper
	log      *zap.Logger
}

// store resolves the caller's session.
func (h handlers) store(ctx context.Context, id string) (*wizard.Store, string, huma.StatusError) {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return nil, "", authErr
	}
	s, err := h.sessions.Get(id, actorID)
	if err != nil {
		return nil, "", handleError(err)
	}
	return s, actorID, nil
}

type sessionPath struct {
	ID string `path:"id"`
}

type stateOutput struct {
	Body domain.WizardState `json:"body"`
}

type viewOutput struct {
	Body ViewResponse `json:"body"`
}

var sessionErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerSessions(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/wizard/sessions",
		Summary:       "Start a wizard session",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		id, store := h.sessions.Create(actorID)
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{ID: id, State: store.Snapshot()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/wizard/sessions/{id}",
		Summary:     "Snapshot of a wizard session",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*stateOutput, error) {
		s, _, err := h.store(ctx, input.ID)
		if err != nil {
			return nil, err
		}
		return &stateOutput{Body: s.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-session",
		Method:        http.MethodDelete,
		Path:          "/wizard/sessions/{id}",
		Summary:       "Discard a wizard session",
		DefaultStatus: http.StatusNoContent,
		Errors:        sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.sessions.Delete(input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-session",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{id}/reset",
		Summary:     "Return the session to its initial state",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*stateOutput, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		if err := s.Reset(); err != nil {
			return nil, handleError(err)
		}
		return &stateOutput{Body: s.Snapshot()}, nil
	})
}

func registerFields(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "set-fields",
		Method:      http.MethodPatch,
		Path:        "/wizard/sessions/{id}/fields",
		Summary:     "Write draft fields in order",
		Description: "Each field is written through at its dotted path. Governing flags clear their dependents. Values are validated when a step is validated, not here.",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body SetFieldsRequest `json:"body"`
	}) (*stateOutput, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		if err := s.SetFields(input.Body.Fields); err != nil {
			return nil, handleError(err)
		}
		return &stateOutput{Body: s.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-field",
		Method:      http.MethodGet,
		Path:        "/wizard/sessions/{id}/fields",
		Summary:     "Read one draft field",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Path string `query:"path" required:"true"`
	}) (*struct {
		Body FieldResponse `json:"body"`
	}, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		if _, ok := domain.Kind(input.Path); !ok {
			return nil, newAPIError(http.StatusBadRequest, "unknown_field", "unknown field: "+input.Path, nil)
		}
		v, ok := s.Field(input.Path)
		return &struct {
			Body FieldResponse `json:"body"`
		}{Body: FieldResponse{Path: input.Path, Present: ok, Value: v}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-sdg",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{id}/sdgs/toggle",
		Summary:     "Select or deselect an SDG tag",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ToggleSDGRequest `json:"body"`
	}) (*struct {
		Body SDGsResponse `json:"body"`
	}, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		tags, err := s.ToggleSDG(input.Body.Tag)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SDGsResponse `json:"body"`
		}{Body: SDGsResponse{SDGs: tags}}, nil
	})
}

type stepPath struct {
	ID   string `path:"id"`
	Step int    `path:"step" minimum:"1" maximum:"3"`
}

func registerSteps(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-step",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{id}/steps/{step}/validate",
		Summary:     "Validate a step without changing the session",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *stepPath) (*struct {
		Body AdvanceResponse `json:"body"`
	}, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		res, err := s.ValidateStep(domain.Step(input.Step))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AdvanceResponse `json:"body"`
		}{Body: AdvanceResponse{View: s.Snapshot().View, Validation: res}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-step-completed",
		Method:      http.MethodPut,
		Path:        "/wizard/sessions/{id}/steps/{step}/completed",
		Summary:     "Set the completion flag of a step",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Step int                  `path:"step" minimum:"1" maximum:"3"`
		Body MarkCompletedRequest `json:"body"`
	}) (*stateOutput, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		if err := s.MarkStepCompleted(domain.Step(input.Step), input.Body.Completed); err != nil {
			return nil, handleError(err)
		}
		return &stateOutput{Body: s.Snapshot()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{id}/advance",
		Summary:     "Validate the current step and move to the next view",
		Description: "On failure responds 422 with every field error and leaves the session unchanged.",
		Errors:      append([]int{http.StatusUnprocessableEntity}, sessionErrors...),
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body AdvanceResponse `json:"body"`
	}, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		view, res, err := s.Advance()
		if err != nil {
			return nil, handleError(err)
		}
		if !res.Valid {
			return nil, handleError(res.Err())
		}
		return &struct {
			Body AdvanceResponse `json:"body"`
		}{Body: AdvanceResponse{View: view, Validation: res}}, nil
	})
}

func registerNavigation(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "back",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{id}/back",
		Summary:     "Go back one view",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*viewOutput, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		return &viewOutput{Body: ViewResponse{View: s.Back()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "navigate",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{id}/navigate",
		Summary:     "Jump to a view",
		Description: "Targets that are neither the current step nor completed redirect to the first incomplete step.",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body NavigateRequest `json:"body"`
	}) (*viewOutput, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		target, err := domain.ParseView(input.Body.Target)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"target": input.Body.Target})
		}
		view, redirected := s.Navigate(target)
		return &viewOutput{Body: ViewResponse{View: view, Redirected: redirected}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "result",
		Method:      http.MethodGet,
		Path:        "/wizard/sessions/{id}/result",
		Summary:     "Render the submitted bounty",
		Description: "Redirects to step1 when any step is incomplete.",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *sessionPath) (*struct {
		Body domain.ResultView `json:"body"`
	}, error) {
		s, _, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		res, err := s.Result()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ResultView `json:"body"`
		}{Body: res}, nil
	})
}

func registerSubmission(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "submit",
		Method:      http.MethodPost,
		Path:        "/wizard/sessions/{id}/submit",
		Summary:     "Submit the completed bounty",
		Description: "Requests carrying an Idempotency-Key already seen for this session are rejected with 409.",
		Errors:      sessionErrors,
	}, func(ctx context.Context, input *struct {
		ID             string `path:"id"`
		IdempotencyKey string `header:"Idempotency-Key"`
	}) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		s, actorID, serr := h.store(ctx, input.ID)
		if serr != nil {
			return nil, serr
		}
		key := strings.TrimSpace(input.IdempotencyKey)
		scope := "submit:" + actorID
		if key != "" {
			key = input.ID + ":" + key
			if !h.deduper.Acquire(ctx, scope, key) {
				return nil, handleError(errDuplicateSubmission)
			}
		}
		sub, err := s.Submit(ctx)
		if err != nil {
			if key != "" {
				h.deduper.Release(context.WithoutCancel(ctx), scope, key)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: SubmitResponse{View: domain.ViewResult, Submission: sub}}, nil
	})
}
