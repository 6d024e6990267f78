package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type BountyType string

const (
	TypeContent     BountyType = "Content"
	TypeDesign      BountyType = "Design"
	TypeDevelopment BountyType = "Development"
	TypeMarketing   BountyType = "Marketing"
	TypeOther       BountyType = "Other"
)

var BountyTypes = []BountyType{TypeContent, TypeDesign, TypeDevelopment, TypeMarketing, TypeOther}

type DominantCore string

const (
	CoreWater  DominantCore = "Water"
	CoreEarth  DominantCore = "Earth"
	CoreSocial DominantCore = "Social"
	CoreEnergy DominantCore = "Energy"
)

var DominantCores = []DominantCore{CoreWater, CoreEarth, CoreSocial, CoreEnergy}

type Mode string

const (
	ModeDigital  Mode = "digital"
	ModePhysical Mode = "physical"
)

var Modes = []Mode{ModeDigital, ModePhysical}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyINR Currency = "INR"
	CurrencyGBP Currency = "GBP"
)

var Currencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyINR, CurrencyGBP}

// SDGOptions is the fixed list of sustainable development goal tags a bounty can carry.
var SDGOptions = []string{
	"No Poverty",
	"Zero Hunger",
	"Good Health",
	"Quality Education",
	"Gender Equality",
	"Clean Water",
}

// IsSDG reports whether tag is one of SDGOptions.
func IsSDG(tag string) bool {
	for _, opt := range SDGOptions {
		if opt == tag {
			return true
		}
	}
	return false
}

// Step is one of the three data-entry screens of the wizard.
type Step int

const (
	StepBasics  Step = 1
	StepRewards Step = 2
	StepBacker  Step = 3
)

var Steps = []Step{StepBasics, StepRewards, StepBacker}

func (s Step) Valid() bool { return s >= StepBasics && s <= StepBacker }

func (s Step) Name() string {
	switch s {
	case StepBasics:
		return "Basics"
	case StepRewards:
		return "Rewards"
	case StepBacker:
		return "Backer"
	default:
		return ""
	}
}

// View is a wizard state: the three steps plus the two terminal screens.
type View string

const (
	ViewStep1        View = "step1"
	ViewStep2        View = "step2"
	ViewStep3        View = "step3"
	ViewConfirmation View = "confirmation"
	ViewResult       View = "result"
)

// ViewForStep maps a step to its view.
func ViewForStep(s Step) View {
	switch s {
	case StepRewards:
		return ViewStep2
	case StepBacker:
		return ViewStep3
	default:
		return ViewStep1
	}
}

// Step returns the step a view edits, if any.
func (v View) Step() (Step, bool) {
	switch v {
	case ViewStep1:
		return StepBasics, true
	case ViewStep2:
		return StepRewards, true
	case ViewStep3:
		return StepBacker, true
	default:
		return 0, false
	}
}

// ParseView accepts "1".."3", "step1".."step3", "confirmation" and "result".
func ParseView(raw string) (View, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch View(s) {
	case ViewStep1, ViewStep2, ViewStep3, ViewConfirmation, ViewResult:
		return View(s), nil
	}
	if n, err := strconv.Atoi(s); err == nil && Step(n).Valid() {
		return ViewForStep(Step(n)), nil
	}
	return "", fmt.Errorf("invalid navigation target %q", raw)
}

// FieldError is a single rule violation tied to a draft path.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Progress tracks the current step pointer and which steps passed validation.
type Progress struct {
	CurrentStep    Step          `json:"current_step"`
	CompletedSteps map[Step]bool `json:"completed_steps"`
}

// NewProgress returns the initial progress.
func NewProgress() Progress {
	return Progress{CurrentStep: StepBasics, CompletedSteps: map[Step]bool{}}
}

// Completed reports whether step was marked completed.
func (p Progress) Completed(step Step) bool { return p.CompletedSteps[step] }

// AllCompleted reports whether every data-entry step is completed.
func (p Progress) AllCompleted() bool {
	for _, s := range Steps {
		if !p.CompletedSteps[s] {
			return false
		}
	}
	return true
}

// FirstIncomplete returns the first step not yet completed, or StepBacker when all are.
func (p Progress) FirstIncomplete() Step {
	for _, s := range Steps {
		if !p.CompletedSteps[s] {
			return s
		}
	}
	return StepBacker
}

// Navigable reports whether step is the current step or an already completed one.
func (p Progress) Navigable(step Step) bool {
	if !step.Valid() {
		return false
	}
	return step == p.CurrentStep || p.CompletedSteps[step]
}

// Clone returns an independent copy.
func (p Progress) Clone() Progress {
	out := Progress{CurrentStep: p.CurrentStep, CompletedSteps: make(map[Step]bool, len(p.CompletedSteps))}
	for k, v := range p.CompletedSteps {
		out.CompletedSteps[k] = v
	}
	return out
}

// WizardState is a read-only snapshot of a wizard session.
type WizardState struct {
	SessionID  string   `json:"session_id,omitempty"`
	Draft      Draft    `json:"draft"`
	Progress   Progress `json:"progress"`
	View       View     `json:"view" enum:"step1,step2,step3,confirmation,result"`
	Navigable  []Step   `json:"navigable_steps"`
	Submitting bool     `json:"submitting"`
}

// ResultView is what the result screen shows.
type ResultView struct {
	View       View   `json:"view"`
	Redirected bool   `json:"redirected"`
	JSON       string `json:"json,omitempty"`
}

// SubmitRequest carries a validated draft snapshot to the submission backend.
type SubmitRequest struct {
	SessionID string
	ActorID   string
	Draft     Draft
}

type Submission struct {
	ID             string  `json:"id"`
	SessionID      string  `json:"session_id"`
	ActorID        string  `json:"actor_id"`
	Title          string  `json:"title"`
	Type           string  `json:"type"`
	RewardCurrency string  `json:"reward_currency,omitempty"`
	RewardAmount   float64 `json:"reward_amount,omitempty"`
	Bounty         Draft   `json:"bounty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
