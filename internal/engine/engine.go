package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bountywizard/internal/config"
	"bountywizard/internal/domain"
	"bountywizard/internal/events"
	"bountywizard/internal/logging"
	"bountywizard/internal/repo"
	"bountywizard/internal/validate"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// SubmitBounty re-checks every step against the draft and stores it together
// with a bounty.submitted event.
func (e Engine) SubmitBounty(ctx context.Context, req domain.SubmitRequest) (domain.Submission, error) {
	if req.ActorID == "" {
		return domain.Submission{}, errors.New("actor is required")
	}
	now := e.now()
	for _, step := range domain.Steps {
		if err := validate.Step(step, req.Draft, now).Err(); err != nil {
			return domain.Submission{}, err
		}
	}
	bounty := req.Draft.Normalized()
	title, _ := bounty.String(domain.FieldTitle)
	typ, _ := bounty.String(domain.FieldType)
	currency, _ := bounty.String(domain.FieldRewardCurrency)
	amountRaw, _ := bounty.Get(domain.FieldRewardAmount)
	amount, _ := domain.Number(amountRaw)

	sub := domain.Submission{
		ID:             uuid.NewString(),
		SessionID:      req.SessionID,
		ActorID:        req.ActorID,
		Title:          title,
		Type:           typ,
		RewardCurrency: currency,
		RewardAmount:   amount,
		Bounty:         bounty,
		CreatedAt:      now.UTC().Format(time.RFC3339Nano),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSubmission(ctx, tx, sub); err != nil {
		return domain.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	evtID, err := e.Events.Append(ctx, tx, events.TypeBountySubmitted, events.EntitySubmission, sub.ID, req.ActorID, events.EventPayload{
		"session_id":      sub.SessionID,
		"title":           sub.Title,
		"type":            sub.Type,
		"reward_currency": sub.RewardCurrency,
		"reward_amount":   sub.RewardAmount,
	})
	if err != nil {
		return domain.Submission{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	logging.OrNop(e.Logger).Info("bounty stored",
		zap.String("submission_id", sub.ID),
		zap.String("actor_id", sub.ActorID),
		zap.Int64("event_id", evtID),
	)
	return sub, nil
}

func (e Engine) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return e.Repo.GetSubmission(ctx, id)
}

func (e Engine) ListSubmissions(ctx context.Context, f repo.SubmissionFilter) ([]domain.Submission, error) {
	return e.Repo.ListSubmissions(ctx, f)
}

func (e Engine) LatestEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
