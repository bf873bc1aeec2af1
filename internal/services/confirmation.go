package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resolveit/apiserver/internal/confirm"
	"github.com/resolveit/apiserver/internal/ledger"
	"github.com/resolveit/apiserver/internal/metrics"
	"github.com/resolveit/apiserver/internal/notify"
	"github.com/resolveit/apiserver/internal/store"
	"github.com/resolveit/apiserver/types"
)

// ConfirmPath is the route that applies a confirmed change.
const ConfirmPath = "/complaint/confirm-update"

// Ledger records consumed confirmation tokens. Consume returns
// ledger.ErrAlreadyUsed for a token id it has seen before.
type Ledger interface {
	Consume(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// ConfirmationOptions configures a ConfirmationService.
type ConfirmationOptions struct {
	// PublicURL is the externally reachable base URL of the API.
	PublicURL string
	// ApproverEmail overrides the requester as recipient of confirmation
	// emails when set.
	ApproverEmail string
	// Rules defaults to DefaultAllowedValues.
	Rules *AllowedValues
	// Ledger enables single-use tokens when non-nil.
	Ledger Ledger
	Logger *slog.Logger
	Now    func() time.Time
}

// PendingConfirmation describes a dispatched confirmation request. The
// token is kept for callers in-process and is never serialized.
type PendingConfirmation struct {
	ComplaintID uuid.UUID      `json:"complaintId"`
	Action      confirm.Action `json:"action"`
	Value       string         `json:"value"`
	Approver    string         `json:"approver"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Token       string         `json:"-"`
}

// ConfirmationResult is the outcome of an applied confirmation.
type ConfirmationResult struct {
	Complaint types.Complaint
	Field     string
	Value     string
	Message   string
}

// ConfirmationService issues emailed confirmation links for status and
// priority changes and applies them when the link is followed.
type ConfirmationService struct {
	complaints ComplaintRepository
	signer     *confirm.Signer
	notifier   notify.Notifier
	rules      AllowedValues
	ledger     Ledger
	publicURL  string
	approver   string
	logger     *slog.Logger
	now        func() time.Time
}

func NewConfirmationService(complaints ComplaintRepository, signer *confirm.Signer, notifier notify.Notifier, opts ConfirmationOptions) *ConfirmationService {
	s := &ConfirmationService{
		complaints: complaints,
		signer:     signer,
		notifier:   notifier,
		rules:      DefaultAllowedValues(),
		ledger:     opts.Ledger,
		publicURL:  strings.TrimRight(opts.PublicURL, "/"),
		approver:   strings.TrimSpace(opts.ApproverEmail),
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if opts.Rules != nil {
		s.rules = *opts.Rules
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RequestChange validates the requested change, mints a token for it and
// emails the confirmation link to the approver. The complaint itself is not
// modified.
func (s *ConfirmationService) RequestChange(ctx context.Context, complaintID uuid.UUID, action confirm.Action, value, requesterEmail string) (PendingConfirmation, error) {
	if !action.Valid() {
		return PendingConfirmation{}, fmt.Errorf("%w: unknown action %q", ErrInvalidValue, action)
	}
	if !s.rules.Allows(action, value) {
		return PendingConfirmation{}, fmt.Errorf("%w: %s %q", ErrInvalidValue, strings.ToLower(action.Field()), value)
	}

	complaint, err := s.complaints.Get(ctx, complaintID)
	if err != nil {
		return PendingConfirmation{}, err
	}

	token, payload, err := s.signer.Mint(complaint.ID, action, value)
	if err != nil {
		return PendingConfirmation{}, fmt.Errorf("mint confirmation token: %w", err)
	}

	approver := s.approver
	if approver == "" {
		approver = strings.TrimSpace(requesterEmail)
	}

	email, err := notify.ConfirmationEmail(notify.ConfirmationRequest{
		To:             approver,
		ComplaintID:    complaint.ID.String(),
		ComplaintTitle: complaint.Title,
		Category:       string(complaint.Category),
		Status:         string(complaint.Status),
		Priority:       string(complaint.Priority),
		Action:         string(action),
		Field:          action.Field(),
		NewValue:       value,
		ConfirmURL:     s.confirmURL(token),
		ExpiresAt:      payload.ExpiresAt,
	})
	if err != nil {
		return PendingConfirmation{}, fmt.Errorf("render confirmation email: %w", err)
	}

	if err := s.notifier.Send(ctx, email); err != nil {
		metrics.MailDispatchFailures.WithLabelValues("request").Inc()
		s.logger.ErrorContext(ctx, "confirmation email dispatch failed",
			slog.String("complaint_id", complaint.ID.String()),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		return PendingConfirmation{}, fmt.Errorf("%w: %v", ErrNotifyFailed, err)
	}

	metrics.ConfirmationsIssued.WithLabelValues(string(action)).Inc()
	s.logger.InfoContext(ctx, "confirmation requested",
		slog.String("complaint_id", complaint.ID.String()),
		slog.String("action", string(action)),
		slog.String("value", value),
		slog.String("token_id", payload.ID),
		slog.Time("expires_at", payload.ExpiresAt),
	)

	return PendingConfirmation{
		ComplaintID: complaint.ID,
		Action:      action,
		Value:       value,
		Approver:    approver,
		ExpiresAt:   payload.ExpiresAt,
		Token:       token,
	}, nil
}

// Confirm verifies token and applies the change it carries. Without a
// ledger a token may be confirmed repeatedly until it expires; each
// confirmation rewrites the value and the update time.
func (s *ConfirmationService) Confirm(ctx context.Context, token string) (ConfirmationResult, error) {
	payload, err := s.signer.Verify(token)
	if err != nil {
		s.record(ctx, payload, err)
		return ConfirmationResult{}, err
	}

	if _, err := s.complaints.Get(ctx, payload.ComplaintID); err != nil {
		s.record(ctx, payload, err)
		return ConfirmationResult{}, err
	}

	if !s.rules.Allows(payload.Action, payload.Value) {
		err := fmt.Errorf("%w: %s %q is no longer allowed", ErrInvalidValue, strings.ToLower(payload.Action.Field()), payload.Value)
		s.record(ctx, payload, err)
		return ConfirmationResult{}, err
	}

	if s.ledger != nil {
		if err := s.ledger.Consume(ctx, payload.ID, payload.ExpiresAt); err != nil {
			s.record(ctx, payload, err)
			return ConfirmationResult{}, err
		}
	}

	at := s.now().UTC()
	var updated types.Complaint
	switch payload.Action {
	case confirm.ActionUpdateStatus:
		updated, err = s.complaints.UpdateStatus(ctx, payload.ComplaintID, types.Status(payload.Value), at)
	case confirm.ActionUpdatePriority:
		updated, err = s.complaints.UpdatePriority(ctx, payload.ComplaintID, types.Priority(payload.Value), at)
	}
	if err != nil {
		s.record(ctx, payload, err)
		return ConfirmationResult{}, err
	}

	s.record(ctx, payload, nil)
	field := payload.Action.Field()
	return ConfirmationResult{
		Complaint: updated,
		Field:     field,
		Value:     payload.Value,
		Message:   fmt.Sprintf("%s updated to %q successfully.", field, payload.Value),
	}, nil
}

func (s *ConfirmationService) confirmURL(token string) string {
	return s.publicURL + ConfirmPath + "?token=" + url.QueryEscape(token)
}

func (s *ConfirmationService) record(ctx context.Context, payload confirm.Payload, err error) {
	action := string(payload.Action)
	if action == "" {
		action = "unknown"
	}
	outcome := confirmationOutcome(err)
	metrics.ConfirmationsResolved.WithLabelValues(action, outcome).Inc()

	attrs := []any{
		slog.String("action", action),
		slog.String("outcome", outcome),
	}
	if payload.ID != "" {
		attrs = append(attrs,
			slog.String("token_id", payload.ID),
			slog.String("complaint_id", payload.ComplaintID.String()),
		)
	}
	switch outcome {
	case metrics.OutcomeApplied:
		s.logger.InfoContext(ctx, "confirmation applied", append(attrs, slog.String("value", payload.Value))...)
	case metrics.OutcomeError:
		s.logger.ErrorContext(ctx, "confirmation failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		s.logger.WarnContext(ctx, "confirmation rejected", attrs...)
	}
}

func confirmationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeApplied
	case errors.Is(err, confirm.ErrExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, confirm.ErrInvalidToken):
		return metrics.OutcomeInvalidToken
	case errors.Is(err, ErrInvalidValue):
		return metrics.OutcomeInvalidValue
	case errors.Is(err, store.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ledger.ErrAlreadyUsed):
		return metrics.OutcomeAlreadyUsed
	default:
		return metrics.OutcomeError
	}
}
