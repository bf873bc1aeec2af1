package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resolveit/apiserver/types"
)

// ComplaintRepository defines persistence operations for complaints.
type ComplaintRepository interface {
	List(ctx context.Context, filter types.ComplaintFilter) ([]types.Complaint, int, error)
	Get(ctx context.Context, id uuid.UUID) (types.Complaint, error)
	Create(ctx context.Context, complaint types.Complaint) (types.Complaint, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status types.Status, at time.Time) (types.Complaint, error)
	UpdatePriority(ctx context.Context, id uuid.UUID, priority types.Priority, at time.Time) (types.Complaint, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ComplaintService encapsulates complaint use-cases other than the
// confirmed status and priority changes.
type ComplaintService struct {
	repo ComplaintRepository
}

func NewComplaintService(repo ComplaintRepository) *ComplaintService {
	return &ComplaintService{repo: repo}
}

// Create files a new complaint for owner. Status always starts at Pending.
func (s *ComplaintService) Create(ctx context.Context, owner uuid.UUID, complaint types.Complaint) (types.Complaint, error) {
	complaint.Title = strings.TrimSpace(complaint.Title)
	complaint.Description = strings.TrimSpace(complaint.Description)
	if complaint.Title == "" || complaint.Description == "" {
		return types.Complaint{}, fmt.Errorf("%w: title and description are required", ErrInvalidValue)
	}
	if !complaint.Category.Valid() {
		return types.Complaint{}, fmt.Errorf("%w: category %q", ErrInvalidValue, complaint.Category)
	}
	if !complaint.Priority.Valid() {
		return types.Complaint{}, fmt.Errorf("%w: priority %q", ErrInvalidValue, complaint.Priority)
	}

	complaint.UserID = owner
	complaint.Status = types.StatusPending
	return s.repo.Create(ctx, complaint)
}

// List returns complaints visible to the caller. Non-admin callers only
// see their own.
func (s *ComplaintService) List(ctx context.Context, caller types.User, filter types.ComplaintFilter) ([]types.Complaint, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: status %q", ErrInvalidValue, filter.Status)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, 0, fmt.Errorf("%w: priority %q", ErrInvalidValue, filter.Priority)
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, 0, fmt.Errorf("%w: category %q", ErrInvalidValue, filter.Category)
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	if !caller.Role.IsAdmin() {
		owner := caller.ID
		filter.UserID = &owner
	}
	return s.repo.List(ctx, filter)
}

// Get returns a complaint the caller owns, or any complaint for admins.
func (s *ComplaintService) Get(ctx context.Context, caller types.User, id uuid.UUID) (types.Complaint, error) {
	complaint, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Complaint{}, err
	}
	if !caller.Role.IsAdmin() && complaint.UserID != caller.ID {
		return types.Complaint{}, ErrForbidden
	}
	return complaint, nil
}

func (s *ComplaintService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
