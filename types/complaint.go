package types

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies what a complaint is about.
type Category string

const (
	CategoryProduct Category = "Product"
	CategoryService Category = "Service"
	CategorySupport Category = "Support"
)

// Priority is the triage priority of a complaint.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Status is the position of a complaint in its lifecycle.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
)

// Categories, Priorities and Statuses list the members of each fixed
// enumeration in display order.
var (
	Categories = []Category{CategoryProduct, CategoryService, CategorySupport}
	Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}
	Statuses   = []Status{StatusPending, StatusInProgress, StatusResolved}
)

func (c Category) Valid() bool {
	for _, candidate := range Categories {
		if c == candidate {
			return true
		}
	}
	return false
}

func (p Priority) Valid() bool {
	for _, candidate := range Priorities {
		if p == candidate {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	for _, candidate := range Statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Complaint represents one submitted grievance.
type Complaint struct {
	// ID is the opaque identifier assigned at creation.
	ID uuid.UUID `json:"_id" db:"id"`

	// Title is a short summary of the grievance.
	Title string `json:"title" db:"title"`

	// Description is the full text submitted by the user.
	Description string `json:"description" db:"description"`

	Category Category `json:"category" db:"category"`
	Priority Priority `json:"priority" db:"priority"`
	Status   Status   `json:"status" db:"status"`

	// DateSubmitted is set once at creation.
	DateSubmitted time.Time `json:"dateSubmitted" db:"date_submitted"`

	// DateUpdated stays nil until the first status or priority change.
	DateUpdated *time.Time `json:"dateUpdated" db:"date_updated"`

	// UserID references the user who submitted the complaint.
	UserID uuid.UUID `json:"userId" db:"user_id"`
}

// ComplaintFilter narrows a complaint listing. Zero values match everything.
type ComplaintFilter struct {
	UserID   *uuid.UUID
	Status   Status
	Priority Priority
	Category Category
	Offset   int
	Limit    int
}
