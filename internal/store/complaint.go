package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resolveit/apiserver/types"
)

const complaintColumns = `id, title, description, category, priority, status, date_submitted, date_updated, user_id`

// ComplaintRepository handles persistence for complaints.
type ComplaintRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewComplaintRepository(db *sql.DB) *ComplaintRepository {
	return &ComplaintRepository{db: db, now: time.Now}
}

// List returns complaints matching filter, newest first, together with the
// total number of matches ignoring pagination.
func (r *ComplaintRepository) List(ctx context.Context, filter types.ComplaintFilter) ([]types.Complaint, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	where, args := complaintWhere(filter)

	countQuery := `SELECT COUNT(1) FROM complaints` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT %s
		FROM complaints%s
		ORDER BY date_submitted DESC
		OFFSET $%d LIMIT $%d`, complaintColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, filter.Offset, filter.Limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	complaints := make([]types.Complaint, 0, filter.Limit)
	for rows.Next() {
		complaint, err := scanComplaint(rows)
		if err != nil {
			return nil, 0, err
		}
		complaints = append(complaints, complaint)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return complaints, total, nil
}

func (r *ComplaintRepository) Get(ctx context.Context, id uuid.UUID) (types.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`
	complaint, err := scanComplaint(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Complaint{}, ErrNotFound
		}
		return types.Complaint{}, err
	}
	return complaint, nil
}

// Create inserts a new complaint. The identifier and submission time are
// assigned here; status defaults to Pending.
func (r *ComplaintRepository) Create(ctx context.Context, complaint types.Complaint) (types.Complaint, error) {
	complaint.ID = uuid.New()
	complaint.DateSubmitted = r.now().UTC()
	complaint.DateUpdated = nil
	if complaint.Status == "" {
		complaint.Status = types.StatusPending
	}

	const query = `
		INSERT INTO complaints (id, title, description, category, priority, status, date_submitted, date_updated, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		complaint.ID,
		complaint.Title,
		complaint.Description,
		complaint.Category,
		complaint.Priority,
		complaint.Status,
		complaint.DateSubmitted,
		complaint.UserID,
	); err != nil {
		return types.Complaint{}, err
	}
	return complaint, nil
}

// UpdateStatus sets the status and stamps date_updated in one statement.
func (r *ComplaintRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status types.Status, at time.Time) (types.Complaint, error) {
	return r.updateField(ctx, "status", id, string(status), at)
}

// UpdatePriority sets the priority and stamps date_updated in one statement.
func (r *ComplaintRepository) UpdatePriority(ctx context.Context, id uuid.UUID, priority types.Priority, at time.Time) (types.Complaint, error) {
	return r.updateField(ctx, "priority", id, string(priority), at)
}

func (r *ComplaintRepository) updateField(ctx context.Context, column string, id uuid.UUID, value string, at time.Time) (types.Complaint, error) {
	query := fmt.Sprintf(`
		UPDATE complaints
		SET %s = $1,
			date_updated = $2
		WHERE id = $3
		RETURNING %s`, column, complaintColumns)
	complaint, err := scanComplaint(r.db.QueryRowContext(ctx, query, value, at.UTC(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Complaint{}, ErrNotFound
		}
		return types.Complaint{}, err
	}
	return complaint, nil
}

func (r *ComplaintRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM complaints WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (types.Complaint, error) {
	var complaint types.Complaint
	var updated sql.NullTime
	if err := row.Scan(
		&complaint.ID,
		&complaint.Title,
		&complaint.Description,
		&complaint.Category,
		&complaint.Priority,
		&complaint.Status,
		&complaint.DateSubmitted,
		&updated,
		&complaint.UserID,
	); err != nil {
		return types.Complaint{}, err
	}
	if updated.Valid {
		at := updated.Time
		complaint.DateUpdated = &at
	}
	return complaint, nil
}

func complaintWhere(filter types.ComplaintFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.UserID != nil {
		add("user_id", *filter.UserID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.Priority != "" {
		add("priority", string(filter.Priority))
	}
	if filter.Category != "" {
		add("category", string(filter.Category))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
