package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/resolveit/apiserver/internal/notify"
	"github.com/resolveit/apiserver/internal/store"
	"github.com/resolveit/apiserver/types"
)

type memoryComplaints struct {
	mu    sync.Mutex
	items map[uuid.UUID]types.Complaint
}

func newMemoryComplaints(items ...types.Complaint) *memoryComplaints {
	m := &memoryComplaints{items: make(map[uuid.UUID]types.Complaint)}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

func (m *memoryComplaints) snapshot(id uuid.UUID) types.Complaint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

func (m *memoryComplaints) List(ctx context.Context, filter types.ComplaintFilter) ([]types.Complaint, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Complaint
	for _, item := range m.items {
		if filter.UserID != nil && item.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, item)
	}
	return out, len(out), nil
}

func (m *memoryComplaints) Get(ctx context.Context, id uuid.UUID) (types.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return types.Complaint{}, store.ErrNotFound
	}
	return item, nil
}

func (m *memoryComplaints) Create(ctx context.Context, complaint types.Complaint) (types.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	complaint.ID = uuid.New()
	complaint.DateSubmitted = time.Now().UTC()
	m.items[complaint.ID] = complaint
	return complaint, nil
}

func (m *memoryComplaints) update(id uuid.UUID, at time.Time, apply func(*types.Complaint)) (types.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return types.Complaint{}, store.ErrNotFound
	}
	apply(&item)
	stamped := at
	item.DateUpdated = &stamped
	m.items[id] = item
	return item, nil
}

func (m *memoryComplaints) UpdateStatus(ctx context.Context, id uuid.UUID, status types.Status, at time.Time) (types.Complaint, error) {
	return m.update(id, at, func(c *types.Complaint) { c.Status = status })
}

func (m *memoryComplaints) UpdatePriority(ctx context.Context, id uuid.UUID, priority types.Priority, at time.Time) (types.Complaint, error) {
	return m.update(id, at, func(c *types.Complaint) { c.Priority = priority })
}

func (m *memoryComplaints) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, email notify.Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, email)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type memoryUsers struct {
	byEmail map[string]types.User
}

func (m *memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	for _, user := range m.byEmail {
		if user.ID == id {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := m.byEmail[user.Email]; ok {
		return types.User{}, store.ErrConflict
	}
	user.ID = uuid.New()
	m.byEmail[user.Email] = user
	return user, nil
}

func (m *memoryUsers) UpdateRole(ctx context.Context, email string, role types.Role) (types.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Role = role
	m.byEmail[email] = user
	return user, nil
}

var errRelayDown = errors.New("relay down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
