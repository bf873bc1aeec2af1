package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/resolveit/apiserver/config"
	"github.com/resolveit/apiserver/internal/confirm"
	"github.com/resolveit/apiserver/internal/notify"
	"github.com/resolveit/apiserver/internal/services"
	"github.com/resolveit/apiserver/internal/store"
	"github.com/resolveit/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionSecret = "session-secret"

type memoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func (m *memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := m.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrConflict
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uuid.New()
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryUsers) UpdateRole(ctx context.Context, email string, role types.Role) (types.User, error) {
	user, err := m.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Role = role
	m.users[user.ID] = user
	return user, nil
}

type memoryComplaints struct {
	mu    sync.Mutex
	items map[uuid.UUID]types.Complaint
}

func (m *memoryComplaints) get(id uuid.UUID) types.Complaint {
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
		if filter.Priority != "" && item.Priority != filter.Priority {
			continue
		}
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateSubmitted.Equal(out[j].DateSubmitted) {
			return out[i].DateSubmitted.After(out[j].DateSubmitted)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	total := len(out)
	if filter.Offset >= total {
		return nil, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
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
	item.DateUpdated = &at
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

type outbox struct {
	mu   sync.Mutex
	sent []notify.Email
}

func (o *outbox) Send(ctx context.Context, email notify.Email) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, email)
	return nil
}

func (o *outbox) last(t *testing.T) notify.Email {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type testEnv struct {
	router     http.Handler
	users      *memoryUsers
	complaints *memoryComplaints
	outbox     *outbox
	clock      *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Now().UTC()
	env := &testEnv{
		users:      &memoryUsers{users: map[uuid.UUID]types.User{}},
		complaints: &memoryComplaints{items: map[uuid.UUID]types.Complaint{}},
		outbox:     &outbox{},
		clock:      &now,
	}
	clock := func() time.Time { return *env.clock }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, err := confirm.NewSigner("confirm-secret", time.Hour, confirm.WithClock(clock))
	require.NoError(t, err)

	userService := services.NewUserService(env.users)
	complaintService := services.NewComplaintService(env.complaints)
	confirmationService := services.NewConfirmationService(env.complaints, signer, env.outbox, services.ConfirmationOptions{
		PublicURL: "http://api.test",
		Logger:    logger,
		Now:       clock,
	})

	auth := NewAuthHandler(userService, complaintService, config.AuthConfig{JWTSecret: testSessionSecret})
	complaintHandler := NewComplaintHandler(complaintService, confirmationService, "http://app.test/", logger)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	router.Route("/user", func(r chi.Router) { AuthRouter(r, auth) })
	router.Route("/complaint", func(r chi.Router) { ComplaintRouter(r, complaintHandler, auth) })
	env.router = router
	return env
}

func (e *testEnv) addUser(t *testing.T, email string, role types.Role) (types.User, *http.Cookie) {
	t.Helper()
	user, err := e.users.Create(context.Background(), types.User{Name: email, Email: email, Role: role, PasswordHash: "x"})
	require.NoError(t, err)
	token, _, err := issueToken(user, []byte(testSessionSecret), time.Hour)
	require.NoError(t, err)
	return user, &http.Cookie{Name: defaultCookieName, Value: token}
}

func (e *testEnv) addComplaint(owner uuid.UUID) types.Complaint {
	complaint, _ := e.complaints.Create(context.Background(), types.Complaint{
		Title:       "Broken blender",
		Description: "Stopped after two days",
		Category:    types.CategoryProduct,
		Priority:    types.PriorityLow,
		Status:      types.StatusPending,
		UserID:      owner,
	})
	return complaint
}

func (e *testEnv) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

var confirmLink = regexp.MustCompile(`http://api\.test(/complaint/confirm-update\?token=\S+)`)

func confirmPath(t *testing.T, email notify.Email) string {
	t.Helper()
	match := confirmLink.FindStringSubmatch(email.Text)
	require.Len(t, match, 2, "confirmation link in email body")
	return match[1]
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRegisterLoginVerify(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/user/register", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "pw"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, types.RoleUser, created.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(http.MethodPost, "/user/register", map[string]string{"name": "Ada", "email": "ADA@example.com", "password": "pw", "role": "Admin"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/user/register", map[string]string{"name": "Eve", "email": "eve@example.com", "password": "pw", "role": "Admin"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"User"`)

	rec = env.do(http.MethodPost, "/user/register", RegisterRequest{Email: "x@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/user/login", LoginRequest{Email: "ada@example.com", Password: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/user/login", LoginRequest{Email: "ada@example.com", Password: "pw"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]
	assert.Equal(t, "token", session.Name)
	assert.True(t, session.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, session.SameSite)

	env.addComplaint(created.ID)
	env.addComplaint(uuid.New())

	rec = env.do(http.MethodGet, "/user/verify", nil, &http.Cookie{Name: session.Name, Value: session.Value})
	require.Equal(t, http.StatusOK, rec.Code)
	var verified VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.Equal(t, created.ID, verified.User.ID)
	assert.Len(t, verified.Complaints, 1)

	rec = env.do(http.MethodGet, "/user/verify", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/user/logout", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestBearerSession(t *testing.T) {
	env := newTestEnv(t)
	_, cookie := env.addUser(t, "api@example.com", types.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/user/verify", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	forged, _, err := issueToken(types.User{ID: uuid.New()}, []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	rec = env.do(http.MethodGet, "/user/verify", nil, &http.Cookie{Name: "token", Value: forged})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestComplaintCRUD(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceCookie := env.addUser(t, "alice@example.com", types.RoleUser)
	_, bobCookie := env.addUser(t, "bob@example.com", types.RoleUser)
	_, adminCookie := env.addUser(t, "admin@example.com", types.RoleAdmin)

	rec := env.do(http.MethodPost, "/complaint/new", ComplaintCreateRequest{
		Title: "Late delivery", Description: "Two weeks late", Category: "Service", Priority: "High",
	}, aliceCookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created types.Complaint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, alice.ID, created.UserID)
	assert.Equal(t, types.StatusPending, created.Status)
	assert.Nil(t, created.DateUpdated)

	rec = env.do(http.MethodPost, "/complaint/new", ComplaintCreateRequest{
		Title: "x", Description: "y", Category: "Billing", Priority: "High",
	}, aliceCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/complaint/new", ComplaintCreateRequest{Title: "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/complaint/", nil, bobCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var bobList ComplaintListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bobList))
	assert.Equal(t, 0, bobList.Total)
	assert.NotNil(t, bobList.Items)

	rec = env.do(http.MethodGet, "/complaint/?status=Pending&priority=High", nil, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var adminList ComplaintListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &adminList))
	assert.Equal(t, 1, adminList.Total)

	rec = env.do(http.MethodGet, "/complaint/?status=Closed", nil, adminCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/complaint/"+created.ID.String(), nil, bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/complaint/"+created.ID.String(), nil, aliceCookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/complaint/not-a-uuid", nil, aliceCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/complaint/"+created.ID.String(), nil, aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/complaint/"+created.ID.String(), nil, adminCookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodDelete, "/complaint/"+created.ID.String(), nil, adminCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusChangeRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceCookie := env.addUser(t, "alice@example.com", types.RoleUser)
	_, adminCookie := env.addUser(t, "admin@example.com", types.RoleAdmin)
	c1 := env.addComplaint(alice.ID)
	path := "/complaint/" + c1.ID.String()

	rec := env.do(http.MethodPut, path+"/status", StatusUpdateRequest{Status: "Resolved"}, aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, env.outbox.count())

	rec = env.do(http.MethodPut, path+"/status", StatusUpdateRequest{Status: "Resolved"}, adminCookie)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var ack MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.NotEmpty(t, ack.Message)
	assert.NotContains(t, rec.Body.String(), "token")

	email := env.outbox.last(t)
	assert.Equal(t, "admin@example.com", email.To)
	assert.Equal(t, types.StatusPending, env.complaints.get(c1.ID).Status)

	link := confirmPath(t, email)
	*env.clock = env.clock.Add(5 * time.Minute)
	rec = env.do(http.MethodGet, link, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Status updated")
	assert.Contains(t, rec.Body.String(), `href="http://app.test/complaints"`)

	stored := env.complaints.get(c1.ID)
	assert.Equal(t, types.StatusResolved, stored.Status)
	require.NotNil(t, stored.DateUpdated)
	assert.True(t, env.clock.Equal(*stored.DateUpdated))
}

func TestPriorityChangeValidation(t *testing.T) {
	env := newTestEnv(t)
	_, adminCookie := env.addUser(t, "admin@example.com", types.RoleAdmin)
	c1 := env.addComplaint(uuid.New())
	path := "/complaint/" + c1.ID.String()

	rec := env.do(http.MethodPut, path+"/priority", PriorityUpdateRequest{Priority: "Urgent"}, adminCookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.outbox.count())

	rec = env.do(http.MethodPut, "/complaint/"+uuid.NewString()+"/priority", PriorityUpdateRequest{Priority: "High"}, adminCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, env.outbox.count())

	rec = env.do(http.MethodPut, path+"/priority", PriorityUpdateRequest{Priority: "High"}, adminCookie)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = env.do(http.MethodGet, confirmPath(t, env.outbox.last(t)), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Priority updated")
	assert.Equal(t, types.PriorityHigh, env.complaints.get(c1.ID).Priority)
}

func TestConfirmFailuresAreGeneric(t *testing.T) {
	env := newTestEnv(t)
	_, adminCookie := env.addUser(t, "admin@example.com", types.RoleAdmin)
	c1 := env.addComplaint(uuid.New())

	rec := env.do(http.MethodPut, "/complaint/"+c1.ID.String()+"/status", StatusUpdateRequest{Status: "In Progress"}, adminCookie)
	require.Equal(t, http.StatusAccepted, rec.Code)
	link := confirmPath(t, env.outbox.last(t))

	garbage := env.do(http.MethodGet, "/complaint/confirm-update?token=garbage", nil, nil)
	missing := env.do(http.MethodGet, "/complaint/confirm-update", nil, nil)

	*env.clock = env.clock.Add(2 * time.Hour)
	expired := env.do(http.MethodGet, link, nil, nil)

	for name, rec := range map[string]*httptest.ResponseRecorder{"garbage": garbage, "missing": missing, "expired": expired} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
			assert.Equal(t, confirmFailedMessage, rec.Body.String())
		})
	}
	assert.Equal(t, types.StatusPending, env.complaints.get(c1.ID).Status)
}

func TestRoleReadFromStoreEachRequest(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.addUser(t, "grace@example.com", types.RoleUser)
	c1 := env.addComplaint(uuid.New())

	rec := env.do(http.MethodDelete, "/complaint/"+c1.ID.String(), nil, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	_, err := env.users.UpdateRole(context.Background(), user.Email, types.RoleAdmin)
	require.NoError(t, err)

	rec = env.do(http.MethodDelete, "/complaint/"+c1.ID.String(), nil, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVerifyReturnsEveryComplaint(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.addUser(t, "prolific@example.com", types.RoleUser)

	const filed = maxLimit*2 + 5
	seen := make(map[uuid.UUID]bool, filed)
	for i := 0; i < filed; i++ {
		seen[env.addComplaint(user.ID).ID] = false
	}
	env.addComplaint(uuid.New())

	rec := env.do(http.MethodGet, "/user/verify", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var verified VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	require.Len(t, verified.Complaints, filed)
	for _, complaint := range verified.Complaints {
		assert.Equal(t, user.ID, complaint.UserID)
		assert.False(t, seen[complaint.ID], "complaint %s returned twice", complaint.ID)
		seen[complaint.ID] = true
	}
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&limit=500", nil)
	page, limit, offset, err := parsePagination(req)
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, maxLimit, limit)
	assert.Equal(t, 200, offset)

	_, _, _, err = parsePagination(httptest.NewRequest(http.MethodGet, "/?page=0", nil))
	assert.Error(t, err)

	_, _, _, err = parsePagination(httptest.NewRequest(http.MethodGet, "/?page=9223372036854775807&limit=100", nil))
	assert.EqualError(t, err, "invalid page")
}
