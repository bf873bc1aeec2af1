package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/resolveit/apiserver/internal/confirm"
	"github.com/resolveit/apiserver/internal/services"
	"github.com/resolveit/apiserver/internal/store"
	"github.com/resolveit/apiserver/types"
)

const confirmationSentMessage = "Confirmation email sent. The change applies once the link in the email is opened."

// ComplaintHandler provides HTTP handlers for complaints.
type ComplaintHandler struct {
	complaintService    *services.ComplaintService
	confirmationService *services.ConfirmationService
	frontendURL         string
	logger              *slog.Logger
}

// NewComplaintHandler constructs a handler with the provided services.
func NewComplaintHandler(
	complaintService *services.ComplaintService,
	confirmationService *services.ConfirmationService,
	frontendURL string,
	logger *slog.Logger,
) *ComplaintHandler {
	return &ComplaintHandler{
		complaintService:    complaintService,
		confirmationService: confirmationService,
		frontendURL:         strings.TrimRight(frontendURL, "/"),
		logger:              logger,
	}
}

// ComplaintRouter registers complaint routes on the given router. The
// confirmation route is reachable without a session.
func ComplaintRouter(r chi.Router, handler *ComplaintHandler, auth *AuthHandler) {
	r.Get("/confirm-update", handler.ConfirmUpdate)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth, auth.LoadUser)

		r.Post("/new", handler.CreateComplaint)
		r.Get("/", handler.ListComplaints)
		r.Route("/{complaintId}", func(r chi.Router) {
			r.Get("/", handler.GetComplaint)
			r.With(RequireAdmin).Delete("/", handler.DeleteComplaint)
			r.With(RequireAdmin).Put("/status", handler.UpdateStatus)
			r.With(RequireAdmin).Put("/priority", handler.UpdatePriority)
		})
	})
}

func (h *ComplaintHandler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ComplaintCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	complaint, err := h.complaintService.Create(r.Context(), user.ID, types.Complaint{
		Title:       req.Title,
		Description: req.Description,
		Category:    types.Category(strings.TrimSpace(req.Category)),
		Priority:    types.Priority(strings.TrimSpace(req.Priority)),
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidValue) {
			writeError(w, http.StatusBadRequest, "title, description, valid category and priority are required")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create complaint")
		return
	}

	writeJSON(w, http.StatusCreated, complaint)
}

func (h *ComplaintHandler) ListComplaints(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := r.URL.Query()
	filter := types.ComplaintFilter{
		Status:   types.Status(strings.TrimSpace(query.Get("status"))),
		Priority: types.Priority(strings.TrimSpace(query.Get("priority"))),
		Category: types.Category(strings.TrimSpace(query.Get("category"))),
		Offset:   offset,
		Limit:    limit,
	}

	items, total, err := h.complaintService.List(r.Context(), user, filter)
	if err != nil {
		if errors.Is(err, services.ErrInvalidValue) {
			writeError(w, http.StatusBadRequest, "invalid filter")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list complaints")
		return
	}
	if items == nil {
		items = []types.Complaint{}
	}

	writeJSON(w, http.StatusOK, ComplaintListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ComplaintHandler) GetComplaint(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseComplaintID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	complaint, err := h.complaintService.Get(r.Context(), user, id)
	if err != nil {
		// Other users' complaints are indistinguishable from missing ones.
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, services.ErrForbidden) {
			writeError(w, http.StatusNotFound, "complaint not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch complaint")
		return
	}

	writeJSON(w, http.StatusOK, complaint)
}

func (h *ComplaintHandler) DeleteComplaint(w http.ResponseWriter, r *http.Request) {
	id, err := parseComplaintID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.complaintService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "complaint not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete complaint")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus emails a confirmation link for a status change. The change
// is not applied here.
func (h *ComplaintHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.requestChange(w, r, confirm.ActionUpdateStatus, req.Status)
}

// UpdatePriority emails a confirmation link for a priority change.
func (h *ComplaintHandler) UpdatePriority(w http.ResponseWriter, r *http.Request) {
	var req PriorityUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	h.requestChange(w, r, confirm.ActionUpdatePriority, req.Priority)
}

func (h *ComplaintHandler) requestChange(w http.ResponseWriter, r *http.Request, action confirm.Action, value string) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseComplaintID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.confirmationService.RequestChange(r.Context(), id, action, strings.TrimSpace(value), user.Email); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidValue):
			writeError(w, http.StatusBadRequest, "invalid "+strings.ToLower(action.Field()))
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "complaint not found")
		default:
			h.logger.ErrorContext(r.Context(), "confirmation request failed",
				slog.String("complaint_id", id.String()),
				slog.String("action", string(action)),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, MessageResponse{Message: confirmationSentMessage})
}

// ComplaintCreateRequest is the payload for POST /complaint/new.
type ComplaintCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type PriorityUpdateRequest struct {
	Priority string `json:"priority"`
}

// ComplaintListResponse is the paginated list response payload.
type ComplaintListResponse struct {
	Items []types.Complaint `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

func parseComplaintID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "complaintId"))
	if err != nil {
		return uuid.Nil, errors.New("invalid complaint id")
	}
	return id, nil
}
