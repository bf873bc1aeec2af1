package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/resolveit/apiserver/internal/confirm"
	"github.com/resolveit/apiserver/internal/ledger"
	"github.com/resolveit/apiserver/internal/services"
	"github.com/resolveit/apiserver/internal/store"
)

// Failure responses never say which check failed.
const (
	confirmFailedMessage = "This confirmation link is invalid or has expired."
	confirmErrorMessage  = "Something went wrong. Please try again later."
)

var confirmedPage = template.Must(template.New("confirmed").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Update confirmed</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
  <h1>{{.Field}} updated</h1>
  <p>{{.Message}}</p>
  <p><a href="{{.ReturnURL}}">Back to complaints</a></p>
</body>
</html>
`))

type confirmedView struct {
	Field     string
	Message   string
	ReturnURL string
}

// ConfirmUpdate applies the change carried by the token query parameter.
// Holding the link is the only credential.
func (h *ComplaintHandler) ConfirmUpdate(w http.ResponseWriter, r *http.Request) {
	result, err := h.confirmationService.Confirm(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		if isConfirmRejection(err) {
			writePlain(w, http.StatusBadRequest, confirmFailedMessage)
			return
		}
		writePlain(w, http.StatusInternalServerError, confirmErrorMessage)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = confirmedPage.Execute(w, confirmedView{
		Field:     result.Field,
		Message:   result.Message,
		ReturnURL: h.frontendURL + "/complaints",
	})
}

func isConfirmRejection(err error) bool {
	return errors.Is(err, confirm.ErrInvalidToken) ||
		errors.Is(err, confirm.ErrExpired) ||
		errors.Is(err, services.ErrInvalidValue) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, ledger.ErrAlreadyUsed)
}

func writePlain(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
