package notify

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"
	"time"
)

// ConfirmationRequest describes a pending complaint change for the approver.
type ConfirmationRequest struct {
	To             string
	ComplaintID    string
	ComplaintTitle string
	Category       string
	Status         string
	Priority       string
	Action         string
	Field          string
	NewValue       string
	ConfirmURL     string
	ExpiresAt      time.Time
}

const confirmationSubject = "Confirm complaint {{.Field}} change"

const confirmationText = `A change was requested for complaint "{{.ComplaintTitle}}" ({{.ComplaintID}}).

Current state:
  Category: {{.Category}}
  Status:   {{.Status}}
  Priority: {{.Priority}}

Requested change: {{.Field}} -> {{.NewValue}}

Open the link below to apply it:
{{.ConfirmURL}}

The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}. Anyone holding it can apply the change, so do not forward this email.
`

const confirmationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif;">
  <h2>Confirm complaint {{.Field}} change</h2>
  <p>A change was requested for complaint <strong>{{.ComplaintTitle}}</strong>.</p>
  <table>
    <tr><td>Category</td><td>{{.Category}}</td></tr>
    <tr><td>Status</td><td>{{.Status}}</td></tr>
    <tr><td>Priority</td><td>{{.Priority}}</td></tr>
  </table>
  <p>Requested change: <strong>{{.Field}}</strong> &rarr; <strong>{{.NewValue}}</strong></p>
  <p><a href="{{.ConfirmURL}}">Confirm update</a></p>
  <p style="color: #666;">This link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}. Anyone holding it can apply the change, so do not forward this email.</p>
</body>
</html>
`

var (
	confirmationSubjectTmpl = template.Must(template.New("subject").Parse(confirmationSubject))
	confirmationTextTmpl    = template.Must(template.New("text").Parse(confirmationText))
	confirmationHTMLTmpl    = htmltemplate.Must(htmltemplate.New("html").Parse(confirmationHTML))
)

// ConfirmationEmail renders the approval email for req.
func ConfirmationEmail(req ConfirmationRequest) (Email, error) {
	var subject, text, html bytes.Buffer
	if err := confirmationSubjectTmpl.Execute(&subject, req); err != nil {
		return Email{}, err
	}
	if err := confirmationTextTmpl.Execute(&text, req); err != nil {
		return Email{}, err
	}
	if err := confirmationHTMLTmpl.Execute(&html, req); err != nil {
		return Email{}, err
	}
	return Email{
		To:      req.To,
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
		Tags: map[string]string{
			"complaint_id": req.ComplaintID,
			"action":       req.Action,
		},
	}, nil
}
