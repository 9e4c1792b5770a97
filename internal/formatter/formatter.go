// Package formatter renders notification jobs into the text pushed to the
// messaging gateway. Formatting is pure: the same job always yields the same
// bytes.
package formatter

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/kursadbilgin/notification-worker/internal/domain"
	"github.com/spf13/cast"
)

const (
	DefaultTitle = "Ticket update"
	ticketsPath  = "/tickets"
	ticketParam  = "ticket"
)

// RenderableJob is the typed projection of a job's untyped payload.
type RenderableJob struct {
	Title    string
	Body     string
	Priority string
	TicketID string
}

type Formatter struct {
	baseURL string
}

func New(baseURL string) *Formatter {
	return &Formatter{baseURL: strings.TrimSpace(baseURL)}
}

// Render projects job into a RenderableJob, applying the title and ticket id
// fallbacks.
func (f *Formatter) Render(job domain.NotificationJob) RenderableJob {
	title := payloadString(job.Payload, "title")
	if title == "" {
		title = strings.TrimSpace(job.EventType)
	}
	if title == "" {
		title = DefaultTitle
	}

	ticketID := ""
	if job.TicketID != nil {
		ticketID = strings.TrimSpace(*job.TicketID)
	}
	if ticketID == "" {
		ticketID = payloadString(job.Payload, "ticket_id")
	}

	return RenderableJob{
		Title:    title,
		Body:     payloadString(job.Payload, "body"),
		Priority: payloadString(job.Payload, "priority"),
		TicketID: ticketID,
	}
}

func (f *Formatter) Format(job domain.NotificationJob) string {
	r := f.Render(job)

	lines := []string{r.Title}
	if r.Priority != "" {
		lines = append(lines, "Priority: "+r.Priority)
	}
	if r.Body != "" {
		lines = append(lines, r.Body)
	}
	if r.TicketID != "" {
		lines = append(lines, "Ticket: "+r.TicketID)
		if link, ok := f.ticketLink(r.TicketID); ok {
			lines = append(lines, "Open: "+link)
		}
	}

	return domain.Truncate(strings.Join(lines, "\n"), domain.MaxMessageLength)
}

// ticketLink reports false for any unusable base URL instead of failing the
// whole message.
func (f *Formatter) ticketLink(ticketID string) (string, bool) {
	if f.baseURL == "" {
		return "", false
	}

	base, err := url.Parse(f.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", false
	}

	joined, err := url.JoinPath(f.baseURL, ticketsPath)
	if err != nil {
		return "", false
	}
	link, err := url.Parse(joined)
	if err != nil {
		return "", false
	}

	query := url.Values{}
	query.Set(ticketParam, ticketID)
	link.RawQuery = query.Encode()

	return link.String(), true
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		raw, jerr := json.Marshal(v)
		if jerr != nil {
			return ""
		}
		s = string(raw)
	}
	return strings.TrimSpace(s)
}
