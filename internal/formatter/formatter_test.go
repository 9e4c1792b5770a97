package formatter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kursadbilgin/notification-worker/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestFormatterFormat(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		baseURL string
		job     domain.NotificationJob
		want    string
	}{
		{
			name:    "all fields with deep link",
			baseURL: "https://helpdesk.example.com",
			job: domain.NotificationJob{
				EventType: "ticket.created",
				TicketID:  strPtr("T-42"),
				Payload: map[string]any{
					"title":    "Disk full on db-1",
					"priority": "high",
					"body":     "Usage at 98%",
				},
			},
			want: "Disk full on db-1\nPriority: high\nUsage at 98%\nTicket: T-42\nOpen: https://helpdesk.example.com/tickets?ticket=T-42",
		},
		{
			name: "title falls back to event type",
			job: domain.NotificationJob{
				EventType: "ticket.assigned",
				Payload:   map[string]any{"title": "   "},
			},
			want: "ticket.assigned",
		},
		{
			name: "default title",
			job:  domain.NotificationJob{Payload: map[string]any{}},
			want: DefaultTitle,
		},
		{
			name: "ticket id from payload",
			job: domain.NotificationJob{
				Payload: map[string]any{"title": "Reply", "ticket_id": "T-7"},
			},
			want: "Reply\nTicket: T-7",
		},
		{
			name:    "numeric payload values",
			baseURL: "https://helpdesk.example.com/app/",
			job: domain.NotificationJob{
				Payload: map[string]any{"title": "Escalated", "priority": 2, "ticket_id": float64(1001)},
			},
			want: "Escalated\nPriority: 2\nTicket: 1001\nOpen: https://helpdesk.example.com/app/tickets?ticket=1001",
		},
		{
			name: "structured body is json encoded",
			job: domain.NotificationJob{
				Payload: map[string]any{"title": "Sync", "body": map[string]any{"rows": 3}},
			},
			want: "Sync\n{\"rows\":3}",
		},
		{
			name:    "link needs a ticket id",
			baseURL: "https://helpdesk.example.com",
			job:     domain.NotificationJob{Payload: map[string]any{"title": "No ticket"}},
			want:    "No ticket",
		},
		{
			name:    "ticket id is query escaped",
			baseURL: "https://helpdesk.example.com",
			job:     domain.NotificationJob{TicketID: strPtr("A&B 1")},
			want:    DefaultTitle + "\nTicket: A&B 1\nOpen: https://helpdesk.example.com/tickets?ticket=A%26B+1",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := New(tc.baseURL).Format(tc.job)
			if got != tc.want {
				t.Fatalf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatterMalformedBaseURL(t *testing.T) {
	t.Parallel()

	job := domain.NotificationJob{
		TicketID: strPtr("T-1"),
		Payload:  map[string]any{"title": "Outage"},
	}

	for _, baseURL := range []string{"://missing-scheme", "not a url", "/relative/path", "https://"} {
		got := New(baseURL).Format(job)
		if got != "Outage\nTicket: T-1" {
			t.Fatalf("Format() with base %q = %q, want link line omitted", baseURL, got)
		}
	}
}

func TestFormatterIsIdempotent(t *testing.T) {
	t.Parallel()

	f := New("https://helpdesk.example.com")
	job := domain.NotificationJob{
		EventType: "ticket.updated",
		TicketID:  strPtr("T-9"),
		Payload:   map[string]any{"body": "Customer replied", "priority": "low", "extra": []any{1, "x"}},
	}

	first := f.Format(job)
	second := f.Format(job)
	if first != second {
		t.Fatalf("Format() not idempotent: %q != %q", first, second)
	}
}

func TestFormatterTruncation(t *testing.T) {
	t.Parallel()

	// "T" + "\n" + body
	exact := domain.NotificationJob{Payload: map[string]any{
		"title": "T",
		"body":  strings.Repeat("é", domain.MaxMessageLength-2),
	}}
	got := New("").Format(exact)
	if n := utf8.RuneCountInString(got); n != domain.MaxMessageLength {
		t.Fatalf("exact-length message has %d runes, want %d", n, domain.MaxMessageLength)
	}
	if got != "T\n"+strings.Repeat("é", domain.MaxMessageLength-2) {
		t.Fatalf("exact-length message was modified")
	}

	over := domain.NotificationJob{Payload: map[string]any{
		"title": "T",
		"body":  strings.Repeat("界", domain.MaxMessageLength),
	}}
	got = New("").Format(over)
	if n := utf8.RuneCountInString(got); n != domain.MaxMessageLength {
		t.Fatalf("oversized message has %d runes, want %d", n, domain.MaxMessageLength)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid UTF-8")
	}
}

func TestFormatterRender(t *testing.T) {
	t.Parallel()

	r := New("").Render(domain.NotificationJob{
		TicketID: strPtr("  "),
		Payload:  map[string]any{"ticket_id": " T-3 ", "priority": nil, "body": true},
	})

	want := RenderableJob{Title: DefaultTitle, Body: "true", TicketID: "T-3"}
	if r != want {
		t.Fatalf("Render() = %+v, want %+v", r, want)
	}
}
