package render

import (
	"strings"
	"testing"
	"time"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{got: formatGB(15.5), want: "15.5 GB"},
		{got: formatGB(16), want: "16 GB"},
		{got: formatGB(0), want: "0 GB"},
		{got: formatGB(0.126), want: "0.13 GB"},
		{got: formatTime(time.Time{}), want: "-"},
		{got: formatTime(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)), want: "2024-03-01 12:30:00"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestRenderLogsEscapesMessages(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	type event struct {
		ReceivedAt  time.Time
		EventSource string
		EventUser   string
		Message     string
	}
	out, err := engine.Render("logs.tmpl", map[string]any{
		"Interval":      10,
		"Hostname":      "lab-e100",
		"AssetID":       1,
		"LogsAvailable": true,
		"Events":        []event{{Message: "<script>alert(1)</script>"}},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatal("event message was not escaped")
	}
	if !strings.Contains(out, `content="10"`) {
		t.Fatalf("refresh interval missing from:\n%s", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	engine, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := engine.Render("missing.tmpl", nil); err == nil {
		t.Fatal("Render(missing) error = nil")
	}
}
