package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSlackNotifier_NoAlerts(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	if err := n.Notify(context.Background(), nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := n.Notify(context.Background(), []Alert{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called {
		t.Fatal("expected no HTTP request for empty alerts")
	}
}

func TestSlackNotifier_SendsAlerts(t *testing.T) {
	var receivedBody []byte
	var receivedContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	at := time.Date(2026, 3, 20, 10, 30, 0, 0, time.UTC)
	alerts := []Alert{
		{
			ID:          "overdue-t-1",
			Condition:   "task_overdue",
			Severity:    SeverityHigh,
			Message:     "Acme Solar / Permit is overdue by 3 days",
			TaskID:      "t-1",
			TriggeredAt: at,
		},
		{
			ID:          "store-rollbacks",
			Condition:   "store_rollbacks_high",
			Severity:    SeverityMedium,
			Message:     "6 writes rolled back in the last 24 hours",
			TriggeredAt: at,
		},
	}

	if err := NewSlackNotifier(srv.URL).Notify(context.Background(), alerts); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if receivedContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", receivedContentType)
	}

	var msg slackMessage
	if err := json.Unmarshal(receivedBody, &msg); err != nil {
		t.Fatalf("unmarshaling request body: %v", err)
	}

	// header + summary, then divider + section per severity present
	wantTypes := []string{"header", "section", "divider", "section", "divider", "section"}
	if len(msg.Blocks) != len(wantTypes) {
		t.Fatalf("expected %d blocks, got %d", len(wantTypes), len(msg.Blocks))
	}
	for i, want := range wantTypes {
		if msg.Blocks[i].Type != want {
			t.Errorf("block %d type = %s, want %s", i, msg.Blocks[i].Type, want)
		}
	}
	if msg.Blocks[0].Text == nil || msg.Blocks[0].Text.Text != "opsb SLA Alert Summary" {
		t.Errorf("unexpected header text %v", msg.Blocks[0].Text)
	}
	if msg.Text != "2 SLA alert(s): 1 high, 1 medium" {
		t.Errorf("summary = %q", msg.Text)
	}

	high := msg.Blocks[3].Text.Text
	if !strings.HasPrefix(high, "\U0001f534 *HIGH*") {
		t.Errorf("high section = %q", high)
	}
	if !strings.Contains(high, "overdue by 3 days") || !strings.Contains(high, "`t-1`") {
		t.Errorf("high section = %q", high)
	}
	medium := msg.Blocks[5].Text.Text
	if !strings.Contains(medium, "rolled back") || strings.Contains(medium, "`") {
		t.Errorf("medium section = %q", medium)
	}
	if !strings.Contains(string(receivedBody), "2026-03-20 10:30 UTC") {
		t.Error("expected body to contain triggered time")
	}
}

func TestBuildDigest_TruncatesLargeGroups(t *testing.T) {
	at := time.Date(2026, 3, 20, 10, 30, 0, 0, time.UTC)
	var alerts []Alert
	for i := range maxAlertsPerGroup + 5 {
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("overdue-%d", i),
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("task %d is overdue", i),
			TriggeredAt: at,
		})
	}

	msg := buildDigest(alerts)
	if len(msg.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(msg.Blocks))
	}
	text := msg.Blocks[3].Text.Text
	if got := strings.Count(text, "\n• "); got != maxAlertsPerGroup {
		t.Errorf("listed %d alerts, want %d", got, maxAlertsPerGroup)
	}
	if !strings.HasSuffix(text, "_and 5 more_") {
		t.Errorf("expected truncation note, got %q", text[len(text)-40:])
	}
}

func TestSlackNotifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	alerts := []Alert{{ID: "a", Severity: SeverityHigh, Message: "test alert", TriggeredAt: time.Now().UTC()}}
	err := NewSlackNotifier(srv.URL).Notify(context.Background(), alerts)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("expected error to contain status code 500, got: %s", err.Error())
	}
}

func TestSlackNotifier_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	alerts := []Alert{{ID: "a", Severity: SeverityLow, Message: "m", TriggeredAt: time.Now().UTC()}}
	if err := NewSlackNotifier(srv.URL).Notify(ctx, alerts); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSlackNotifier_SeverityEmojis(t *testing.T) {
	tests := []struct {
		severity AlertSeverity
		emoji    string
	}{
		{SeverityHigh, "\U0001f534"},
		{SeverityMedium, "\U0001f7e1"},
		{SeverityLow, "\U0001f535"},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			var receivedBody []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedBody, _ = io.ReadAll(r.Body)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			alerts := []Alert{{ID: "emoji", Severity: tt.severity, Message: "test message", TriggeredAt: time.Now().UTC()}}
			if err := NewSlackNotifier(srv.URL).Notify(context.Background(), alerts); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(string(receivedBody), tt.emoji) {
				t.Errorf("expected body to contain emoji %s for severity %s", tt.emoji, tt.severity)
			}
		})
	}
}
