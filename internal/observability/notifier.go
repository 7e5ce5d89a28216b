package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// maxAlertsPerGroup caps the lines listed under each severity heading.
// Slack rejects section text longer than 3000 characters.
const maxAlertsPerGroup = 20

// slackNotifier posts an SLA digest to a Slack incoming webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that sends alerts to the given Slack webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts one digest covering every alert. Nothing is sent for an
// empty slice.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildDigest(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildDigest renders a header, a count summary and one section per
// severity present, highest first.
func buildDigest(alerts []Alert) slackMessage {
	groups := make(map[AlertSeverity][]Alert)
	for _, a := range alerts {
		groups[a.Severity] = append(groups[a.Severity], a)
	}

	var counts []string
	for _, sev := range []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow} {
		if n := len(groups[sev]); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	summary := fmt.Sprintf("%d SLA alert(s): %s", len(alerts), strings.Join(counts, ", "))

	msg := slackMessage{
		Text: summary,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: "opsb SLA Alert Summary"}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: summary}},
		},
	}

	for _, sev := range []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow} {
		group := groups[sev]
		if len(group) == 0 {
			continue
		}
		msg.Blocks = append(msg.Blocks,
			slackBlock{Type: "divider"},
			slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: severitySection(sev, group)}},
		)
	}
	return msg
}

func severitySection(sev AlertSeverity, group []Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", severityEmoji(sev), strings.ToUpper(string(sev)))
	for i, a := range group {
		if i == maxAlertsPerGroup {
			fmt.Fprintf(&b, "\n_and %d more_", len(group)-maxAlertsPerGroup)
			break
		}
		fmt.Fprintf(&b, "\n• %s", a.Message)
		if a.TaskID != "" {
			fmt.Fprintf(&b, " `%s`", a.TaskID)
		}
		fmt.Fprintf(&b, " _%s_", a.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return b.String()
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
