// Package slack posts bulk job failure alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/target/bulkmail/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// JobURLPrefix, when set, turns the job id into a link (prefix + "/" + id).
	JobURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	retryLimit   int
	jobURLPrefix string
	client       *http.Client
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "bulkmail"
	}

	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     username,
		retryLimit:   max(cfg.RetryLimit, 0),
		jobURLPrefix: strings.TrimSpace(cfg.JobURLPrefix),
		client:       hc,
	}, nil
}

// SendJobFailure posts a formatted message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.PostJSON(ctx, notify.PostRequest{
		Client:     c.client,
		URL:        c.webhookURL,
		Body:       body,
		RetryLimit: c.retryLimit,
		Name:       "slack webhook",
	})
}

func (c *Client) formatMessage(payload notify.JobFailurePayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Bulk job failed*")
	if job := c.jobValue(payload.JobID); job != "" {
		text.WriteByte(' ')
		text.WriteString(job)
	}
	text.WriteByte('\n')

	severity := payload.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	appendField(&text, "Severity", severity)
	appendField(&text, "Kind", payload.Kind)
	appendField(&text, "Owner", escapeText(payload.OwnerID))
	appendField(&text, "Progress", progress(payload))
	if payload.ChargedCredits > 0 {
		appendField(&text, "Credits charged", strconv.FormatInt(payload.ChargedCredits, 10))
	}
	appendField(&text, "Error class", payload.ErrorClass)
	appendField(&text, "Error", escapeText(payload.Error))
	appendMetadata(&text, payload.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func progress(payload notify.JobFailurePayload) string {
	if payload.TotalItems <= 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", payload.ProcessedCount, payload.TotalItems)
}

func (c *Client) jobValue(jobID string) string {
	id := strings.TrimSpace(jobID)
	if id == "" {
		return ""
	}
	if link := c.jobLink(id); link != "" {
		return fmt.Sprintf("<%s|%s>", link, escapeText(id))
	}
	return "`" + escapeText(id) + "`"
}

func (c *Client) jobLink(jobID string) string {
	if c.jobURLPrefix == "" {
		return ""
	}
	u, err := url.Parse(c.jobURLPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), jobID)
	if err != nil {
		return ""
	}
	return link
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(value string) string {
	return slackEscaper.Replace(value)
}

func appendField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(escapeText(metadata[k]))
		text.WriteByte('\n')
	}
}
