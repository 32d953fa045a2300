package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/dongkoony/aws-cost-slack-reporter/internal/report"
)

// Result is the delivery outcome for one report.
type Result struct {
	Delivered     bool
	AckID         string
	FailureReason string
}

// Notifier delivers a composed report to the destination channel.
type Notifier interface {
	Deliver(ctx context.Context, msg report.Message) (Result, error)
}

// SlackOptions parameterise the Slack notifier.
type SlackOptions struct {
	BotToken   string
	Channel    string
	APIBase    string
	Timeout    time.Duration
	MaxRetries int
}

// Slack delivers reports through the Slack Web API: chat.postMessage for the
// text blocks, then the two-step external upload for the chart image.
type Slack struct {
	opts    SlackOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSlack constructs a Slack notifier.
func NewSlack(opts SlackOptions, logger zerolog.Logger) *Slack {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.APIBase, "/")
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}

	return &Slack{
		opts:    opts,
		logger:  logger.With().Str("component", "slack_notifier").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Deliver posts the report text and, when present, uploads the chart bound to
// the same channel. Transient failures are retried with bounded backoff; a
// failed chart upload degrades to a text-only delivery rather than failing
// the run, since the text body already carries the numbers.
func (s *Slack) Deliver(ctx context.Context, msg report.Message) (Result, error) {
	if s.opts.BotToken == "" {
		return Result{FailureReason: "bot token not configured"}, fmt.Errorf("slack bot token not configured")
	}
	if s.opts.Channel == "" {
		return Result{FailureReason: "channel not configured"}, fmt.Errorf("slack channel not configured")
	}

	ack, err := s.postMessage(ctx, msg)
	if err != nil {
		return Result{FailureReason: err.Error()}, fmt.Errorf("post report message: %w", err)
	}

	if msg.Chart != nil {
		if err := s.uploadChart(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Int("bytes", len(msg.Chart.PNG)).Msg("chart upload failed; report delivered without image")
		}
	}

	s.logger.Info().Str("channel", s.opts.Channel).Str("ts", ack).Msg("report delivered")
	return Result{Delivered: true, AckID: ack}, nil
}

func (s *Slack) postMessage(ctx context.Context, msg report.Message) (string, error) {
	payload := map[string]any{
		"channel": s.opts.Channel,
		"text":    msg.Headline,
		"blocks":  slackBlocks(msg.Blocks),
	}

	var ts string
	operation := func() error {
		body, err := s.callJSON(ctx, "chat.postMessage", payload)
		if err != nil {
			return err
		}
		var decoded struct {
			TS string `json:"ts"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("parse chat.postMessage response: %w", err))
		}
		ts = decoded.TS
		return nil
	}

	if err := backoff.Retry(operation, s.retryPolicy(ctx)); err != nil {
		return "", err
	}
	return ts, nil
}

func (s *Slack) uploadChart(ctx context.Context, msg report.Message) error {
	filename := fmt.Sprintf("aws_cost_chart_%s.png", time.Now().UTC().Format("20060102"))
	if len(msg.Chart.Series) > 0 {
		filename = fmt.Sprintf("aws_cost_chart_%s.png", msg.Chart.Series[len(msg.Chart.Series)-1].Date.Format("20060102"))
	}

	operation := func() error {
		uploadURL, fileID, err := s.getUploadURL(ctx, filename, len(msg.Chart.PNG))
		if err != nil {
			return err
		}
		if err := s.putFile(ctx, uploadURL, msg.Chart.PNG); err != nil {
			return err
		}
		return s.completeUpload(ctx, fileID, filename)
	}

	return backoff.Retry(operation, s.retryPolicy(ctx))
}

func (s *Slack) getUploadURL(ctx context.Context, filename string, length int) (string, string, error) {
	params := url.Values{}
	params.Set("filename", filename)
	params.Set("length", strconv.Itoa(length))

	body, err := s.callForm(ctx, "files.getUploadURLExternal", params)
	if err != nil {
		return "", "", err
	}

	var decoded struct {
		UploadURL string `json:"upload_url"`
		FileID    string `json:"file_id"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", "", backoff.Permanent(fmt.Errorf("parse upload url response: %w", err))
	}
	if decoded.UploadURL == "" || decoded.FileID == "" {
		return "", "", backoff.Permanent(fmt.Errorf("upload url response missing fields"))
	}
	return decoded.UploadURL, decoded.FileID, nil
}

func (s *Slack) putFile(ctx context.Context, uploadURL string, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(content))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("file upload returned %d", resp.StatusCode)
	}
	return nil
}

func (s *Slack) completeUpload(ctx context.Context, fileID, filename string) error {
	payload := map[string]any{
		"files":      []map[string]string{{"id": fileID, "title": filename}},
		"channel_id": s.opts.Channel,
	}
	_, err := s.callJSON(ctx, "files.completeUploadExternal", payload)
	return err
}

// AuthTest probes token validity via auth.test, for the check command.
func (s *Slack) AuthTest(ctx context.Context) (string, error) {
	body, err := s.callForm(ctx, "auth.test", url.Values{})
	if err != nil {
		return "", err
	}
	var decoded struct {
		User string `json:"user"`
		Team string `json:"team"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("parse auth.test response: %w", err)
	}
	return fmt.Sprintf("%s (%s)", decoded.User, decoded.Team), nil
}

func (s *Slack) callJSON(ctx context.Context, method string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal %s payload: %w", method, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.opts.BotToken)

	return s.do(req, method)
}

func (s *Slack) callForm(ctx context.Context, method string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.opts.BotToken)

	return s.do(req, method)
}

func (s *Slack) do(req *http.Request, method string) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("slack %s returned %d", method, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backoff.Permanent(fmt.Errorf("slack %s returned %d", method, resp.StatusCode))
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse slack %s response: %w", method, err))
	}
	if !envelope.OK {
		apiErr := fmt.Errorf("slack %s error: %s", method, envelope.Error)
		if isPermanentSlackError(envelope.Error) {
			return nil, backoff.Permanent(apiErr)
		}
		return nil, apiErr
	}

	return payload, nil
}

// isPermanentSlackError flags error codes that no retry can fix.
func isPermanentSlackError(code string) bool {
	switch code {
	case "invalid_auth", "account_inactive", "token_revoked", "token_expired",
		"channel_not_found", "not_in_channel", "is_archived", "msg_too_long",
		"invalid_blocks", "no_permission", "missing_scope":
		return true
	}
	return false
}

func (s *Slack) retryPolicy(ctx context.Context) backoff.BackOffContext {
	max := uint64(3)
	if s.opts.MaxRetries > 0 {
		max = uint64(s.opts.MaxRetries)
	}
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), max), ctx)
}

// slackBlocks converts composed report blocks into Block Kit payload maps.
func slackBlocks(blocks []report.Block) []map[string]any {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case report.BlockHeader:
			out = append(out, map[string]any{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": b.Text, "emoji": true},
			})
		case report.BlockDivider:
			out = append(out, map[string]any{"type": "divider"})
		case report.BlockContext:
			out = append(out, map[string]any{
				"type":     "context",
				"elements": []map[string]any{{"type": "mrkdwn", "text": b.Text}},
			})
		default:
			section := map[string]any{"type": "section"}
			if b.Text != "" {
				section["text"] = map[string]any{"type": "mrkdwn", "text": b.Text}
			}
			if len(b.Fields) > 0 {
				fields := make([]map[string]any, 0, len(b.Fields))
				for _, f := range b.Fields {
					fields = append(fields, map[string]any{"type": "mrkdwn", "text": f})
				}
				section["fields"] = fields
			}
			out = append(out, section)
		}
	}
	return out
}

var _ Notifier = (*Slack)(nil)
