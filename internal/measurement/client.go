// Package measurement submits analytics events through the Measurement Protocol.
package measurement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/torosent/ga4sim/internal/clientmetrics"
	"github.com/torosent/ga4sim/internal/failure"
	"github.com/torosent/ga4sim/internal/httpclient"
	"github.com/torosent/ga4sim/internal/job"
	"github.com/torosent/ga4sim/internal/runner"
)

// Collection endpoints.
const (
	ProductionEndpoint = "https://www.google-analytics.com/mp/collect"
	DebugEndpoint      = "https://www.google-analytics.com/debug/mp/collect"
)

const (
	userAgent       = "ga4sim/1.0"
	maxResponseBody = 64 << 10
	opEmit          = "emit"
)

// Config holds the emitter settings.
type Config struct {
	MeasurementID string
	APISecret     string
	Debug         bool
	// BaseURL overrides the collection endpoint; empty selects production or
	// debug according to Debug.
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond paces submissions across all jobs; 0 disables pacing.
	RequestsPerSecond float64
}

// Report describes what one Emit call submitted.
type Report struct {
	Requests int
	Events   int
	// Messages are the validation messages returned by the debug endpoint.
	Messages []string
}

// Client posts event batches for bootstrapped or synthesized sessions.
type Client struct {
	httpClient *http.Client
	endpoint   string
	debug      bool
	limiter    *rate.Limiter
	metrics    *clientmetrics.ClientMetrics
	log        zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMetrics records transport counters into m.
func WithMetrics(m *clientmetrics.ClientMetrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// NewClient validates cfg and returns a ready client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.MeasurementID) == "" {
		return nil, failure.FatalConfig("measurement", errors.New("measurement id is required"))
	}
	if strings.TrimSpace(cfg.APISecret) == "" {
		return nil, failure.FatalConfig("measurement", errors.New("api secret is required"))
	}

	base := cfg.BaseURL
	if base == "" {
		base = ProductionEndpoint
		if cfg.Debug {
			base = DebugEndpoint
		}
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, failure.FatalConfig("measurement", fmt.Errorf("invalid endpoint %q", base))
	}
	q := u.Query()
	q.Set("measurement_id", cfg.MeasurementID)
	q.Set("api_secret", cfg.APISecret)
	u.RawQuery = q.Encode()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: httpclient.NewClient(timeout),
		endpoint:   u.String(),
		debug:      cfg.Debug,
		log:        zerolog.Nop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Emit submits events for session in requests of at most MaxEventsPerRequest
// events. Chunks are sent in order and the first failure stops the call.
// Errors are classified: transport failures, 429 and 5xx are transient; other
// statuses and debug validation messages are fatal.
func (c *Client) Emit(ctx context.Context, session job.Session, events []Event) (Report, error) {
	var report Report
	if session.ID == "" {
		return report, failure.FatalConfig(opEmit, errors.New("session has no client id"))
	}

	for _, chunk := range Chunk(events, MaxEventsPerRequest) {
		messages, err := c.send(ctx, session, chunk)
		report.Messages = append(report.Messages, messages...)
		if err != nil {
			return report, err
		}
		report.Requests++
		report.Events += len(chunk)
	}
	return report, nil
}

func (c *Client) send(ctx context.Context, session job.Session, events []Event) ([]string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", opEmit, err)
		}
	}

	body, err := BuildPayload(session, events).Encode()
	if err != nil {
		return nil, failure.FatalConfig(opEmit, fmt.Errorf("encode payload: %w", err))
	}
	req, err := httpclient.NewJSONRequest(ctx, c.endpoint, body, userAgent)
	if err != nil {
		return nil, failure.FatalConfig(opEmit, err)
	}

	if c.metrics != nil {
		c.metrics.RecordRequest(len(events), int64(len(body)))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordError()
		if failure.Classify(err) == failure.Transient {
			return nil, failure.TransientNetwork(opEmit, err)
		}
		return nil, fmt.Errorf("%s: %w", opEmit, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if c.metrics != nil {
		c.metrics.RecordResponse(resp.StatusCode, int64(len(respBody)))
	}
	if readErr != nil {
		c.recordError()
		return nil, failure.TransientNetwork(opEmit, fmt.Errorf("read response: %w", readErr))
	}

	if err := classifyStatus(resp.StatusCode, respBody); err != nil {
		c.recordError()
		return nil, err
	}

	if !c.debug {
		return nil, nil
	}
	messages := ValidationMessages(respBody)
	if len(messages) > 0 {
		c.recordError()
		c.log.Debug().Str("client_id", session.ID).Strs("messages", messages).Msg("payload rejected by validation")
		return messages, failure.FatalConfig(opEmit, fmt.Errorf("validation rejected payload: %s", strings.Join(messages, "; ")))
	}
	return nil, nil
}

func (c *Client) recordError() {
	if c.metrics != nil {
		c.metrics.IncrementErrors()
	}
}

func classifyStatus(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	httpErr := &runner.HTTPError{StatusCode: status, Body: errorSummary(body)}
	if status == http.StatusTooManyRequests || status >= 500 {
		return failure.TransientNetwork(opEmit, httpErr)
	}
	return failure.FatalConfig(opEmit, httpErr)
}

// errorSummary extracts a readable message from an error response body.
func errorSummary(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			return msg.String()
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// ValidationMessages returns the validation messages of a debug endpoint
// response as "code: description (field)" strings.
func ValidationMessages(body []byte) []string {
	if !gjson.ValidBytes(body) {
		return nil
	}
	var out []string
	gjson.GetBytes(body, "validationMessages").ForEach(func(_, m gjson.Result) bool {
		msg := m.Get("description").String()
		if code := m.Get("validationCode").String(); code != "" {
			msg = code + ": " + msg
		}
		if field := m.Get("fieldPath").String(); field != "" {
			msg += " (" + field + ")"
		}
		out = append(out, msg)
		return true
	})
	return out
}
