//
//
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/khalid729/grp-stiffness-test-machine/internal/audit"
)

// Options configures a Client.
type Options struct {
	BaseURL        string
	CommandTimeout time.Duration
	QueryTimeout   time.Duration
	Limits         Limits
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client is the HTTP implementation of Gateway.
type Client struct {
	base           *url.URL
	http           *http.Client
	commandTimeout time.Duration
	queryTimeout   time.Duration
	limits         Limits
	logger         *slog.Logger
	auditLogger    AuditLogger
}

var _ Gateway = (*Client)(nil)

// NewClient creates a gateway client for the backend at opts.BaseURL.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q must be http or https", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		base:           base,
		http:           httpClient,
		commandTimeout: opts.CommandTimeout,
		queryTimeout:   opts.QueryTimeout,
		limits:         opts.Limits,
		logger:         logger.With("component", "gateway"),
	}, nil
}

// SetAuditLogger sets the audit logger.
func (c *Client) SetAuditLogger(logger AuditLogger) {
	c.auditLogger = logger
}

// ConnectionStatus returns the backend's PLC link state.
func (c *Client) ConnectionStatus(ctx context.Context) (*ConnectionStatus, error) {
	var st ConnectionStatus
	if err := c.query(ctx, "/api/status/connection", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Reconnect asks the backend to re-establish its PLC link.
func (c *Client) Reconnect(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "reconnect", http.MethodPost, "/api/status/reconnect", nil, nil)
}

// Parameters reads the current test parameters.
func (c *Client) Parameters(ctx context.Context) (*Parameters, error) {
	var p Parameters
	if err := c.query(ctx, "/api/parameters", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetParameters writes the set fields of update after checking them against
// the safety limits. Out-of-range updates never reach the backend.
func (c *Client) SetParameters(ctx context.Context, update ParametersUpdate) (Outcome, error) {
	ctx = audit.WithParams(ctx, update.auditParams())
	if err := ValidateParameters(update, c.limits); err != nil {
		c.logAudit(ctx, "setParameters", "", CodeOf(err), err.Error(), 0)
		return OutcomeFromError(err), err
	}
	return c.command(ctx, "setParameters", http.MethodPost, "/api/parameters", nil, update)
}

// Start starts the automated test.
func (c *Client) Start(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "start", http.MethodPost, "/api/command/start", nil, nil)
}

// Stop stops all movement.
func (c *Client) Stop(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "stop", http.MethodPost, "/api/command/stop", nil, nil)
}

// Home moves the crosshead to its home position.
func (c *Client) Home(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "home", http.MethodPost, "/api/command/home", nil, nil)
}

// EnableServo enables the servo drive.
func (c *Client) EnableServo(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "servoEnable", http.MethodPost, "/api/servo/enable", nil, nil)
}

// DisableServo disables the servo drive.
func (c *Client) DisableServo(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "servoDisable", http.MethodPost, "/api/servo/disable", nil, nil)
}

// ResetAlarm clears a latched servo alarm.
func (c *Client) ResetAlarm(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "servoReset", http.MethodPost, "/api/servo/reset", nil, nil)
}

// SetJogSpeed sets the jog velocity in mm/min.
func (c *Client) SetJogSpeed(ctx context.Context, velocity float64) (Outcome, error) {
	ctx = audit.WithParams(ctx, map[string]any{"velocity": velocity})
	if err := ValidateJogSpeed(velocity, c.limits); err != nil {
		c.logAudit(ctx, "jogSpeed", "", CodeOf(err), err.Error(), 0)
		return OutcomeFromError(err), err
	}
	body := struct {
		Velocity float64 `json:"velocity"`
	}{velocity}
	return c.command(ctx, "jogSpeed", http.MethodPost, "/api/jog/speed", nil, body)
}

// JogForward starts or stops forward jogging.
func (c *Client) JogForward(ctx context.Context, on bool) (Outcome, error) {
	return c.command(ctx, "jogForward", http.MethodPost, "/api/jog/forward/"+startStop(on), nil, nil)
}

// JogBackward starts or stops backward jogging.
func (c *Client) JogBackward(ctx context.Context, on bool) (Outcome, error) {
	return c.command(ctx, "jogBackward", http.MethodPost, "/api/jog/backward/"+startStop(on), nil, nil)
}

// LockUpper locks the upper clamp.
func (c *Client) LockUpper(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "lockUpper", http.MethodPost, "/api/clamp/upper/lock", nil, nil)
}

// LockLower locks the lower clamp.
func (c *Client) LockLower(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "lockLower", http.MethodPost, "/api/clamp/lower/lock", nil, nil)
}

// UnlockAll releases both clamps.
func (c *Client) UnlockAll(ctx context.Context) (Outcome, error) {
	return c.command(ctx, "unlockAll", http.MethodPost, "/api/clamp/unlock", nil, nil)
}

// Mode returns the control mode.
func (c *Client) Mode(ctx context.Context) (*Mode, error) {
	var m Mode
	if err := c.query(ctx, "/api/mode", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SetRemoteMode switches between remote (dashboard) and local (push
// button) control.
func (c *Client) SetRemoteMode(ctx context.Context, remote bool) (Outcome, error) {
	if remote {
		return c.command(ctx, "modeRemote", http.MethodPost, "/api/mode/remote", nil, nil)
	}
	return c.command(ctx, "modeLocal", http.MethodPost, "/api/mode/local", nil, nil)
}

// Tests returns one page of the test history, newest first.
func (c *Client) Tests(ctx context.Context, page, pageSize int) (*TestsPage, error) {
	if page < 1 || pageSize < 1 || pageSize > 100 {
		return nil, fmt.Errorf("%w: page %d size %d", ErrInvalidRange, page, pageSize)
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var p TestsPage
	if err := c.query(ctx, "/api/tests", q, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Test returns one test including its data points.
func (c *Client) Test(ctx context.Context, id int64) (*TestRecord, error) {
	var rec TestRecord
	if err := c.query(ctx, "/api/tests/"+strconv.FormatInt(id, 10), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteTest removes a stored test.
func (c *Client) DeleteTest(ctx context.Context, id int64) (Outcome, error) {
	ctx = audit.WithParams(ctx, map[string]any{"id": id})
	return c.command(ctx, "deleteTest", http.MethodDelete, "/api/tests/"+strconv.FormatInt(id, 10), nil, nil)
}

// Alarms returns one page of the alarm history.
func (c *Client) Alarms(ctx context.Context, activeOnly bool, page int) (*AlarmsPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page %d", ErrInvalidRange, page)
	}
	q := url.Values{}
	q.Set("active_only", strconv.FormatBool(activeOnly))
	q.Set("page", strconv.Itoa(page))

	var p AlarmsPage
	if err := c.query(ctx, "/api/alarms", q, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AcknowledgeAlarm acknowledges one alarm. ackBy may be empty.
func (c *Client) AcknowledgeAlarm(ctx context.Context, id int64, ackBy string) (Outcome, error) {
	ctx = audit.WithParams(ctx, map[string]any{"id": id, "ack_by": ackBy})
	return c.command(ctx, "ackAlarm", http.MethodPost,
		"/api/alarms/"+strconv.FormatInt(id, 10)+"/acknowledge", ackQuery(ackBy), nil)
}

// AcknowledgeAllAlarms acknowledges every active alarm. ackBy may be empty.
func (c *Client) AcknowledgeAllAlarms(ctx context.Context, ackBy string) (Outcome, error) {
	ctx = audit.WithParams(ctx, map[string]any{"ack_by": ackBy})
	return c.command(ctx, "ackAllAlarms", http.MethodPost, "/api/alarms/acknowledge-all", ackQuery(ackBy), nil)
}

// PDFReportURL returns the download URL of a test's PDF report.
func (c *Client) PDFReportURL(testID int64) string {
	return c.endpoint("/api/report/pdf/"+strconv.FormatInt(testID, 10), nil)
}

// ExcelExportURL returns the spreadsheet export URL for a date range.
// Empty bounds are omitted.
func (c *Client) ExcelExportURL(startDate, endDate string) string {
	q := url.Values{}
	if startDate != "" {
		q.Set("start_date", startDate)
	}
	if endDate != "" {
		q.Set("end_date", endDate)
	}
	return c.endpoint("/api/report/excel", q)
}

// command performs a mutating request and decodes its Outcome.
func (c *Client) command(ctx context.Context, action, method, path string, q url.Values, body any) (Outcome, error) {
	if c.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	start := time.Now()

	var out Outcome
	err := c.do(ctx, requestID, method, path, q, body, &out)
	latency := time.Since(start)
	if err != nil {
		out = OutcomeFromError(err)
	}

	code := CodeOf(err)
	if err == nil && !out.Success {
		code = CodeRejected
	}
	c.logAudit(ctx, action, requestID, code, out.Message, latency)
	switch {
	case err != nil:
		c.logger.Warn("command failed", "action", action, "request_id", requestID, "error", err)
	case !out.Success:
		c.logger.Warn("command rejected", "action", action, "request_id", requestID, "message", out.Message)
	default:
		c.logger.Info("command accepted", "action", action, "request_id", requestID, "message", out.Message, "latency", latency)
	}
	return out, err
}

// query performs a read-only request.
func (c *Client) query(ctx context.Context, path string, q url.Values, out any) error {
	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}
	return c.do(ctx, uuid.NewString(), http.MethodGet, path, q, nil, out)
}

func (c *Client) do(ctx context.Context, requestID, method, path string, q url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrInternal, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, q), reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrInternal, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NormalizeStatus(resp.StatusCode, errorDetail(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrInternal, path, err)
	}
	return nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = ""
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) logAudit(ctx context.Context, action, requestID, code, message string, latency time.Duration) {
	if c.auditLogger != nil {
		c.auditLogger.LogAction(ctx, action, requestID, code, message, latency)
	}
}

// errorDetail extracts {"detail": "..."} from an error body, falling back to
// the trimmed body text.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func ackQuery(ackBy string) url.Values {
	if ackBy == "" {
		return nil
	}
	return url.Values{"ack_by": {ackBy}}
}

func startStop(on bool) string {
	if on {
		return "start"
	}
	return "stop"
}

// IsRejected reports whether err came from the backend refusing a request
// rather than from the transport.
func IsRejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
