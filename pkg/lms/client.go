// Package lms implements the HTTP client for the remote LMS backend: single
// authenticated requests with retries, JSON and form payload encodings, and a
// pagination aggregator for collection endpoints.
package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "lms",
		Name:      "request_duration_seconds",
		Help:      "Duration of LMS backend requests including retries",
	}, []string{"method"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "lms",
		Name:      "request_failures_total",
		Help:      "Number of LMS backend requests that ended in an error",
	}, []string{"method"})

	requestRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "lms",
		Name:      "request_retries_total",
		Help:      "Number of retry attempts issued against the LMS backend",
	})
)

// Config defines configuration options for the LMS client.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	PageSize     int
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       zerolog.Logger
}

// Client issues authenticated requests against the LMS backend. Transient
// failures (connection errors, timeouts, 5xx, 429) are retried with
// exponential backoff; other 4xx responses surface immediately as *APIError.
type Client struct {
	http     *retryablehttp.Client
	baseURL  string
	token    string
	pageSize int
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// Request describes a single call to the backend.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Body     map[string]any
	Encoding Encoding
}

// New builds an LMS client from the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("lms base url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("lms access token is required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = time.Second
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 4 * time.Second
	}

	logger := cfg.Logger.With().Str("component", "lms_client").Logger()

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = leveledLogger{logger}
	rc.CheckRetry = retryPolicy
	rc.Backoff = backoffWithHint
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, attempt int) {
		if attempt > 0 {
			requestRetries.Inc()
		}
	}

	return &Client{
		http:     rc,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		tracer:   otel.Tracer("github.com/noah-isme/gema-bulk-grader/pkg/lms"),
		logger:   logger,
	}, nil
}

// Send issues one request and returns the raw response body. The request is
// retried per the client's retry policy before an error is returned.
func (c *Client) Send(parent context.Context, req Request) ([]byte, error) {
	ctx, span := c.tracer.Start(parent, "lms.send", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
	))
	defer span.End()

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var (
		payload     []byte
		contentType string
		err         error
	)
	if req.Body != nil {
		switch req.Encoding {
		case EncodingForm:
			payload = []byte(EncodeForm(req.Body).Encode())
			contentType = "application/x-www-form-urlencoded"
		default:
			payload, err = json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("lms: encode %s %s body: %w", req.Method, req.Path, err)
			}
			contentType = "application/json"
		}
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, target, payload)
	if err != nil {
		return nil, fmt.Errorf("lms: build %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	requestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		requestFailures.WithLabelValues(req.Method).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("lms: %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestFailures.WithLabelValues(req.Method).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("lms: read %s %s response: %w", req.Method, req.Path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			Path:       req.Path,
			Message:    apiMessage(body),
		}
		requestFailures.WithLabelValues(req.Method).Inc()
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}

	return body, nil
}

// ListSubmissions fetches every submission for an assignment, following
// pagination until a short page signals the end of the collection.
func (c *Client) ListSubmissions(ctx context.Context, courseID, assignmentID string) ([]Submission, error) {
	path := fmt.Sprintf("/api/v1/courses/%s/assignments/%s/submissions", courseID, assignmentID)
	query := url.Values{"include[]": []string{"attachments"}}
	return fetchAllPages[Submission](ctx, c, path, query)
}

// ListDiscussionEntries fetches the complete flat entry list for a topic,
// including replies, with each entry carrying its author and parent pointer.
func (c *Client) ListDiscussionEntries(ctx context.Context, courseID, topicID string) ([]DiscussionEntry, error) {
	path := fmt.Sprintf("/api/v1/courses/%s/discussion_topics/%s/entries", courseID, topicID)
	return fetchAllPages[DiscussionEntry](ctx, c, path, url.Values{"flat": []string{"true"}})
}

// ListActiveStudents fetches the actively enrolled students of a course.
func (c *Client) ListActiveStudents(ctx context.Context, courseID string) ([]Student, error) {
	path := fmt.Sprintf("/api/v1/courses/%s/users", courseID)
	query := url.Values{
		"enrollment_type[]":  []string{"student"},
		"enrollment_state[]": []string{"active"},
	}
	return fetchAllPages[Student](ctx, c, path, query)
}

// GradeSubmission applies one grade mutation to a student's submission. A
// payload with rubric scores goes out form-encoded because the rubric
// endpoint rejects JSON bodies; flat grades are sent as JSON.
func (c *Client) GradeSubmission(ctx context.Context, courseID, assignmentID string, userID int64, grade GradePayload) error {
	body := map[string]any{
		"submission": map[string]any{"posted_grade": grade.PostedGrade},
	}
	if grade.Comment != "" {
		body["comment"] = map[string]any{"text_comment": grade.Comment}
	}

	encoding := EncodingJSON
	if len(grade.Rubric) > 0 {
		assessment := make(map[string]any, len(grade.Rubric))
		for id, score := range grade.Rubric {
			criterion := map[string]any{"points": score.Points}
			if score.RatingID != "" {
				criterion["rating_id"] = score.RatingID
			}
			if score.Comments != "" {
				criterion["comments"] = score.Comments
			}
			assessment[id] = criterion
		}
		body["rubric_assessment"] = assessment
		encoding = EncodingForm
	}

	path := fmt.Sprintf("/api/v1/courses/%s/assignments/%s/submissions/%d", courseID, assignmentID, userID)
	_, err := c.Send(ctx, Request{
		Method:   http.MethodPut,
		Path:     path,
		Body:     body,
		Encoding: encoding,
	})
	return err
}

// retryPolicy retries connection failures, timeouts, 5xx and 429. Any other
// 4xx is terminal for the request.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return true, nil
	}
	return false, nil
}

// backoffWithHint doubles the wait per attempt. For 429 responses the server
// hint wins when it asks for a longer pause than the schedule.
func backoffWithHint(minWait, maxWait time.Duration, attemptNum int, resp *http.Response) time.Duration {
	wait := minWait << attemptNum
	if wait > maxWait || wait <= 0 {
		wait = maxWait
	}
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if hint, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok && hint > wait {
			return hint
		}
	}
	return wait
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait, true
		}
	}
	return 0, false
}

// leveledLogger adapts zerolog to the retryablehttp logging interface.
type leveledLogger struct {
	log zerolog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.log.Error().Fields(logFields(keysAndValues)).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.log.Warn().Fields(logFields(keysAndValues)).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info().Fields(logFields(keysAndValues)).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(logFields(keysAndValues)).Msg(msg)
}

func logFields(keysAndValues []any) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
