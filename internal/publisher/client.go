// Package publisher buffers observability records for one hook invocation and
// flushes them to a Langfuse-compatible ingestion endpoint in a single bounded
// step at the end of the process.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/dotcommander/hooktrace/internal/models"
)

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 1 << 20

// Client owns the in-memory buffer for one invocation. It is not safe for
// concurrent use.
type Client struct {
	cfg     Config
	items   []item
	now     func() time.Time
	flushed bool
}

// New returns a client. A config without credentials yields a disabled client
// whose Flush discards the buffer.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults(), now: time.Now}
}

// Enabled reports whether Flush will contact the backend.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled()
}

// Pending returns the number of buffered records.
func (c *Client) Pending() int {
	return len(c.items)
}

// NewHandle returns a fresh remote trace id.
func (c *Client) NewHandle() string {
	return uuid.NewString()
}

// CreateRemoteTrace buffers a trace-create record and returns its handle. An
// empty rec.ID gets a fresh handle.
func (c *Client) CreateRemoteTrace(rec TraceRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = c.NewHandle()
	}
	ts := c.stamp(rec.Timestamp)
	c.push(TypeTraceCreate, ts, traceBody{
		ID:          rec.ID,
		Timestamp:   timestamp(ts),
		Name:        rec.Name,
		SessionID:   rec.SessionID,
		UserID:      rec.UserID,
		Release:     c.cfg.Release,
		Environment: c.cfg.Environment,
		Tags:        rec.Tags,
		Metadata:    rec.Metadata,
	})
	return rec.ID, nil
}

// AppendEvent buffers one event under handle.
func (c *Client) AppendEvent(handle string, ev Event) error {
	if handle == "" {
		return errors.New("append event: empty trace handle")
	}
	ts := c.stamp(ev.StartTime)
	c.push(TypeEventCreate, ts, eventBody{
		ID:            idOrNew(ev.ID),
		TraceID:       handle,
		Name:          ev.Name,
		StartTime:     timestamp(ts),
		Level:         ev.Level,
		StatusMessage: ev.StatusMessage,
		Input:         ev.Input,
		Output:        ev.Output,
		Metadata:      ev.Metadata,
		Environment:   c.cfg.Environment,
		Version:       c.cfg.Release,
	})
	return nil
}

// AppendScore buffers one numeric score under handle.
func (c *Client) AppendScore(handle string, s Score) error {
	if handle == "" {
		return errors.New("append score: empty trace handle")
	}
	if s.Name == "" {
		return errors.New("append score: empty name")
	}
	ts := c.stamp(s.Timestamp)
	c.push(TypeScoreCreate, ts, scoreBody{
		ID:          idOrNew(s.ID),
		TraceID:     handle,
		Name:        s.Name,
		Value:       s.Value,
		DataType:    "NUMERIC",
		Comment:     s.Comment,
		Environment: c.cfg.Environment,
	})
	return nil
}

// StableID derives a record id from a trace handle and a record name. The
// backend upserts by id, so records sent under a stable id replace each
// other instead of piling up.
func StableID(handle, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(handle+"\x00"+name)).String()
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (c *Client) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return c.now()
	}
	return t
}

func (c *Client) push(typ string, ts time.Time, body any) {
	c.items = append(c.items, item{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: timestamp(ts),
		Body:      body,
	})
}

// Flush sends every buffered record, bounded by the configured flush timeout.
// The buffer is discarded afterwards whatever the outcome. A second call is a
// no-op.
func (c *Client) Flush(ctx context.Context) (FlushResult, error) {
	items := c.items
	c.items = nil
	if c.flushed {
		return FlushResult{}, nil
	}
	c.flushed = true

	res := FlushResult{Items: len(items)}
	if len(items) == 0 {
		return res, nil
	}
	if !c.cfg.Enabled() {
		res.Skipped = true
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FlushTimeout)
	defer cancel()

	var firstErr error
	for start := 0; start < len(items); start += c.cfg.MaxBatchItems {
		end := min(start+c.cfg.MaxBatchItems, len(items))
		chunk := items[start:end]
		res.Batches++

		resp, err := c.sendWithRetry(ctx, chunk)
		if err != nil {
			res.Rejected += len(chunk)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		rejected := len(resp.Errors)
		res.Rejected += rejected
		res.Accepted += len(chunk) - rejected
	}

	if firstErr != nil {
		return res, firstErr
	}
	if res.Rejected > 0 {
		return res, &models.PublisherError{Endpoint: c.cfg.Endpoint(), StatusCode: http.StatusMultiStatus, Rejected: res.Rejected}
	}
	return res, nil
}

func (c *Client) sendWithRetry(ctx context.Context, chunk []item) (batchResponse, error) {
	payload, contentEncoding, err := c.encode(chunk)
	if err != nil {
		return batchResponse{}, &models.PublisherError{Endpoint: c.cfg.Endpoint(), Err: err}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = c.cfg.FlushTimeout
	b.RandomizationFactor = 0.1

	var out batchResponse
	err = backoff.Retry(func() error {
		resp, err := c.send(ctx, payload, contentEncoding)
		if err != nil {
			return err
		}
		out = resp
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		var perr *models.PublisherError
		if !errors.As(err, &perr) {
			err = &models.PublisherError{Endpoint: c.cfg.Endpoint(), Err: err}
		}
		return batchResponse{}, err
	}
	return out, nil
}

func (c *Client) encode(chunk []item) ([]byte, string, error) {
	body, err := json.Marshal(batchRequest{
		Batch: chunk,
		Metadata: map[string]any{
			"sdk_name":        "hooktrace",
			"sdk_version":     c.cfg.Release,
			"handler_version": models.HandlerVersion,
			"schema_version":  models.HookSchemaVersion,
			"batch_size":      len(chunk),
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("encode batch: %w", err)
	}
	if !c.cfg.Gzip {
		return body, "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, "", fmt.Errorf("compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress batch: %w", err)
	}
	return buf.Bytes(), "gzip", nil
}

// send performs one POST. Retryable failures (network, 429, 5xx) come back as
// plain errors; everything else is wrapped in backoff.Permanent.
func (c *Client) send(ctx context.Context, payload []byte, contentEncoding string) (batchResponse, error) {
	endpoint := c.cfg.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return batchResponse{}, backoff.Permanent(&models.PublisherError{Endpoint: endpoint, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hooktrace/"+c.cfg.Release)
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}
	req.SetBasicAuth(c.cfg.PublicKey, c.cfg.SecretKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		perr := &models.PublisherError{Endpoint: endpoint, Err: err}
		if ctx.Err() != nil {
			return batchResponse{}, backoff.Permanent(perr)
		}
		return batchResponse{}, perr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return batchResponse{}, &models.PublisherError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out batchResponse
		if len(bytes.TrimSpace(raw)) > 0 {
			// A 2xx body that does not parse still means the batch landed.
			_ = json.Unmarshal(raw, &out)
		}
		return out, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return batchResponse{}, &models.PublisherError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))}
	default:
		return batchResponse{}, backoff.Permanent(&models.PublisherError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: errors.New(snippet(raw))})
	}
}

func snippet(raw []byte) string {
	s := string(bytes.TrimSpace(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
