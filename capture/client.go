// Package capture fetches raw statistical payloads from the Eurostat
// dissemination API and stages them as immutable bronze blobs.
package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/andre-dussing/european-public-data-pipeline/blobstore"
	"github.com/andre-dussing/european-public-data-pipeline/config"
)

const (
	retryWaitMin = 1 * time.Second
	retryWaitMax = 30 * time.Second
)

// IngestionError reports a transient acquisition failure: network
// errors, timeouts, or non-success status codes after retries are
// exhausted. The run fails without touching later stages.
type IngestionError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *IngestionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ingestion failed: %s returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("ingestion failed: %s: %v", e.URL, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// Envelope wraps a captured payload with acquisition lineage. Stored
// verbatim as the bronze blob.
type Envelope struct {
	Meta struct {
		Dataset       string `json:"dataset"`
		Geo           string `json:"geo"`
		Coicop        string `json:"coicop"`
		Unit          string `json:"unit,omitempty"`
		SourceURL     string `json:"source_url"`
		FetchedAt     string `json:"fetched_at_utc"`
		PipelineStage string `json:"pipeline_stage"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// Capturer fetches one dataset slice and stages it in the blob store
type Capturer struct {
	cfg    *config.Config
	store  blobstore.Store
	client *retryablehttp.Client
	logger *zap.Logger
}

func NewCapturer(cfg *config.Config, store blobstore.Store, logger *zap.Logger) *Capturer {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Eurostat.MaxRetries
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.HTTPClient.Timeout = cfg.FetchTimeout()
	client.Logger = retryLogger{logger.Sugar()}
	// Surface the final response after retries so status codes reach
	// the error taxonomy instead of a generic giving-up error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Capturer{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logger,
	}
}

// requestURL builds the dissemination API query. The unit filter is
// optional; some datasets reject it and the capturer retries without.
func (c *Capturer) requestURL(withUnit bool) string {
	params := url.Values{}
	params.Set("format", "JSON")
	params.Set("lang", "EN")
	params.Set("geo", c.cfg.Eurostat.Geo)
	params.Set("coicop", c.cfg.Eurostat.Coicop)
	if withUnit && c.cfg.Eurostat.Unit != "" {
		params.Set("unit", c.cfg.Eurostat.Unit)
	}
	return fmt.Sprintf("%s/%s?%s", c.cfg.Eurostat.BaseURL, c.cfg.Eurostat.Dataset, params.Encode())
}

// fetch performs one request with bounded retries
func (c *Capturer) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &IngestionError{URL: reqURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &IngestionError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &IngestionError{URL: reqURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &IngestionError{URL: reqURL, Err: err}
	}
	return body, nil
}

// Capture fetches the configured slice and stages the envelope as a
// bronze blob. Returns the stored object path. A rejected unit filter
// is retried once without the filter before giving up.
func (c *Capturer) Capture(ctx context.Context) (string, error) {
	reqURL := c.requestURL(true)
	c.logger.Info("Fetching dataset",
		zap.String("dataset", c.cfg.Eurostat.Dataset),
		zap.String("url", reqURL))

	body, err := c.fetch(ctx, reqURL)
	if err != nil {
		var ingErr *IngestionError
		if c.cfg.Eurostat.Unit != "" && asIngestionRejection(err, &ingErr) {
			c.logger.Warn("Unit filter rejected, retrying without it",
				zap.String("unit", c.cfg.Eurostat.Unit),
				zap.Int("status", ingErr.StatusCode))
			reqURL = c.requestURL(false)
			body, err = c.fetch(ctx, reqURL)
		}
		if err != nil {
			return "", err
		}
	}

	fetchedAt := time.Now().UTC()
	envelope := Envelope{Data: body}
	envelope.Meta.Dataset = c.cfg.Eurostat.Dataset
	envelope.Meta.Geo = c.cfg.Eurostat.Geo
	envelope.Meta.Coicop = c.cfg.Eurostat.Coicop
	envelope.Meta.Unit = c.cfg.Eurostat.Unit
	envelope.Meta.SourceURL = reqURL
	envelope.Meta.FetchedAt = fetchedAt.Format(time.RFC3339)
	envelope.Meta.PipelineStage = "raw"

	blob, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal capture envelope: %w", err)
	}

	path := c.cfg.RawPrefix() + "ts=" + fetchedAt.Format("20060102_150405") + ".json"
	if err := c.store.Upload(ctx, path, blob, "application/json"); err != nil {
		return "", fmt.Errorf("failed to stage raw blob: %w", err)
	}

	c.logger.Info("Staged raw payload",
		zap.String("path", path),
		zap.Int("bytes", len(blob)))
	return path, nil
}

// asIngestionRejection reports whether err is a client-side rejection
// (HTTP 4xx), the signature of an unsupported query parameter
func asIngestionRejection(err error, target **IngestionError) bool {
	ingErr, ok := err.(*IngestionError)
	if !ok {
		return false
	}
	*target = ingErr
	return ingErr.StatusCode >= 400 && ingErr.StatusCode < 500
}

// retryLogger adapts zap to the retryable client's leveled logger
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
