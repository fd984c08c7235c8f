// Package analysis is the HTTP adapter for the external frame analysis and
// cross-modal verification service.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/sentinel-fusion/internal/models"
)

var (
	// ErrTransport covers an unreachable service, timeouts and bad responses.
	ErrTransport = errors.New("analysis transport failure")
	// ErrRateLimited is returned when the service answers 429.
	ErrRateLimited = errors.New("analysis rate limited")
)

const maxErrorBody = 4 << 10

type Client struct {
	URL  string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		URL:  baseURL,
		http: &http.Client{Timeout: timeout},
	}
}

// AnalyzeFrame sends one frame with its context to /analyze.
func (c *Client) AnalyzeFrame(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := c.post(ctx, "/analyze", req.Frame, req, &result); err != nil {
		return nil, err
	}
	result.Confidence = models.ClampConfidence(result.Confidence)
	if !result.ThreatLevel.Valid() {
		result.ThreatLevel = models.SeverityLow
	}
	return &result, nil
}

// VerifyCrossModal asks whether frame corroborates a non-visual trigger.
func (c *Client) VerifyCrossModal(ctx context.Context, triggerLabel string, frame []byte) (*models.Verification, error) {
	body := struct {
		TriggerLabel string `json:"trigger_label"`
	}{TriggerLabel: triggerLabel}

	var v models.Verification
	if err := c.post(ctx, "/verify", frame, body, &v); err != nil {
		return nil, err
	}
	v.Confidence = models.ClampConfidence(v.Confidence)
	return &v, nil
}

// post sends a multipart form with a JPEG "frame" part and a JSON "request"
// part, then decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, frame []byte, request any, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="frame"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return fmt.Errorf("write image data: %w", err)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := writer.WriteField("request", string(payload)); err != nil {
		return fmt.Errorf("write request field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+path, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: bad status: %s, error: %s", ErrTransport, resp.Status, bodyBytes)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	return nil
}
