// Package prediction calls the per-disease screening model endpoints. Each
// disease category (DR, AMD, RVO, Glaucoma) is served by its own HTTP model
// server that accepts a fundus image and returns a label with per-class
// confidences.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrUnknownCategory is returned when no endpoint is configured for the
// requested disease category.
var ErrUnknownCategory = errors.New("no prediction endpoint for category")

// Result is the model server's verdict for a single image.
type Result struct {
	Category    string             `json:"category"`
	Label       string             `json:"label"`
	Confidences map[string]float64 `json:"confidences,omitempty"`
}

// Client sends images to the configured model endpoints. The zero value is
// unusable; build one with NewClient.
type Client struct {
	endpoints map[string]string
	http      *http.Client
}

// NewClient builds a prediction client. endpoints maps disease category names
// (DR, AMD, RVO, Glaucoma) to model server base URLs; a missing entry means
// that category is screened manually.
func NewClient(endpoints map[string]string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	eps := make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		eps[k] = v
	}
	return &Client{
		endpoints: eps,
		http:      &http.Client{Timeout: timeout},
	}
}

// Supports reports whether an endpoint is configured for the category.
func (c *Client) Supports(category string) bool {
	_, ok := c.endpoints[category]
	return ok
}

// Predict uploads the image to the category's model server and decodes the
// result. The image is sent as a multipart form file named "image". A non-2xx
// response or transport error surfaces to the caller; there is no retry.
func (c *Client) Predict(ctx context.Context, category, fileName string, image io.Reader) (*Result, error) {
	endpoint, ok := c.endpoints[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", fileName)
	if err != nil {
		return nil, fmt.Errorf("building form: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("copying image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/predict", &buf)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s model: %w", category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s model returned %d: %s", category, resp.StatusCode, bytes.TrimSpace(body))
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding %s model response: %w", category, err)
	}
	out.Category = category

	log.Debug().
		Str("category", category).
		Str("file", fileName).
		Str("label", out.Label).
		Dur("latency", time.Since(start)).
		Msg("prediction completed")

	return &out, nil
}
