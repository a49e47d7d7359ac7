package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-threatsim/internal/models"
	"github.com/miradorstack/mirador-threatsim/internal/utils"
)

const opHTTP = "detector.http"

// HTTPClient submits batches to a detector exposing a JSON scoring endpoint.
type HTTPClient struct {
	baseURL    string
	detectPath string
	httpClient *http.Client
}

// NewHTTPClient constructs a client targeting baseURL + detectPath.
func NewHTTPClient(baseURL, detectPath string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		detectPath: detectPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type detectRequest struct {
	Logs []models.LogEvent `json:"logs"`
}

// Submit posts the batch and decodes a single assessment.
func (c *HTTPClient) Submit(ctx context.Context, logs []models.LogEvent) (models.Assessment, error) {
	if c == nil {
		return models.Assessment{}, utils.NewAppError(opHTTP, "client not initialised", nil)
	}
	if len(logs) == 0 {
		return models.Assessment{}, utils.NewAppError(opHTTP, "submit", ErrEmptyBatch)
	}
	if c.baseURL == "" {
		return models.Assessment{}, utils.NewAppError(opHTTP, "base URL not configured", nil)
	}

	var assessment models.Assessment
	if err := c.postJSON(ctx, c.detectURL(), detectRequest{Logs: logs}, &assessment); err != nil {
		return models.Assessment{}, utils.NewAppError(opHTTP, "detect request failed", err)
	}
	if !assessment.Scored() {
		return models.Assessment{}, utils.NewAppError(opHTTP, "malformed response", fmt.Errorf("missing risk_score"))
	}
	if assessment.Action == "" {
		assessment.Action = models.ActionUnknown
	}
	return assessment, nil
}

func (c *HTTPClient) detectURL() string {
	cleaned := "/" + strings.TrimLeft(c.detectPath, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *HTTPClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
