// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tigdiff/internal/errors"
	"tigdiff/internal/report"
	shared "tigdiff/shared/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

// Detect asks the server for the renames and copies between two revisions
func (c *Client) Detect(ctx context.Context, req shared.DetectRequest) (*shared.DetectResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	want := http.StatusOK
	if req.Save {
		want = http.StatusCreated
	}

	var result shared.DetectResponse
	if err := c.do(ctx, http.MethodPost, "/api/rewrites", bytes.NewBuffer(data), want, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Report operations
func (c *Client) ListReports(ctx context.Context) ([]*report.Report, error) {
	var reports []*report.Report
	if err := c.do(ctx, http.MethodGet, "/api/reports", nil, http.StatusOK, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *Client) GetReport(ctx context.Context, id string) (*report.Report, error) {
	var r report.Report
	if err := c.do(ctx, http.MethodGet, "/api/reports/"+url.PathEscape(id), nil, http.StatusOK, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) DeleteReport(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/reports/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

func (c *Client) Health(ctx context.Context) (*shared.Health, error) {
	var h shared.Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		// Servers answer failures with an errors.Error body
		var apiErr errors.Error
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			apiErr.Code = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
