package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// HTTPDeployer hands deployments to an external deploy API. The API owns the
// actual rollout; we only need the external reference and the serving URL
// back.
type HTTPDeployer struct {
	client   *http.Client
	endpoint string
}

func NewHTTPDeployer(client *http.Client, endpoint string) *HTTPDeployer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDeployer{client: client, endpoint: endpoint}
}

type deployRequest struct {
	DeploymentID string `json:"deployment_id"`
	Repo         string `json:"repo"`
	Ref          string `json:"ref"`
	Path         string `json:"path"`
}

type deployResponse struct {
	ExternalRef string `json:"external_ref"`
	URL         string `json:"url"`
}

func (d *HTTPDeployer) Deploy(ctx context.Context, rec DeploymentRecord) (string, string, error) {
	body, err := json.Marshal(deployRequest{
		DeploymentID: rec.ID.String(),
		Repo:         rec.Repo,
		Ref:          rec.Ref,
		Path:         string(rec.Path),
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal deploy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("build deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("call deploy API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("deploy API responded %d", resp.StatusCode)
	}
	var out deployResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode deploy response: %w", err)
	}
	return out.ExternalRef, out.URL, nil
}

// HTTPCollaborator posts review comments back to the repository host.
// The endpoint template receives repo and PR number as path segments.
type HTTPCollaborator struct {
	client  *http.Client
	baseURL string
	token   string
}

func NewHTTPCollaborator(client *http.Client, baseURL, token string) *HTTPCollaborator {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPCollaborator{client: client, baseURL: baseURL, token: token}
}

func (c *HTTPCollaborator) Comment(ctx context.Context, repo string, prNumber int, body string) error {
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.baseURL, repo, prNumber)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build comment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post comment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("repository host responded %d", resp.StatusCode)
	}
	return nil
}

// LogDeployer marks every deployment as deployed without calling out. Used
// when no deploy API is configured, typically local development.
type LogDeployer struct {
	logger *slog.Logger
}

func NewLogDeployer(logger *slog.Logger) *LogDeployer {
	return &LogDeployer{logger: logger}
}

func (d *LogDeployer) Deploy(ctx context.Context, rec DeploymentRecord) (string, string, error) {
	d.logger.InfoContext(ctx, "deploy executed locally",
		"deployment_id", rec.ID.String(),
		"repo", rec.Repo,
		"path", string(rec.Path),
	)
	return "local-" + rec.ID.String(), "", nil
}

// LogCollaborator records comments in the log instead of posting them.
type LogCollaborator struct {
	logger *slog.Logger
}

func NewLogCollaborator(logger *slog.Logger) *LogCollaborator {
	return &LogCollaborator{logger: logger}
}

func (c *LogCollaborator) Comment(ctx context.Context, repo string, prNumber int, body string) error {
	c.logger.InfoContext(ctx, "review comment",
		"repo", repo,
		"pr", prNumber,
		"body", body,
	)
	return nil
}
