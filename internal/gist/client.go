// Talks to the GitHub Gist API. Each replicated dataset lives in its own
// gist as a single file that is fetched and replaced whole.

package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned when the gist or its tracked file does not exist.
var ErrNotFound = errors.New("gist not found")

// Client is a GitHub Gist API client authenticated with a personal access
// token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a gist client. baseURL is normally
// https://api.github.com.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type gistFile struct {
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

// Pull fetches the content of the file named filename from the gist. When no
// file by that name exists the lexicographically first file is used, so a
// gist whose file was renamed still resolves deterministically. A missing
// gist or an empty one returns ErrNotFound.
func (c *Client) Pull(ctx context.Context, gistID, filename string) ([]byte, error) {
	url := fmt.Sprintf("%s/gists/%s", c.baseURL, gistID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch gist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("gist %s: %w", gistID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Files map[string]gistFile `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gist response: %w", err)
	}

	file, ok := result.Files[filename]
	if !ok {
		names := slices.Sorted(maps.Keys(result.Files))
		if len(names) == 0 {
			return nil, fmt.Errorf("gist %s has no files: %w", gistID, ErrNotFound)
		}
		file = result.Files[names[0]]
	}
	// The API truncates large file contents and points at the full copy.
	if file.Truncated {
		return c.fetchRaw(ctx, file.RawURL)
	}
	return []byte(file.Content), nil
}

// Push replaces the content of the file named filename in the gist.
func (c *Client) Push(ctx context.Context, gistID, filename string, content []byte) error {
	payload := map[string]any{
		"files": map[string]any{
			filename: map[string]string{"content": string(content)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode gist payload: %w", err)
	}

	url := fmt.Sprintf("%s/gists/%s", c.baseURL, gistID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update gist: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *Client) fetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch raw gist content: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GitHub API error %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
}
