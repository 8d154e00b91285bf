package ctl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client talks to the shipd API over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Stdout     io.Writer
}

func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Stdout:     os.Stdout,
	}, nil
}

type dispatchPayload struct {
	Ref       string `json:"ref,omitempty"`
	RefType   string `json:"ref_type,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
}

type triggerEvent struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Ref       string `json:"ref"`
	RefType   string `json:"ref_type"`
	CommitSHA string `json:"commit_sha"`
}

type run struct {
	ID         string     `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Ref        string     `json:"ref"`
	RefType    string     `json:"ref_type"`
	Status     string     `json:"status"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

type release struct {
	Tag         string    `json:"tag"`
	RunID       string    `json:"run_id"`
	ArtifactID  string    `json:"artifact_id"`
	PublishedAt time.Time `json:"published_at"`
}

type downloadTicket struct {
	ArtifactID string `json:"artifact_id"`
	Name       string `json:"name"`
	SHA256     string `json:"sha256"`
	Size       int64  `json:"size"`
	URL        string `json:"url"`
}

// Dispatch asks the API to start a manual run.
func (c *Client) Dispatch(ctx context.Context, ref, refType, commitSHA string) error {
	var resp struct {
		Event triggerEvent `json:"event"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/dispatch", dispatchPayload{
		Ref:       ref,
		RefType:   refType,
		CommitSHA: commitSHA,
	}, &resp)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Stdout, "dispatched %s (%s %s)\n", resp.Event.ID, resp.Event.RefType, resp.Event.Ref)
	return nil
}

// ListRuns prints recent runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) error {
	path := "/v1/runs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp struct {
		Runs []run `json:"runs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	for _, r := range resp.Runs {
		started := "-"
		if r.StartedAt != nil {
			started = r.StartedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(c.Stdout, "%s\t%s\t%s/%s\t%s\t%s\t%s\n",
			r.ID, r.Pipeline, r.RefType, r.Ref, r.Status, r.State, started)
	}
	return nil
}

// ListReleases prints published releases, newest first.
func (c *Client) ListReleases(ctx context.Context) error {
	var resp struct {
		Releases []release `json:"releases"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/releases", nil, &resp); err != nil {
		return err
	}
	for _, rel := range resp.Releases {
		fmt.Fprintf(c.Stdout, "%s\trun=%s\tartifact=%s\t%s\n",
			rel.Tag, rel.RunID, rel.ArtifactID, rel.PublishedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// DownloadArtifact fetches an artifact bundle via a presigned URL and checks
// the recorded digest before keeping the file.
func (c *Client) DownloadArtifact(ctx context.Context, artifactID, output string) error {
	if artifactID == "" {
		return errors.New("artifact id is required")
	}

	var ticket downloadTicket
	if err := c.doJSON(ctx, http.MethodGet, "/v1/artifacts/"+artifactID+"/download", nil, &ticket); err != nil {
		return err
	}
	if ticket.URL == "" {
		return errors.New("api returned no download url")
	}
	if output == "" {
		output = ticket.Name + ".tar.zst"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ticket.URL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download artifact: unexpected status %s", resp.Status)
	}

	tmp := output + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(f, hasher), resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, closeErr)
	}

	if err := os.Rename(tmp, output); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", output, err)
	}

	fmt.Fprintf(c.Stdout, "downloaded %s (%s, sha256 %s)\n",
		output, ticket.Name, hex.EncodeToString(hasher.Sum(nil)))
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("call api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api: %s (%s)", apiErr.Error, resp.Status)
		}
		return fmt.Errorf("api: unexpected status %s", resp.Status)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
