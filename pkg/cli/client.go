// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli implements roverctl, a thin HTTP client facade over the
// daemon's API (section 6), in the cobra/pflag idiom the teacher uses
// for its own CLI (pkg/cli, cmd/yeet).
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// APIError is returned when the daemon responds with a non-2xx status;
// it carries the {message, code} envelope of section 7.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%s, http %d)", e.Message, e.Code, e.Status)
}

// Client is a thin wrapper around http.Client scoped to one roverd
// instance.
type Client struct {
	BaseURL  string
	Username string
	Password string
	HTTP     *http.Client
}

// NewClient returns a Client talking to baseURL with HTTP Basic
// credentials.
func NewClient(baseURL, username, password string) *Client {
	return &Client{BaseURL: baseURL, Username: username, Password: password, HTTP: &http.Client{}}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if path != "/status" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &envelope)
		if envelope.Message == "" {
			envelope.Message = string(data)
		}
		return &APIError{Status: resp.StatusCode, Message: envelope.Message, Code: envelope.Code}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPost, path, reader, "application/json", out)
}

// Status is the projection of GET /status.
type Status struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Version    string  `json:"version"`
	UptimeS    float64 `json:"uptime_seconds"`
	OS         string  `json:"os"`
	CPUPercent float64 `json:"cpu_percent"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemTotalMB float64 `json:"mem_total_mb"`
	RoverID    int     `json:"rover_id"`
	RoverName  string  `json:"rover_name"`
	SystemTime string  `json:"system_time"`
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.getJSON(ctx, "/status", &s)
	return s, err
}

func (c *Client) ListAuthors(ctx context.Context) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/services", &out)
	return out, err
}

func (c *Client) ListServices(ctx context.Context, author string) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/services/"+url.PathEscape(author), &out)
	return out, err
}

func (c *Client) ListVersions(ctx context.Context, author, name string) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, fmt.Sprintf("/services/%s/%s", url.PathEscape(author), url.PathEscape(name)), &out)
	return out, err
}

// ManifestProjection mirrors internal/httpapi's manifestProjection: the
// wire shape of a service's manifest plus built_at.
type ManifestProjection struct {
	Name     string `json:"name"`
	Author   string `json:"author"`
	Source   string `json:"source"`
	Version  string `json:"version"`
	Commands struct {
		Run   string `json:"run"`
		Build string `json:"build"`
	} `json:"commands"`
	BuiltAt string `json:"built_at"`
}

func servicePath(author, name, version string) string {
	return fmt.Sprintf("/services/%s/%s/%s", url.PathEscape(author), url.PathEscape(name), url.PathEscape(version))
}

func (c *Client) GetManifest(ctx context.Context, author, name, version string) (ManifestProjection, error) {
	var m ManifestProjection
	err := c.getJSON(ctx, servicePath(author, name, version), &m)
	return m, err
}

func (c *Client) Build(ctx context.Context, author, name, version string) error {
	return c.do(ctx, http.MethodPost, servicePath(author, name, version), nil, "", nil)
}

func (c *Client) DeleteService(ctx context.Context, author, name, version string) (invalidated bool, err error) {
	var out struct {
		Invalidated bool `json:"invalidated_pipeline"`
	}
	err = c.do(ctx, http.MethodDelete, servicePath(author, name, version), nil, "", &out)
	return out.Invalidated, err
}

// Upload streams a service archive from r to the daemon's multipart
// upload endpoint.
func (c *Client) Upload(ctx context.Context, author, name, version string, r io.Reader) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, value := range map[string]string{"author": author, "name": name, "version": version} {
		if err := w.WriteField(field, value); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("archive", name+".tar.gz")
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/upload", &buf, w.FormDataContentType(), nil)
}

func (c *Client) Fetch(ctx context.Context, fetchURL, author, name, version string) error {
	return c.postJSON(ctx, "/fetch", map[string]string{
		"url": fetchURL, "author": author, "name": name, "version": version,
	}, nil)
}

// ServiceRef names one member of the enabled set in POST /pipeline.
type ServiceRef struct {
	Author  string `json:"author"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServiceInfo mirrors internal/httpapi's serviceInfoWire.
type ServiceInfo struct {
	Author       string  `json:"author"`
	Name         string  `json:"name"`
	Version      string  `json:"version"`
	Status       string  `json:"status"`
	LastPID      int     `json:"last_pid"`
	LastExitCode int     `json:"last_exit_code"`
	Faults       int     `json:"faults"`
	UptimeMS     int64   `json:"uptime_ms"`
	MemMB        float64 `json:"mem_mb"`
	CPUPercent   float64 `json:"cpu_percent"`
}

// Pipeline mirrors internal/httpapi's pipelineResponse.
type Pipeline struct {
	Status   string        `json:"status"`
	Services []ServiceInfo `json:"services"`
}

func (c *Client) GetPipeline(ctx context.Context) (Pipeline, error) {
	var p Pipeline
	err := c.getJSON(ctx, "/pipeline", &p)
	return p, err
}

func (c *Client) SetPipeline(ctx context.Context, refs []ServiceRef) error {
	return c.postJSON(ctx, "/pipeline", refs, nil)
}

func (c *Client) StartPipeline(ctx context.Context) error {
	return c.postJSON(ctx, "/pipeline/start", nil, nil)
}

func (c *Client) StopPipeline(ctx context.Context) error {
	return c.postJSON(ctx, "/pipeline/stop", nil, nil)
}

func (c *Client) Logs(ctx context.Context, author, name, version string, lines int) ([]string, error) {
	path := fmt.Sprintf("/logs/%s/%s/%s", url.PathEscape(author), url.PathEscape(name), url.PathEscape(version))
	if lines > 0 {
		path += "?lines=" + strconv.Itoa(lines)
	}
	var out struct {
		Lines []string `json:"lines"`
	}
	err := c.getJSON(ctx, path, &out)
	return out.Lines, err
}

// Source mirrors internal/sources.Source.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (c *Client) ListSources(ctx context.Context) ([]Source, error) {
	var out []Source
	err := c.getJSON(ctx, "/sources", &out)
	return out, err
}

func (c *Client) AddSource(ctx context.Context, name, srcURL string) error {
	return c.postJSON(ctx, "/sources", map[string]string{"name": name, "url": srcURL}, nil)
}

func (c *Client) DeleteSource(ctx context.Context, name string) error {
	data, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/sources", bytes.NewReader(data), "application/json", nil)
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.postJSON(ctx, "/shutdown", nil, nil)
}

func (c *Client) Update(ctx context.Context) error {
	return c.postJSON(ctx, "/update", nil, nil)
}
