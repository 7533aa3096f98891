// Package provider is the client for the Vercel deployments API.
// The API is consumed as a black box: a named file set goes in, a
// deployment record or an error comes out.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sitedrop/internal/upload"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Vercel API origin.
	DefaultBaseURL = "https://api.vercel.com"

	// DefaultDomain is the fallback hosting domain for deployed sites.
	DefaultDomain = "vercel.app"

	// RequestTimeout bounds a single deployment API call.
	RequestTimeout = 30 * time.Second
)

// ErrNameTaken indicates the provider rejected the deployment because
// the requested name already exists.
var ErrNameTaken = errors.New("site name already exists")

// ErrNoToken indicates the deployment token is not configured.
var ErrNoToken = errors.New("deployment token not configured")

// Deployment is the provider's record of a created deployment.
type Deployment struct {
	ID  string
	URL string
}

// Client talks to the Vercel deployments endpoint with bearer-token auth.
type Client struct {
	baseURL string
	domain  string
	token   string
	http    *http.Client
}

// NewClient creates a provider client. The token may be empty; every
// Deploy call then fails with ErrNoToken, which the handler reports as
// a server configuration error.
func NewClient(baseURL, domain, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if domain == "" {
		domain = DefaultDomain
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		domain:  domain,
		token:   token,
	}

	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		c.http = oauth2.NewClient(context.Background(), ts)
	} else {
		c.http = &http.Client{}
	}
	c.http.Timeout = RequestTimeout

	return c
}

// HasToken reports whether a deployment token is configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

// deployRequest is the wire shape of a deployment creation call.
// Build settings are explicit nulls: the payload is served as-is with
// no framework detection, build or install step.
type deployRequest struct {
	Name            string          `json:"name"`
	Files           []deployFile    `json:"files"`
	ProjectSettings projectSettings `json:"projectSettings"`
	Target          string          `json:"target"`
}

type deployFile struct {
	File string `json:"file"`
	Data string `json:"data"`
}

type projectSettings struct {
	Framework       *string `json:"framework"`
	BuildCommand    *string `json:"buildCommand"`
	InstallCommand  *string `json:"installCommand"`
	OutputDirectory *string `json:"outputDirectory"`
}

type deployResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Deploy creates a production deployment for name from the given file
// set and returns the provider's deployment record. A rejection caused
// by the name being taken is reported as ErrNameTaken (wrapped with the
// provider's message); every other failure is a generic provider error.
func (c *Client) Deploy(ctx context.Context, name string, files []upload.SiteFile) (*Deployment, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}

	reqBody := deployRequest{
		Name:            name,
		Files:           make([]deployFile, 0, len(files)),
		ProjectSettings: projectSettings{},
		Target:          "production",
	}
	for _, f := range files {
		reqBody.Files = append(reqBody.Files, deployFile{File: f.Path, Data: f.Content})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding deployment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v13/deployments", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building deployment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deployment request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading deployment response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, c.mapError(resp.StatusCode, body)
	}

	var dr deployResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("decoding deployment response: %w", err)
	}

	return &Deployment{
		ID:  dr.ID,
		URL: c.publicURL(name, dr.URL),
	}, nil
}

// mapError converts a provider error response into the recognized
// name-taken case or a generic failure carrying the provider message.
func (c *Client) mapError(status int, body []byte) error {
	var ae apiError
	msg := ""
	if err := json.Unmarshal(body, &ae); err == nil {
		msg = ae.Error.Message
	}

	if strings.Contains(msg, "already exists") {
		return fmt.Errorf("%w: %s", ErrNameTaken, msg)
	}

	if msg == "" {
		msg = fmt.Sprintf("deployment provider returned status %d", status)
	}
	return fmt.Errorf("deployment failed: %s", msg)
}

// publicURL derives the site URL, preferring the provider-assigned
// hostname and falling back to the conventional name-based one.
func (c *Client) publicURL(name, host string) string {
	if host != "" {
		return "https://" + host
	}
	return fmt.Sprintf("https://%s.%s", name, c.domain)
}
