package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// Client is a small JSON-over-HTTP client shared by the tracker backends.
type Client struct {
	httpClient *http.Client
	header     http.Header
}

func baseClient(deps Deps) *http.Client {
	transport := deps.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{Transport: transport}
}

// NewTokenClient returns a client that authenticates with a static token.
// An empty tokenType sends "Bearer"; any other value is used verbatim as the
// authorization scheme.
func NewTokenClient(deps Deps, token, tokenType string) *Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient(deps))
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: tokenType})
	return &Client{httpClient: oauth2.NewClient(ctx, ts), header: http.Header{}}
}

// NewBasicClient returns a client using HTTP basic authentication.
func NewBasicClient(deps Deps, user, password string) *Client {
	c := &Client{httpClient: baseClient(deps), header: http.Header{}}
	creds := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	c.header.Set("Authorization", "Basic "+creds)
	return c
}

// NewHeaderClient returns a client that sends the given Authorization value
// unchanged. An empty value sends no Authorization header.
func NewHeaderClient(deps Deps, authorization string) *Client {
	c := &Client{httpClient: baseClient(deps), header: http.Header{}}
	if authorization != "" {
		c.header.Set("Authorization", authorization)
	}
	return c
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, strings.TrimSpace(e.Body))
}

// Do sends body (JSON-encoded when non-nil) and decodes a JSON response into
// out when out is non-nil. It returns the response status code.
func (c *Client) Do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Expect turns a successful status other than want into an error.
func Expect(code int, err error, want ...int) error {
	if err != nil {
		return err
	}
	for _, w := range want {
		if code == w {
			return nil
		}
	}
	return fmt.Errorf("unexpected status %d", code)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQL posts query to endpoint and decodes the "data" member into out.
// Partial data is decoded even when the response also carries errors.
func (c *Client) GraphQL(ctx context.Context, endpoint, query string, vars map[string]any, out any) error {
	var resp graphQLResponse
	if _, err := c.Do(ctx, http.MethodPost, endpoint, graphQLRequest{Query: query, Variables: vars}, &resp); err != nil {
		return err
	}
	if out != nil && len(resp.Data) > 0 && string(resp.Data) != "null" {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decoding graphql data: %w", err)
		}
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return errors.New("graphql: " + strings.Join(msgs, "; "))
	}
	return nil
}

// JoinURL joins a root URL and a path with exactly one slash between them.
func JoinURL(root, path string) string {
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(path, "/")
}
