package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for the defra package.
var (
	// ErrUnhealthy is returned when DefraDB health check fails.
	ErrUnhealthy = errors.New("defra: health check failed")

	// ErrUniqueViolation is returned when a write collides with a unique index.
	ErrUniqueViolation = errors.New("defra: unique index violation")
)

// Client is a DefraDB HTTP/GraphQL client.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient creates a new DefraDB client.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// URL returns the base URL of the DefraDB node.
func (c *Client) URL() string {
	return c.url
}

// GQLRequest represents a GraphQL request.
type GQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GQLResponse represents a GraphQL response.
type GQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GQLError     `json:"errors,omitempty"`
}

// GQLError represents a GraphQL error.
type GQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Error returns the first error message or empty string.
func (r *GQLResponse) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Docs returns the documents under key, skipping anything that is not an object.
func (r *GQLResponse) Docs(key string) []map[string]any {
	raw, ok := r.Data[key].([]any)
	if !ok {
		return nil
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		if doc, ok := d.(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// HealthCheck reports ErrUnhealthy unless the node answers 200.
func (c *Client) HealthCheck(ctx context.Context) error {
	status, _, err := c.send(ctx, http.MethodGet, "/health-check", "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

// send performs one HTTP round trip and returns the status and body.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// Execute sends a GraphQL request and returns the response. GraphQL
// errors are left in the response for the caller.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error) {
	payload, err := json.Marshal(GQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	status, body, err := c.send(ctx, http.MethodPost, "/api/v0/graphql", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	switch {
	case status >= 500:
		return nil, fmt.Errorf("defra server error (status %d): %s", status, body)
	case len(body) == 0:
		return nil, fmt.Errorf("defra returned empty response (status %d)", status)
	}

	var out GQLResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, body)
	}
	return &out, nil
}

// AddSchema registers GraphQL SDL with the node.
func (c *Client) AddSchema(ctx context.Context, schema string) error {
	status, body, err := c.send(ctx, http.MethodPost, "/api/v0/schema", "text/plain", strings.NewReader(schema))
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("schema error (status %d): %s", status, body)
	}
	return nil
}

// mutate runs `op_collection(args) { _docID }` and returns the affected
// documents.
func (c *Client) mutate(ctx context.Context, op, collection, args string) ([]map[string]any, error) {
	field := op + "_" + collection
	resp, err := c.Execute(ctx, fmt.Sprintf(`mutation { %s(%s) { _docID } }`, field, args), nil)
	if err != nil {
		return nil, err
	}
	if msg := resp.Error(); msg != "" {
		return nil, classifyWriteError(op, msg)
	}
	return resp.Docs(field), nil
}

// firstDocID returns the id of the first document a mutation touched.
func firstDocID(op string, docs []map[string]any) (WriteResult, error) {
	if len(docs) == 0 {
		return WriteResult{}, fmt.Errorf("%s: no document in response", op)
	}
	id, _ := docs[0]["_docID"].(string)
	return WriteResult{DocID: id}, nil
}

// Create creates a document in a collection.
func (c *Client) Create(ctx context.Context, collection string, input map[string]any) (WriteResult, error) {
	in, err := mapToGraphQLInput(input)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to build input: %w", err)
	}
	docs, err := c.mutate(ctx, "create", collection, "input: "+in)
	if err != nil {
		return WriteResult{}, err
	}
	return firstDocID("create", docs)
}

// Update patches the fields in input on one document.
func (c *Client) Update(ctx context.Context, collection string, docID string, input map[string]any) (WriteResult, error) {
	in, err := mapToGraphQLInput(input)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to build input: %w", err)
	}
	if _, err := c.mutate(ctx, "update", collection, fmt.Sprintf("docID: %q, input: %s", docID, in)); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{DocID: docID}, nil
}

// Upsert creates or updates the single document matching filter.
func (c *Client) Upsert(ctx context.Context, collection string, filter, createInput, updateInput map[string]any) (WriteResult, error) {
	var args [3]string
	for i, m := range []map[string]any{filter, createInput, updateInput} {
		gql, err := mapToGraphQLInput(m)
		if err != nil {
			return WriteResult{}, fmt.Errorf("failed to build upsert arguments: %w", err)
		}
		args[i] = gql
	}
	docs, err := c.mutate(ctx, "upsert", collection, fmt.Sprintf("filter: %s, create: %s, update: %s", args[0], args[1], args[2]))
	if err != nil {
		return WriteResult{}, err
	}
	return firstDocID("upsert", docs)
}

// Delete deletes a document from a collection.
func (c *Client) Delete(ctx context.Context, collection string, docID string) error {
	_, err := c.mutate(ctx, "delete", collection, fmt.Sprintf("docID: %q", docID))
	return err
}

// classifyWriteError maps DefraDB index errors onto ErrUniqueViolation.
func classifyWriteError(op, msg string) error {
	if strings.Contains(msg, "unique index") || strings.Contains(msg, "already exists") {
		return fmt.Errorf("%s error: %w: %s", op, ErrUniqueViolation, msg)
	}
	return fmt.Errorf("%s error: %s", op, msg)
}

// mapToGraphQLInput converts a map to GraphQL input format.
// Keys are emitted in sorted order so identical inputs produce identical mutations.
func mapToGraphQLInput(input map[string]any) (string, error) {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		valStr, err := valueToGraphQL(input[k])
		if err != nil {
			return "", fmt.Errorf("failed to convert value for key %q: %w", k, err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, valStr))
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// valueToGraphQL converts a Go value to GraphQL syntax.
func valueToGraphQL(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		// Go's %q produces escapes like \a and \xHH that GraphQL rejects; JSON's do not.
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal string: %w", err)
		}
		return string(b), nil
	case int, int64, float64, bool:
		return fmt.Sprint(val), nil
	case map[string]any:
		return mapToGraphQLInput(val)
	case []string:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = item
		}
		return valueToGraphQL(items)
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			gql, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items[i] = gql
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(b), nil
	}
}
