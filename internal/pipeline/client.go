package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kestrelworks/queryd/internal/agent"
)

// HTTPRetrievalClient calls an external retrieval microservice over
// JSON HTTP. Call deadlines come from the executor's external timeout.
type HTTPRetrievalClient struct {
	baseURL string
	httpc   *http.Client
}

// NewHTTPRetrievalClient creates a client for the service at baseURL.
func NewHTTPRetrievalClient(baseURL string) *HTTPRetrievalClient {
	return &HTTPRetrievalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
}

type retrieveRequest struct {
	Query  string `json:"query"`
	Source string `json:"source"`
	Limit  int    `json:"limit"`
}

type retrieveResponse struct {
	Sources []agent.Source `json:"sources"`
}

func (c *HTTPRetrievalClient) FetchSources(ctx context.Context, text, source string, limit int) ([]agent.Source, error) {
	var resp retrieveResponse
	err := postJSON(ctx, c.httpc, c.baseURL+"/v1/retrieve", retrieveRequest{
		Query:  text,
		Source: source,
		Limit:  limit,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("retrieval service: %w", err)
	}
	return resp.Sources, nil
}

// HTTPSynthesisClient calls an external synthesis microservice over
// JSON HTTP.
type HTTPSynthesisClient struct {
	baseURL string
	httpc   *http.Client
}

// NewHTTPSynthesisClient creates a client for the service at baseURL.
func NewHTTPSynthesisClient(baseURL string) *HTTPSynthesisClient {
	return &HTTPSynthesisClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
}

type synthesizeRequest struct {
	Query     string         `json:"query"`
	Sources   []agent.Source `json:"sources"`
	MaxTokens int            `json:"max_tokens"`
}

func (c *HTTPSynthesisClient) Compose(ctx context.Context, text string, sources []agent.Source, maxTokens int) (*agent.Synthesis, error) {
	var resp agent.Synthesis
	err := postJSON(ctx, c.httpc, c.baseURL+"/v1/synthesize", synthesizeRequest{
		Query:     text,
		Sources:   sources,
		MaxTokens: maxTokens,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("synthesis service: %w", err)
	}
	return &resp, nil
}

func postJSON(ctx context.Context, httpc *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
