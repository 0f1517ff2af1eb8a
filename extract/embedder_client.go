// Copyright 2024 The Searchcore Authors
// This file is part of Searchcore.
//
// Searchcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Searchcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Searchcore. If not, see <http://www.gnu.org/licenses/>.

package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
)

// RestCredentials names a remote embedding API to call: the same shape
// internal/config.EmbedderCredentials holds per-embedder.
type RestCredentials struct {
	APIKey  string
	BaseURL string
}

// RestEmbedder posts an already rendered prompt (such as the output of
// VectorExtractor.RegeneratePrompt) to a remote embedding API, retrying
// transient failures. Unlike VectorExtractor itself (which only renders the
// prompt), RestEmbedder is the optional piece that actually performs the
// network call; a caller content with VectorExtractor's rendered prompt and
// its own embedding client never needs this type.
type RestEmbedder struct {
	creds  RestCredentials
	client *retryablehttp.Client
}

// NewRestEmbedder builds a RestEmbedder backed by a retryablehttp.Client with
// the library's own default exponential backoff policy; its internal logger
// is silenced since request-level retries are an implementation detail, not
// something an embedding call's caller needs logged on stderr.
func NewRestEmbedder(creds RestCredentials) *RestEmbedder {
	client := retryablehttp.NewClient()
	client.Logger = nil
	return &RestEmbedder{creds: creds, client: client}
}

// restEmbedRequest/restEmbedResponse are the minimal JSON envelope this
// client speaks: {"input": "..."} in, {"embedding": [...]} out. A real
// deployment's embedder API may differ; this is the only request/response
// shape RestEmbedder speaks.
type restEmbedRequest struct {
	Input string `json:"input"`
}

type restEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed posts prompt to creds.BaseURL and returns the resulting vector.
func (e *RestEmbedder) Embed(ctx context.Context, prompt string) ([]float32, error) {
	body, err := json.Marshal(restEmbedRequest{Input: prompt})
	if err != nil {
		return nil, fmt.Errorf("rest embedder: encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.creds.BaseURL, body)
	if err != nil {
		return nil, fmt.Errorf("rest embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.creds.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest embedder: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rest embedder: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rest embedder: status %d: %s", resp.StatusCode, raw)
	}

	var out restEmbedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("rest embedder: decode response: %w", err)
	}
	return out.Embedding, nil
}
