// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm calls the Gemini text-generation API and recovers structured
// JSON from its free-text responses.
//
// See docs/ARCHITECTURE.md § Text Generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/litreview/pkg/types"
)

// geminiAPIBase is the Gemini generateContent endpoint, minus the model
// segment. Declared as a var so tests can substitute an httptest server.
var geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta/models"

// Client generates text from a prompt. Stages depend on this interface so
// tests can supply a mock.
type Client interface {
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}

// GenerationConfig holds per-call generation parameters. ResponseSchema, when
// set, requests structured JSON output; the response is still treated as
// unreliable free text by callers.
type GenerationConfig struct {
	Temperature     float64         `json:"temperature"`
	MaxOutputTokens int             `json:"maxOutputTokens"`
	TopP            float64         `json:"topP"`
	TopK            int             `json:"topK"`
	ResponseMIME    string          `json:"responseMimeType,omitempty"`
	ResponseSchema  json.RawMessage `json:"responseSchema,omitempty"`
}

// GeminiClient calls the Gemini API over HTTP.
type GeminiClient struct {
	APIKey string
	Model  string
	HTTP   *http.Client
}

// NewGeminiClient builds a client from the shared LLM configuration.
func NewGeminiClient(cfg types.LLMConfig) *GeminiClient {
	return &GeminiClient{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		HTTP:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Gemini generateContent wire structures.
type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt and returns the first candidate's text. The raw
// text is returned as-is; callers run it through DecodeObject.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &cfg,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiAPIBase, c.Model, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Gemini API returned %d: %s", resp.StatusCode, string(body))
	}

	var gResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return "", fmt.Errorf("decoding Gemini response: %w", err)
	}

	if len(gResp.Candidates) == 0 || len(gResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini API returned no candidates")
	}
	return gResp.Candidates[0].Content.Parts[0].Text, nil
}
