// Package strategy turns a research theme into a keyword strategy by
// calling an OpenAI-compatible chat completions endpoint and parsing the
// JSON object out of the reply.
package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the endpoint used when the request carries none.
const DefaultBaseURL = "https://api.openai.com"

// DefaultModel is the model used when the request carries none.
const DefaultModel = "gpt-4o-mini"

// maxTokens caps the completion. The strategy JSON is small; a long
// reply means the model is rambling outside the contract anyway.
const maxTokens = 500

// DefaultPrompt is the built-in strategy prompt. The ${theme} placeholder
// is substituted before sending. Users can override it wholesale.
const DefaultPrompt = `You are an expert research strategist. Given the theme "${theme}", create a noise-filtering search strategy.

GOAL: Help the user find high-quality, relevant content by selecting keywords that surface expert sources and excluding terms that pollute results with commercial, shallow, or off-topic content.

LANGUAGE RULE: Detect the theme's language and generate ALL output in that SAME language.

Return ONLY valid JSON:
{
  "keywords": ["kw1", "kw2", "kw3", "kw4", "kw5", "kw6", "kw7", "kw8"],
  "negatives": ["exclude1", "exclude2", "exclude3", "exclude4", "exclude5"]
}

STEP 1: FRESHNESS & PERSONA ANALYSIS
- Is "${theme}" trend-sensitive (tech, news, market) or timeless (principles, theory)?
- If trend-sensitive: include year like "2025" or "latest" in keywords
- If timeless: include "wiki", "guide", "fundamentals" type words
- Who is searching? (engineer -> GitHub/docs, executive -> case study/ROI, consumer -> review/comparison)
- Add 1-2 keywords that appear on sites this persona trusts

STEP 2: KEYWORDS (8 total)
Choose words that ACTUALLY APPEAR in quality search results:
- [0-1]: Core theme + synonym
- [2-3]: Practical terms real people use
- [4-5]: Quality signals (white paper, research, analysis, implementation)
- [6-7]: Freshness/persona keywords from Step 1

NOTE: Multiple words = combined intent. Avoid academic jargon.

STEP 3: NEGATIVES (5 required)
What SPECIFIC noise pollutes "${theme}" results?
- EC sites dominating results
- Adjacent but irrelevant fields sharing terminology
- Job/career content (listings, salary, interview)
- Wrong depth (beginner tutorials vs advanced research)
- Noisy platforms (YouTube, TikTok, Pinterest)

ALWAYS INCLUDE EC exclusions (without minus sign):
- Japanese: Amazon, 楽天, Yahoo!ショッピング, 価格.com, 通販
- English: Amazon, eBay, Walmart, shop, buy

IMPORTANT: Return words WITHOUT minus signs. System adds them automatically.
Ensure output is strictly valid JSON. No text before or after the JSON block.`

// Strategy is the parsed model output: keywords to surface and noise
// words to suppress.
type Strategy struct {
	Keywords  []string `json:"keywords"`
	Negatives []string `json:"negatives"`
}

// BuildRequest describes one strategy call.
type BuildRequest struct {
	// Theme is the research topic substituted into the prompt.
	Theme string
	// Prompt overrides DefaultPrompt when non-empty. It may contain
	// ${theme} placeholders.
	Prompt string
	// BaseURL is the API root, e.g. "https://api.openai.com" or a local
	// vLLM server. Defaults to DefaultBaseURL.
	BaseURL string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// Model defaults to DefaultModel.
	Model string
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	client *http.Client
	logger *slog.Logger
}

// NewClient returns a strategy client. A nil logger falls back to
// slog.Default.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Build renders the prompt, performs one chat completion call and parses
// the strategy out of the reply. One attempt, no retry: the caller shows
// the error to the user, who retries deliberately.
func (c *Client) Build(ctx context.Context, req BuildRequest) (Strategy, error) {
	if strings.TrimSpace(req.Theme) == "" {
		return Strategy{}, fmt.Errorf("strategy: empty theme")
	}

	prompt := RenderPrompt(req.Prompt, req.Theme)
	baseURL := req.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return Strategy{}, fmt.Errorf("strategy: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Strategy{}, fmt.Errorf("strategy: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Strategy{}, fmt.Errorf("strategy: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("strategy call failed",
			"status", resp.StatusCode,
			"duration", time.Since(start))
		return Strategy{}, fmt.Errorf("strategy: provider returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Strategy{}, fmt.Errorf("strategy: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Strategy{}, fmt.Errorf("strategy: response carried no choices")
	}

	c.logger.Debug("strategy response received",
		"duration", time.Since(start),
		"tokens", cr.Usage.TotalTokens,
		"finish_reason", cr.Choices[0].FinishReason)

	return Parse(cr.Choices[0].Message.Content)
}

// RenderPrompt substitutes every ${theme} placeholder in template. An
// empty template uses DefaultPrompt.
func RenderPrompt(template, theme string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultPrompt
	}
	return strings.ReplaceAll(template, "${theme}", theme)
}

// Parse extracts the first JSON object from the model reply and decodes
// it. Missing fields come back as empty lists, never an error.
func Parse(text string) (Strategy, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return Strategy{}, err
	}
	var st Strategy
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return Strategy{}, fmt.Errorf("strategy: reply is not valid JSON: %w", err)
	}
	return st, nil
}

// ExtractJSON returns the first balanced top-level JSON object in text.
// Models wrap replies in markdown fences or prose; braces inside JSON
// strings are honored.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("strategy: no JSON object in reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("strategy: unbalanced JSON object in reply")
}
