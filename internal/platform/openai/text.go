package openai

import (
	"context"
	"fmt"
	"strings"
)

type TextRequest struct {
	System          string
	User            string
	MaxOutputTokens int
	Temperature     *float64
}

type TextResult struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model           string         `json:"model"`
	Input           []inputMessage `json:"input"`
	MaxOutputTokens int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64       `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Model string `json:"model"`
	Output []struct {
		Type string `json:"type"`
		Role string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (r responsesResponse) outputText() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			if c.Type == "output_text" {
				b.WriteString(c.Text)
			}
		}
	}
	return b.String()
}

func (c *client) GenerateText(ctx context.Context, req TextRequest) (TextResult, error) {
	var out TextResult
	if strings.TrimSpace(req.User) == "" {
		return out, fmt.Errorf("user prompt required")
	}
	body := responsesRequest{
		Model:           c.cfg.Model,
		MaxOutputTokens: req.MaxOutputTokens,
		Temperature:     req.Temperature,
	}
	if s := strings.TrimSpace(req.System); s != "" {
		body.Input = append(body.Input, inputMessage{Role: "system", Content: s})
	}
	body.Input = append(body.Input, inputMessage{Role: "user", Content: req.User})

	var resp responsesResponse
	if err := c.do(ctx, jsonRequest("POST", "/v1/responses", c.cfg.Model, body), &resp); err != nil {
		return out, err
	}
	if resp.Refusal != "" {
		return out, fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := strings.TrimSpace(resp.outputText())
	if text == "" {
		return out, fmt.Errorf("no output_text found in response")
	}
	out.Text = text
	out.Model = resp.Model
	if out.Model == "" {
		out.Model = c.cfg.Model
	}
	out.InputTokens = resp.Usage.InputTokens
	out.OutputTokens = resp.Usage.OutputTokens
	return out, nil
}
