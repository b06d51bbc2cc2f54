package api

import (
	"context"
	"net/http"
	"strings"

	"merry/internal/document/model"
	"merry/internal/transport"
)

type intentRequest struct {
	Prompt string `json:"prompt" validate:"required,min=10,max=2000"`
}

// RewriteRequest asks the backend to rewrite one section's content according
// to free-form instructions.
type RewriteRequest struct {
	SectionID       string `json:"section_id" validate:"required"`
	Instructions    string `json:"instructions" validate:"required,max=500"`
	Content         string `json:"content" validate:"required,max=10000"`
	PreserveHeading bool   `json:"preserve_heading"`
}

type rewriteResponse struct {
	Content string `json:"content"`
}

// ParseIntent turns a natural-language prompt into a structured generation
// plan.
func (c *Client) ParseIntent(ctx context.Context, prompt string) (*model.Intent, error) {
	req := intentRequest{Prompt: strings.TrimSpace(prompt)}
	if err := c.validate.Struct(req); err != nil {
		return nil, err
	}
	resp, err := c.http.Do(ctx, http.MethodPost, "/ai/parse-intent", req)
	if err != nil {
		return nil, err
	}
	var intent model.Intent
	if err := transport.Decode(resp, &intent); err != nil {
		return nil, err
	}
	if intent.DocumentType == "" {
		intent.DocumentType = model.TypeWord
	}
	if intent.Topic == "" {
		intent.Topic = req.Prompt
		if len(intent.Topic) > 50 {
			intent.Topic = intent.Topic[:50]
		}
	}
	return &intent, nil
}

// RewriteSection rewrites section content. The heading is preserved unless the
// caller explicitly opts out.
func (c *Client) RewriteSection(ctx context.Context, req RewriteRequest) (string, error) {
	if err := c.validate.Struct(req); err != nil {
		return "", err
	}
	resp, err := c.http.Do(ctx, http.MethodPost, "/ai/rewrite", req)
	if err != nil {
		return "", err
	}
	var out rewriteResponse
	if err := transport.Decode(resp, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}
