package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"merry/internal/cache"
	"merry/internal/document/model"
	"merry/internal/transport"
)

// CreateDocumentRequest is the payload for creating a document.
type CreateDocumentRequest struct {
	Title    string          `json:"title" validate:"required,max=255"`
	Type     string          `json:"type" validate:"required,oneof=word excel"`
	Sections []model.Section `json:"sections"`
	Sheets   []model.Sheet   `json:"sheets"`
}

// DocumentUpdate carries a partial document update; nil fields are left
// untouched by the backend.
type DocumentUpdate struct {
	Title    *string         `json:"title,omitempty"`
	Sections []model.Section `json:"sections,omitempty"`
	Sheets   []model.Sheet   `json:"sheets,omitempty"`
}

type documentListResponse struct {
	Documents []*model.Document `json:"documents"`
}

// CreateDocument creates a document and invalidates the document family.
func (c *Client) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*model.Document, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Type == model.TypeWord && len(req.Sections) == 0 {
		return nil, errors.New("word documents require at least one section")
	}
	if req.Type == model.TypeExcel && len(req.Sheets) == 0 {
		return nil, errors.New("excel documents require at least one sheet")
	}

	resp, err := c.http.Do(ctx, http.MethodPost, "/documents", req)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := transport.Decode(resp, &doc); err != nil {
		return nil, err
	}
	c.cache.Invalidate(cache.FamilyDocument)
	return &doc, nil
}

// GetDocument fetches one document, serving a cached copy when fresh.
func (c *Client) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	key := cache.DocumentKey(id)
	if v, ok := c.cache.Get(key); ok {
		return v.(*model.Document).Clone(), nil
	}
	resp, err := c.http.Do(ctx, http.MethodGet, "/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := transport.Decode(resp, &doc); err != nil {
		return nil, err
	}
	c.cache.Set(key, doc.Clone())
	return &doc, nil
}

// ListDocuments fetches the caller's documents, newest first, cached briefly.
func (c *Client) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	if v, ok := c.cache.Get(cache.KeyDocumentsList); ok {
		return cloneDocuments(v.([]*model.Document)), nil
	}
	resp, err := c.http.Do(ctx, http.MethodGet, "/documents", nil)
	if err != nil {
		return nil, err
	}
	var out documentListResponse
	if err := transport.Decode(resp, &out); err != nil {
		return nil, err
	}
	c.cache.Set(cache.KeyDocumentsList, cloneDocuments(out.Documents))
	return out.Documents, nil
}

// UpdateDocument persists a document update and invalidates the document
// family on success. A failed update leaves the cache intact.
func (c *Client) UpdateDocument(ctx context.Context, id string, update DocumentUpdate) (*model.Document, error) {
	resp, err := c.http.Do(ctx, http.MethodPut, "/documents/"+url.PathEscape(id), update)
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := transport.Decode(resp, &doc); err != nil {
		return nil, err
	}
	c.cache.Invalidate(cache.FamilyDocument)
	return &doc, nil
}

// DeleteDocument removes a document and invalidates the document family.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	resp, err := c.http.Do(ctx, http.MethodDelete, "/documents/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if err := transport.Decode(resp, nil); err != nil {
		return err
	}
	c.cache.Invalidate(cache.FamilyDocument)
	return nil
}

func cloneDocuments(docs []*model.Document) []*model.Document {
	out := make([]*model.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}
