// Package generate drives the prompt-to-document flow: quota gate, intent
// parsing, document assembly, creation.
package generate

import (
	"context"
	"errors"
	"strings"
	"sync"

	"merry/internal/api"
	"merry/internal/document/model"

	"github.com/google/uuid"
)

// ErrQuotaExhausted is returned before any network call once a guest has used
// up the free prompt quota.
var ErrQuotaExhausted = errors.New("free prompt quota exhausted, sign up to keep generating")

// Auth is the slice of the session manager the generator consults.
type Auth interface {
	CanUsePrompt() bool
	RecordPromptUse()
}

// API is the slice of the backend client the generator drives.
type API interface {
	ParseIntent(ctx context.Context, prompt string) (*model.Intent, error)
	CreateDocument(ctx context.Context, req api.CreateDocumentRequest) (*model.Document, error)
}

// Generator creates documents from prompts. Requests supersede each other:
// starting a new generation cancels the one still in flight, last request
// wins.
type Generator struct {
	mu     sync.Mutex
	api    API
	auth   Auth
	gen    uint64
	cancel context.CancelFunc
}

func New(backend API, auth Auth) *Generator {
	return &Generator{api: backend, auth: auth}
}

// Generate parses the prompt into an intent, assembles a document from it and
// creates it on the backend. Guests past the free quota are blocked before
// anything goes on the wire.
func (g *Generator) Generate(ctx context.Context, prompt string) (*model.Document, error) {
	if !g.auth.CanUsePrompt() {
		return nil, ErrQuotaExhausted
	}

	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	genCtx, cancel := context.WithCancel(ctx)
	g.gen++
	mine := g.gen
	g.cancel = cancel
	g.mu.Unlock()
	defer func() {
		cancel()
		g.mu.Lock()
		// A newer generation may have taken over; only release our own slot.
		if g.gen == mine {
			g.cancel = nil
		}
		g.mu.Unlock()
	}()

	intent, err := g.api.ParseIntent(genCtx, prompt)
	if err != nil {
		return nil, err
	}
	doc, err := g.api.CreateDocument(genCtx, BuildDocumentRequest(intent))
	if err != nil {
		return nil, err
	}
	g.auth.RecordPromptUse()
	return doc, nil
}

// BuildDocumentRequest turns a parsed intent into a create payload. Word
// intents map section-per-section; excel intents become a single sheet whose
// rows are keyed by column id, with sample values matched by column name.
func BuildDocumentRequest(intent *model.Intent) api.CreateDocumentRequest {
	title := strings.TrimSpace(intent.Topic)
	if title == "" {
		title = "Untitled Document"
	}

	req := api.CreateDocumentRequest{Title: title, Type: intent.DocumentType}
	if intent.DocumentType == model.TypeExcel {
		req.Sheets = []model.Sheet{buildSheet(intent)}
		return req
	}

	req.Type = model.TypeWord
	sections := intent.Sections
	if len(sections) == 0 {
		sections = []model.IntentSection{{Heading: title}}
	}
	for _, s := range sections {
		req.Sections = append(req.Sections, model.Section{
			ID:                 uuid.NewString(),
			Heading:            s.Heading,
			Level:              1,
			Content:            s.Content,
			VerificationStatus: model.VerificationUnverified,
		})
	}
	return req
}

func buildSheet(intent *model.Intent) model.Sheet {
	sheet := model.Sheet{ID: uuid.NewString(), Name: "Sheet 1"}

	byName := make(map[string]string, len(intent.Columns))
	for _, name := range intent.Columns {
		col := model.Column{ID: uuid.NewString(), Name: name}
		sheet.Columns = append(sheet.Columns, col)
		byName[name] = col.ID
	}

	for _, sample := range intent.SampleData {
		row := model.Row{ID: uuid.NewString(), Cells: make(map[string]any, len(sample))}
		for name, value := range sample {
			colID, ok := byName[name]
			if !ok {
				// The model sometimes invents columns in sample rows; grow the
				// sheet rather than dropping the data.
				col := model.Column{ID: uuid.NewString(), Name: name}
				sheet.Columns = append(sheet.Columns, col)
				byName[name] = col.ID
				colID = col.ID
			}
			row.Cells[colID] = value
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}
