// Package editor runs a per-document editing session: it owns the
// authoritative in-memory document, debounces persistence, retries failed
// saves with a bounded backoff, and guards navigation while edits are
// unsaved.
package editor

import (
	"context"
	"sync"
	"time"

	"merry/internal/api"
	"merry/internal/document/model"
	"merry/pkg/logger"

	"github.com/benbjohnson/clock"
)

// State is the save-status machine: Saved → Unsaved → Saving → {Saved|Error}.
// Error is left only by an explicit RetrySave or a fresh edit.
type State int

const (
	StateSaved State = iota
	StateUnsaved
	StateSaving
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnsaved:
		return "unsaved"
	case StateSaving:
		return "saving"
	case StateError:
		return "error"
	default:
		return "saved"
	}
}

// API is the slice of the backend client the controller needs.
type API interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateDocument(ctx context.Context, id string, update api.DocumentUpdate) (*model.Document, error)
	Export(ctx context.Context, id, format string) ([]byte, error)
}

// Config tunes the controller's timing. Zero values fall back to the
// production defaults.
type Config struct {
	Debounce    time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
	Clock       clock.Clock
}

// Controller coordinates local mutations and persistence for one document.
type Controller struct {
	mu          sync.Mutex
	api         API
	clock       clock.Clock
	debounce    time.Duration
	retryDelay  time.Duration
	maxAttempts int

	docID       string
	doc         *model.Document
	seq         uint64
	state       State
	attempts    int
	lastSavedAt time.Time
	lastErr     error
	timer       *clock.Timer
	closed      bool
	onState     []func(State)
}

func New(backend API, docID string, cfg Config) *Controller {
	if cfg.Debounce == 0 {
		cfg.Debounce = 1500 * time.Millisecond
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Controller{
		api:         backend,
		clock:       cfg.Clock,
		debounce:    cfg.Debounce,
		retryDelay:  cfg.RetryDelay,
		maxAttempts: cfg.MaxAttempts,
		docID:       docID,
		state:       StateSaved,
	}
}

// OnStateChange registers a callback invoked on every state transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = append(c.onState, fn)
	c.mu.Unlock()
}

// Load fetches the document. Load failures are surfaced as-is and never
// auto-retried; only save failures get a retry loop.
func (c *Controller) Load(ctx context.Context) (*model.Document, error) {
	doc, err := c.api.GetDocument(ctx, c.docID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()
	return doc, nil
}

// Document returns the authoritative in-memory document.
func (c *Controller) Document() *model.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// State returns the current save status.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dirty reports whether edits exist that have not started saving yet. While
// true, the host must intercept navigation so the edits are not lost.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateUnsaved
}

// LastSavedAt returns when the last successful save completed.
func (c *Controller) LastSavedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSavedAt
}

// Err returns the error that moved the controller into StateError, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ApplyUpdate replaces the authoritative document and restarts the debounce
// timer. Bursts of edits collapse into one save carrying the final state.
func (c *Controller) ApplyUpdate(doc *model.Document) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.doc = doc
	c.seq++
	notify := c.transitionLocked(StateUnsaved)
	c.stopTimerLocked()
	c.timer = c.clock.AfterFunc(c.debounce, c.timerSave)
	c.mu.Unlock()
	notify()
}

// Flush cancels any pending debounce and saves immediately. Called before
// navigating away so edits inside the debounce window still persist.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.stopTimerLocked()
	dirty := c.state == StateUnsaved
	c.mu.Unlock()
	if !dirty {
		return nil
	}
	return c.save(ctx)
}

// RetrySave re-enters the save loop after a surfaced failure. The attempt
// counter was reset on entering StateError, so this starts a fresh sequence.
func (c *Controller) RetrySave(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateError {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.save(ctx)
}

// Export requests a rendered artifact. One-shot: failures surface to the user
// and are never retried automatically.
func (c *Controller) Export(ctx context.Context, format string) ([]byte, error) {
	return c.api.Export(ctx, c.docID, format)
}

// Close tears the session down: pending timers are cancelled and in-flight
// completions become no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

func (c *Controller) timerSave() {
	if err := c.save(context.Background()); err != nil {
		logger.Sugar.Errorf("Autosave of document %s failed: %v", c.docID, err)
	}
}

// save PUTs the live authoritative document. Edits that land while a save is
// in flight are not lost: they bump seq, re-arm the debounce, and keep the
// state at unsaved when this save returns.
func (c *Controller) save(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.doc == nil {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	doc := c.doc
	seq := c.seq
	notify := c.transitionLocked(StateSaving)
	c.mu.Unlock()
	notify()

	update := api.DocumentUpdate{Title: &doc.Title, Sections: doc.Sections, Sheets: doc.Sheets}
	updated, err := c.api.UpdateDocument(ctx, c.docID, update)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.attempts++
		if c.attempts < c.maxAttempts {
			delay := time.Duration(c.attempts) * c.retryDelay
			logger.Sugar.Infof("Save of document %s failed, retrying in %s: %v", c.docID, delay, err)
			c.stopTimerLocked()
			c.timer = c.clock.AfterFunc(delay, c.timerSave)
			c.mu.Unlock()
			return err
		}
		// Bound reached: surface the failure and reset so the next edit (or a
		// manual retry) starts a fresh sequence.
		c.attempts = 0
		c.lastErr = err
		notify = c.transitionLocked(StateError)
		c.mu.Unlock()
		notify()
		return err
	}

	c.attempts = 0
	c.lastErr = nil
	c.lastSavedAt = c.clock.Now()
	if c.seq == seq {
		if updated != nil {
			c.doc.Meta = updated.Meta
		}
		notify = c.transitionLocked(StateSaved)
	} else {
		// A newer edit arrived mid-save; its debounce cycle will pick it up.
		notify = func() {}
	}
	c.mu.Unlock()
	notify()
	return nil
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) transitionLocked(state State) func() {
	if c.state == state {
		return func() {}
	}
	c.state = state
	callbacks := append(([]func(State))(nil), c.onState...)
	return func() {
		for _, fn := range callbacks {
			fn(state)
		}
	}
}
