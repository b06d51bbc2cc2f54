// Package library manages the user's document list with optimistic deletes.
package library

import (
	"context"
	"sort"
	"sync"

	"merry/internal/document/model"
	"merry/pkg/logger"
)

// API is the slice of the backend client the library uses.
type API interface {
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Library holds the locally known document list, newest first.
type Library struct {
	mu   sync.Mutex
	api  API
	docs []*model.Document
}

func New(backend API) *Library {
	return &Library{api: backend}
}

// Refresh reloads the list from the backend.
func (l *Library) Refresh(ctx context.Context) error {
	docs, err := l.api.ListDocuments(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.docs = docs
	l.sortLocked()
	l.mu.Unlock()
	return nil
}

// Documents returns the current list.
func (l *Library) Documents() []*model.Document {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.Document(nil), l.docs...)
}

// Delete removes a document optimistically: the entry disappears from the
// local list immediately, and is restored (and the list re-sorted) if the
// backend call fails.
func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	var removed *model.Document
	for i, d := range l.docs {
		if d.ID == id {
			removed = d
			l.docs = append(l.docs[:i], l.docs[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	err := l.api.DeleteDocument(ctx, id)
	if err != nil && removed != nil {
		logger.Sugar.Infof("Delete of document %s failed, restoring list entry: %v", id, err)
		l.mu.Lock()
		l.docs = append(l.docs, removed)
		l.sortLocked()
		l.mu.Unlock()
	}
	return err
}

// sortLocked orders by last update, newest first. Timestamps are ISO-8601
// strings, so lexicographic order is chronological order.
func (l *Library) sortLocked() {
	sort.SliceStable(l.docs, func(i, j int) bool {
		return l.docs[i].Meta.UpdatedAt > l.docs[j].Meta.UpdatedAt
	})
}
