package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"merry/internal/api"
	"merry/internal/document/model"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	updateCalls int
	lastUpdate  api.DocumentUpdate
	getFn       func(id string) (*model.Document, error)
	updateFn    func(id string, update api.DocumentUpdate) (*model.Document, error)
	exportFn    func(id, format string) ([]byte, error)
}

func (f *fakeBackend) GetDocument(_ context.Context, id string) (*model.Document, error) {
	return f.getFn(id)
}

func (f *fakeBackend) UpdateDocument(_ context.Context, id string, update api.DocumentUpdate) (*model.Document, error) {
	f.mu.Lock()
	f.updateCalls++
	f.lastUpdate = update
	fn := f.updateFn
	f.mu.Unlock()
	return fn(id, update)
}

func (f *fakeBackend) Export(_ context.Context, id, format string) ([]byte, error) {
	return f.exportFn(id, format)
}

func (f *fakeBackend) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updateCalls
}

func (f *fakeBackend) lastTitle() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastUpdate.Title == nil {
		return ""
	}
	return *f.lastUpdate.Title
}

func testDoc(title string) *model.Document {
	return &model.Document{
		ID:    "d1",
		Type:  model.TypeWord,
		Title: title,
		Sections: []model.Section{
			{ID: "s1", Heading: "Intro", Level: 1, Content: "Hello."},
		},
	}
}

type editorFixture struct {
	backend    *fakeBackend
	clock      *clock.Mock
	controller *Controller
}

func newEditorFixture(t *testing.T) *editorFixture {
	t.Helper()
	f := &editorFixture{
		backend: &fakeBackend{
			getFn: func(id string) (*model.Document, error) { return testDoc("Draft"), nil },
			updateFn: func(id string, update api.DocumentUpdate) (*model.Document, error) {
				doc := testDoc("Draft")
				if update.Title != nil {
					doc.Title = *update.Title
				}
				doc.Meta.Version = 2
				return doc, nil
			},
		},
		clock: clock.NewMock(),
	}
	f.controller = New(f.backend, "d1", Config{Clock: f.clock})
	_, err := f.controller.Load(context.Background())
	require.NoError(t, err)
	t.Cleanup(f.controller.Close)
	return f
}

func TestLoadFailureSurfacesWithoutRetry(t *testing.T) {
	backend := &fakeBackend{}
	calls := 0
	backend.getFn = func(id string) (*model.Document, error) {
		calls++
		return nil, errors.New("boom")
	}
	c := New(backend, "d1", Config{Clock: clock.NewMock()})

	_, err := c.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, calls, "loads are one-shot")
	assert.Equal(t, StateSaved, c.State())
}

func TestDebounceCoalescesBurstsIntoOneSave(t *testing.T) {
	f := newEditorFixture(t)

	for _, title := range []string{"Draft v2", "Draft v3", "Draft v4"} {
		f.controller.ApplyUpdate(testDoc(title))
	}
	assert.Equal(t, StateUnsaved, f.controller.State())
	assert.Zero(t, f.backend.updates(), "nothing persists inside the debounce window")

	f.clock.Add(1500 * time.Millisecond)

	assert.Equal(t, 1, f.backend.updates(), "a burst of edits is one save")
	assert.Equal(t, "Draft v4", f.backend.lastTitle(), "the save carries the final edit")
	assert.Equal(t, StateSaved, f.controller.State())
}

func TestEachEditRestartsTheDebounceTimer(t *testing.T) {
	f := newEditorFixture(t)

	f.controller.ApplyUpdate(testDoc("one"))
	f.clock.Add(1000 * time.Millisecond)
	f.controller.ApplyUpdate(testDoc("two"))
	f.clock.Add(1000 * time.Millisecond)
	assert.Zero(t, f.backend.updates(), "the second edit pushed the deadline out")

	f.clock.Add(500 * time.Millisecond)
	assert.Equal(t, 1, f.backend.updates())
	assert.Equal(t, "two", f.backend.lastTitle())
}

func TestSuccessfulSaveAdoptsServerMeta(t *testing.T) {
	f := newEditorFixture(t)

	f.controller.ApplyUpdate(testDoc("edited"))
	f.clock.Add(1500 * time.Millisecond)

	assert.Equal(t, StateSaved, f.controller.State())
	assert.Equal(t, 2, f.controller.Document().Meta.Version)
	assert.Equal(t, f.clock.Now(), f.controller.LastSavedAt())
	assert.False(t, f.controller.Dirty())
}

func TestSaveRetriesWithGrowingDelay(t *testing.T) {
	f := newEditorFixture(t)
	f.backend.updateFn = func(id string, update api.DocumentUpdate) (*model.Document, error) {
		return nil, errors.New("503")
	}

	f.controller.ApplyUpdate(testDoc("edited"))
	f.clock.Add(1500 * time.Millisecond)
	assert.Equal(t, 1, f.backend.updates())

	f.clock.Add(1999 * time.Millisecond)
	assert.Equal(t, 1, f.backend.updates(), "first retry waits the full delay")
	f.clock.Add(1 * time.Millisecond)
	assert.Equal(t, 2, f.backend.updates())

	f.clock.Add(3999 * time.Millisecond)
	assert.Equal(t, 2, f.backend.updates(), "second retry waits twice the delay")
	f.clock.Add(1 * time.Millisecond)
	assert.Equal(t, 3, f.backend.updates())

	assert.Equal(t, StateError, f.controller.State())
	assert.EqualError(t, f.controller.Err(), "503")

	f.clock.Add(time.Hour)
	assert.Equal(t, 3, f.backend.updates(), "the retry loop stops at the bound")
}

func TestFailureMidwayThenSuccess(t *testing.T) {
	f := newEditorFixture(t)
	fail := true
	f.backend.updateFn = func(id string, update api.DocumentUpdate) (*model.Document, error) {
		if fail {
			fail = false
			return nil, errors.New("503")
		}
		return testDoc("edited"), nil
	}

	f.controller.ApplyUpdate(testDoc("edited"))
	f.clock.Add(1500 * time.Millisecond)
	f.clock.Add(2000 * time.Millisecond)

	assert.Equal(t, 2, f.backend.updates())
	assert.Equal(t, StateSaved, f.controller.State())
	assert.NoError(t, f.controller.Err())
}

func TestRetrySaveAfterSurfacedError(t *testing.T) {
	f := newEditorFixture(t)
	f.backend.updateFn = func(id string, update api.DocumentUpdate) (*model.Document, error) {
		return nil, errors.New("503")
	}

	f.controller.ApplyUpdate(testDoc("edited"))
	f.clock.Add(1500 * time.Millisecond)
	f.clock.Add(2000 * time.Millisecond)
	f.clock.Add(4000 * time.Millisecond)
	require.Equal(t, StateError, f.controller.State())

	f.backend.updateFn = func(id string, update api.DocumentUpdate) (*model.Document, error) {
		return testDoc("edited"), nil
	}
	require.NoError(t, f.controller.RetrySave(context.Background()))

	assert.Equal(t, 4, f.backend.updates())
	assert.Equal(t, StateSaved, f.controller.State())
}

func TestRetrySaveIsANoOpOutsideErrorState(t *testing.T) {
	f := newEditorFixture(t)
	require.NoError(t, f.controller.RetrySave(context.Background()))
	assert.Zero(t, f.backend.updates())
}

func TestFlushSavesInsideDebounceWindow(t *testing.T) {
	f := newEditorFixture(t)

	f.controller.ApplyUpdate(testDoc("edited"))
	require.NoError(t, f.controller.Flush(context.Background()))

	assert.Equal(t, 1, f.backend.updates(), "flush does not wait out the debounce")
	assert.Equal(t, StateSaved, f.controller.State())

	f.clock.Add(1500 * time.Millisecond)
	assert.Equal(t, 1, f.backend.updates(), "the pending timer was cancelled")
}

func TestFlushWithNothingUnsavedDoesNothing(t *testing.T) {
	f := newEditorFixture(t)
	require.NoError(t, f.controller.Flush(context.Background()))
	assert.Zero(t, f.backend.updates())
}

func TestEditDuringSaveKeepsStateUnsaved(t *testing.T) {
	f := newEditorFixture(t)
	f.backend.updateFn = func(id string, update api.DocumentUpdate) (*model.Document, error) {
		// An edit lands while this save is in flight.
		f.controller.ApplyUpdate(testDoc("newer"))
		return testDoc(*update.Title), nil
	}

	f.controller.ApplyUpdate(testDoc("older"))
	f.clock.Add(1500 * time.Millisecond)

	assert.Equal(t, StateUnsaved, f.controller.State(), "a mid-save edit must not read as saved")
	assert.Equal(t, "newer", f.controller.Document().Title)

	f.backend.updateFn = func(id string, update api.DocumentUpdate) (*model.Document, error) {
		return testDoc(*update.Title), nil
	}
	f.clock.Add(1500 * time.Millisecond)
	assert.Equal(t, "newer", f.backend.lastTitle())
	assert.Equal(t, StateSaved, f.controller.State())
}

func TestCloseCancelsPendingWork(t *testing.T) {
	f := newEditorFixture(t)

	f.controller.ApplyUpdate(testDoc("edited"))
	f.controller.Close()
	f.clock.Add(time.Hour)

	assert.Zero(t, f.backend.updates())
	f.controller.ApplyUpdate(testDoc("after close"))
	f.clock.Add(time.Hour)
	assert.Zero(t, f.backend.updates(), "a closed controller ignores edits")
}

func TestStateChangeNotifications(t *testing.T) {
	f := newEditorFixture(t)

	var mu sync.Mutex
	var seen []State
	f.controller.OnStateChange(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	f.controller.ApplyUpdate(testDoc("edited"))
	f.clock.Add(1500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateUnsaved, StateSaving, StateSaved}, seen)
}

func TestExportPassesThrough(t *testing.T) {
	f := newEditorFixture(t)
	f.backend.exportFn = func(id, format string) ([]byte, error) {
		assert.Equal(t, "d1", id)
		assert.Equal(t, "pdf", format)
		return []byte("bytes"), nil
	}

	data, err := f.controller.Export(context.Background(), "pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)
}
