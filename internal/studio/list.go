package studio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/infobmscommunity-ai/kohen-caption/internal/apperr"
)

// ListBackend is the persistence a ListScreen drives for one record kind.
// T is the stored record, D the editable draft.
type ListBackend[T, D any] struct {
	Collection string
	List       func(ctx context.Context, userID string) ([]T, error)
	Create     func(ctx context.Context, userID string, draft D) (T, error)
	Update     func(ctx context.Context, userID, id string, draft D) error
	Delete     func(ctx context.Context, userID, id string) error
	ID         func(T) string
	Normalize  func(D) D // optional, applied before validation
}

// ListState is the view state of a list screen.
type ListState[T any] struct {
	Items     []T    `json:"items"`
	Loading   bool   `json:"loading"`
	EditingID string `json:"editing_id,omitempty"`
	Notice    string `json:"notice,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

type listActionKind int

const (
	listLoadStarted listActionKind = iota
	listLoaded
	listLoadFailed
	listEditStarted
	listEditCancelled
	listSaved
	listFailed
)

type listAction[T any] struct {
	kind   listActionKind
	items  []T
	id     string
	notice string
	err    *apperr.Error
}

// reduceList returns the state after applying action. It never mutates s.
func reduceList[T any](s ListState[T], a listAction[T]) ListState[T] {
	switch a.kind {
	case listLoadStarted:
		s.Loading = true
	case listLoaded:
		s.Loading = false
		s.Items = append(make([]T, 0, len(a.items)), a.items...)
		s.Error, s.ErrorCode = "", ""
	case listLoadFailed:
		s.Loading = false
		s.Notice = ""
		s.Error, s.ErrorCode = a.err.Message, a.err.Code
	case listEditStarted:
		s.EditingID = a.id
		s.Notice, s.Error, s.ErrorCode = "", "", ""
	case listEditCancelled:
		s.EditingID = ""
		s.Error, s.ErrorCode = "", ""
	case listSaved:
		s.EditingID = ""
		s.Notice = a.notice
		s.Error, s.ErrorCode = "", ""
	case listFailed:
		s.Notice = ""
		s.Error, s.ErrorCode = a.err.Message, a.err.Code
	}
	return s
}

// ListScreen is the controller shared by the catalog, strategy and brain
// screens. After every successful write it re-fetches the whole list.
type ListScreen[T, D any] struct {
	backend  ListBackend[T, D]
	messages Messages
	userID   string
	validate *validator.Validate

	mu    sync.Mutex
	state ListState[T]
}

func NewListScreen[T, D any](backend ListBackend[T, D], messages Messages, userID string) *ListScreen[T, D] {
	return &ListScreen[T, D]{
		backend:  backend,
		messages: messages,
		userID:   userID,
		validate: validator.New(),
		state:    ListState[T]{Items: []T{}},
	}
}

// State returns a snapshot of the view state.
func (l *ListScreen[T, D]) State() ListState[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	s.Items = append(make([]T, 0, len(s.Items)), s.Items...)
	return s
}

// Find returns the loaded record with the given id.
func (l *ListScreen[T, D]) Find(id string) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return findByID(l.state.Items, id, l.backend.ID)
}

// DeletePrompt is the confirmation question shown before Delete.
func (l *ListScreen[T, D]) DeletePrompt() string {
	return l.messages.DeletePrompt
}

func (l *ListScreen[T, D]) dispatch(a listAction[T]) {
	l.mu.Lock()
	l.state = reduceList(l.state, a)
	l.mu.Unlock()
}

// Mount loads the list.
func (l *ListScreen[T, D]) Mount(ctx context.Context) error {
	return l.refresh(ctx)
}

func (l *ListScreen[T, D]) refresh(ctx context.Context) error {
	l.dispatch(listAction[T]{kind: listLoadStarted})
	items, err := l.backend.List(ctx, l.userID)
	if err != nil {
		aerr := persistenceErr(err, l.messages.Resource, MsgLoadFailed)
		slog.Error("listing records failed", "collection", l.backend.Collection, "user_id", l.userID, "error", err)
		l.dispatch(listAction[T]{kind: listLoadFailed, err: aerr})
		return aerr
	}
	l.dispatch(listAction[T]{kind: listLoaded, items: items})
	return nil
}

// Edit makes id the target of the next Submit.
func (l *ListScreen[T, D]) Edit(id string) {
	l.dispatch(listAction[T]{kind: listEditStarted, id: id})
}

func (l *ListScreen[T, D]) CancelEdit() {
	l.dispatch(listAction[T]{kind: listEditCancelled})
}

// Submit validates draft, then creates a record, or updates the edit target
// when one is set. It returns the id of the written record.
func (l *ListScreen[T, D]) Submit(ctx context.Context, draft D) (string, error) {
	if l.backend.Normalize != nil {
		draft = l.backend.Normalize(draft)
	}
	if err := l.validate.Struct(draft); err != nil {
		aerr := validationErr(err)
		l.dispatch(listAction[T]{kind: listFailed, err: aerr})
		return "", aerr
	}

	l.mu.Lock()
	editing := l.state.EditingID
	l.mu.Unlock()

	var id, notice string
	if editing == "" {
		rec, err := l.backend.Create(ctx, l.userID, draft)
		if err != nil {
			return "", l.fail(err, l.messages.SaveFailed, "creating record failed")
		}
		id, notice = l.backend.ID(rec), l.messages.Created
	} else {
		if err := l.backend.Update(ctx, l.userID, editing, draft); err != nil {
			return "", l.fail(err, l.messages.SaveFailed, "updating record failed")
		}
		id, notice = editing, l.messages.Updated
	}

	slog.Info("record saved", "collection", l.backend.Collection, "user_id", l.userID, "id", id)
	l.dispatch(listAction[T]{kind: listSaved, notice: notice})
	// The write succeeded; a failed re-fetch is reported in state only.
	_ = l.refresh(ctx)
	return id, nil
}

// Delete removes id once the user confirmed the prompt. Without
// confirmation it does nothing.
func (l *ListScreen[T, D]) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return nil
	}
	if err := l.backend.Delete(ctx, l.userID, id); err != nil {
		return l.fail(err, l.messages.DeleteFailed, "deleting record failed")
	}
	slog.Info("record deleted", "collection", l.backend.Collection, "user_id", l.userID, "id", id)

	l.mu.Lock()
	clearEdit := l.state.EditingID == id
	l.mu.Unlock()
	if clearEdit {
		l.dispatch(listAction[T]{kind: listEditCancelled})
	}
	_ = l.refresh(ctx)
	return nil
}

func (l *ListScreen[T, D]) fail(err error, message, logMsg string) error {
	aerr := persistenceErr(err, l.messages.Resource, message)
	slog.Error(logMsg, "collection", l.backend.Collection, "user_id", l.userID, "error", err)
	l.dispatch(listAction[T]{kind: listFailed, err: aerr})
	return aerr
}
