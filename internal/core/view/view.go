// Package view holds the client-side cache of the signed-in owner's
// bookmarks. The cache is kept consistent with the remote store through the
// change feed: user actions only issue remote calls, and the collection is
// mutated by feed events (plus, under ApplyConfirmed, by confirmed results).
package view

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/core/feed"
	"github.com/seckatie/smartbookmark/internal/logger"
)

var (
	// ErrUnauthenticated means there is no session; the caller should send
	// the user to sign-in.
	ErrUnauthenticated = errors.New("view: not signed in")
	// ErrValidationRejected is returned by Add for an empty title or URL.
	// No remote call is made.
	ErrValidationRejected = errors.New("view: title and url are required")
	// ErrUnknownRecord is returned by BeginEdit for an id not in the collection.
	ErrUnknownRecord = errors.New("view: no such bookmark")
	// ErrNotEditing is returned by CommitEdit when id is not the edit target.
	ErrNotEditing = errors.New("view: bookmark is not being edited")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("view: closed")
)

// Session identifies the signed-in owner.
type Session struct {
	OwnerID string
	Email   string
	Token   string
}

// Store is the remote collection store.
type Store interface {
	ListByOwner(ctx context.Context, ownerID string) ([]db.Bookmark, error)
	Create(ctx context.Context, nb db.NewBookmark) (db.Bookmark, error)
	Update(ctx context.Context, id string, patch db.BookmarkPatch) error
	Delete(ctx context.Context, id string) error
}

// Subscription is a live feed subscription.
type Subscription interface {
	Close()
}

// Feed opens change subscriptions scoped to one owner.
type Feed interface {
	Subscribe(ctx context.Context, ownerID string, onEvent func(feed.Event)) (Subscription, error)
}

// Sessions reports the current session, if any.
type Sessions interface {
	CurrentSession(ctx context.Context) (Session, bool)
}

// Policy decides whether confirmed remote writes touch the collection
// directly or only through the feed.
type Policy int

const (
	// FeedOnly treats the feed as the single source of truth: a write is
	// pending until the feed echoes it back. If the feed is down, successful
	// writes do not show up until the next Load.
	FeedOnly Policy = iota
	// ApplyConfirmed additionally applies the confirmed result of a
	// successful create, update or delete. The feed echo is then absorbed
	// idempotently. A confirmation is dropped if the feed has already
	// delivered an event for the same id since the call was made.
	ApplyConfirmed
)

func (p Policy) String() string {
	if p == ApplyConfirmed {
		return "apply-confirmed"
	}
	return "feed-only"
}

// ParsePolicy reads the configuration spelling of a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "feed-only":
		return FeedOnly, nil
	case "apply-confirmed":
		return ApplyConfirmed, nil
	default:
		return FeedOnly, fmt.Errorf("unknown sync policy %q", s)
	}
}

type Options struct {
	Policy Policy
	// Notify receives one Notice per completed remote call.
	Notify func(Notice)
	// OnChange is called after any change to the collection, the query or
	// the edit state. It may be called from feed and completion goroutines.
	OnChange func()
	// CallTimeout bounds each remote call. Zero means no timeout.
	CallTimeout time.Duration
	Log         logger.Logger
}

// EditState describes the record being edited, if any.
type EditState struct {
	ID     string
	Title  string
	URL    string
	Saving bool
}

// View is the single owner of the cached collection. All access goes through
// its methods; each one runs to completion under one lock, so feed events
// and user actions never interleave partially.
type View struct {
	store Store
	feed  Feed
	opts  Options
	log   logger.Logger

	mu         sync.Mutex
	ownerID    string
	collection []db.Bookmark
	loading    bool
	loadErr    error        // set when the last load failed; nothing is shown until a load succeeds
	pending    []feed.Event // feed events received while loading
	generation uint64       // bumped by every load
	feedSeen   map[string]uint64
	query      string
	edit       *EditState
	inputTitle string
	inputURL   string
	sub        Subscription
	closed     bool

	inflight sync.WaitGroup
}

func New(store Store, f Feed, opts Options) *View {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	return &View{
		store:   store,
		feed:    f,
		opts:    opts,
		log:     log,
		loading:  true,
		feedSeen: make(map[string]uint64),
	}
}

// Start looks up the current session, then loads and subscribes for its
// owner. It returns ErrUnauthenticated when there is no session.
func (v *View) Start(ctx context.Context, sessions Sessions) error {
	s, ok := sessions.CurrentSession(ctx)
	if !ok || s.OwnerID == "" {
		return ErrUnauthenticated
	}
	return v.Open(ctx, s.OwnerID)
}

// Open subscribes to ownerID's feed and loads the collection. Events that
// arrive before the load finishes are held back and replayed on top of the
// loaded snapshot.
func (v *View) Open(ctx context.Context, ownerID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.ownerID = ownerID
	v.loading = true
	v.loadErr = nil
	old := v.sub
	v.sub = nil
	v.mu.Unlock()

	if old != nil {
		old.Close()
	}

	sub, err := v.feed.Subscribe(ctx, ownerID, v.OnFeedEvent)
	if err != nil {
		v.mu.Lock()
		v.loading = false
		v.loadErr = err
		v.mu.Unlock()
		v.changed()
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		sub.Close()
		return ErrClosed
	}
	v.sub = sub
	v.mu.Unlock()

	return v.Load(ctx, ownerID)
}

// Load fetches ownerID's bookmarks and replaces the collection wholesale.
// Until it returns the view is loading and its projection is empty. If the
// fetch fails the view stays empty, and feed events are dropped, until a
// later Load succeeds.
func (v *View) Load(ctx context.Context, ownerID string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.ownerID = ownerID
	v.loading = true
	v.loadErr = nil
	v.generation++
	clear(v.feedSeen)
	v.mu.Unlock()
	v.changed()

	list, err := v.store.ListByOwner(ctx, ownerID)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		v.loading = false
		v.loadErr = err
		v.pending = nil
		v.mu.Unlock()
		v.log.Warn("failed to load bookmarks", logger.String("owner_id", ownerID), logger.Error(err))
		v.notify(newNotice(OpLoad, "", err))
		v.changed()
		return err
	}

	v.collection = v.collection[:0]
	seen := make(map[string]struct{}, len(list))
	for _, b := range list {
		if _, dup := seen[b.ID]; dup {
			continue
		}
		seen[b.ID] = struct{}{}
		v.collection = append(v.collection, b)
	}
	v.loading = false
	pending := v.pending
	v.pending = nil
	for _, ev := range pending {
		v.apply(ev)
	}
	v.mu.Unlock()

	v.log.Debug("bookmarks loaded",
		logger.String("owner_id", ownerID),
		logger.Int("count", len(list)),
		logger.Int("replayed", len(pending)))
	v.changed()
	return nil
}

// OnFeedEvent applies one change notification. It never fails: malformed
// events and events for unknown ids are ignored.
func (v *View) OnFeedEvent(ev feed.Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if ev.ID != "" {
		v.feedSeen[ev.ID]++
	}
	if v.loading {
		v.pending = append(v.pending, ev)
		v.mu.Unlock()
		return
	}
	if v.loadErr != nil {
		v.mu.Unlock()
		return
	}
	mutated := v.apply(ev)
	v.mu.Unlock()

	if mutated {
		v.changed()
	}
}

// apply must be called with v.mu held. It reports whether the collection
// changed.
func (v *View) apply(ev feed.Event) bool {
	if !ev.Valid() {
		v.log.Debug("ignoring malformed feed event", logger.String("id", ev.ID), logger.String("kind", ev.Kind.String()))
		return false
	}
	if ev.Kind != feed.Delete && ev.Bookmark.OwnerID != "" && ev.Bookmark.OwnerID != v.ownerID {
		return false
	}

	idx := v.indexOf(ev.ID)
	switch ev.Kind {
	case feed.Insert:
		if idx >= 0 {
			return false
		}
		v.insert(*ev.Bookmark)
		return true
	case feed.Update:
		if idx < 0 {
			return false
		}
		v.collection[idx] = *ev.Bookmark
		return true
	case feed.Delete:
		if idx < 0 {
			return false
		}
		v.collection = slices.Delete(v.collection, idx, idx+1)
		return true
	}
	return false
}

func (v *View) indexOf(id string) int {
	return slices.IndexFunc(v.collection, func(b db.Bookmark) bool { return b.ID == id })
}

// insert places b before the first record that is not newer than it, so a
// fresh record lands on top and order stays createdAt descending.
func (v *View) insert(b db.Bookmark) {
	i := slices.IndexFunc(v.collection, func(c db.Bookmark) bool { return !c.CreatedAt.After(b.CreatedAt) })
	if i < 0 {
		i = len(v.collection)
	}
	v.collection = slices.Insert(v.collection, i, b)
}

// watermark records how far the feed had got for id when a remote call was
// dispatched.
type watermark struct {
	generation uint64
	seen       uint64
}

// mark must be called with v.mu held.
func (v *View) mark(id string) watermark {
	return watermark{generation: v.generation, seen: v.feedSeen[id]}
}

// confirmable reports whether a confirmed result for id may still be applied:
// the view is showing a loaded snapshot and no feed event for id has arrived
// since m was taken. Once the feed has spoken for an id it is authoritative.
// It must be called with v.mu held.
func (v *View) confirmable(id string, m watermark) bool {
	return v.opts.Policy == ApplyConfirmed &&
		!v.loading && v.loadErr == nil &&
		v.generation == m.generation &&
		v.feedSeen[id] == m.seen
}

// SetInputs records the add form's current values.
func (v *View) SetInputs(title, url string) {
	v.mu.Lock()
	v.inputTitle, v.inputURL = title, url
	v.mu.Unlock()
}

// Inputs returns the add form's current values.
func (v *View) Inputs() (title, url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inputTitle, v.inputURL
}

// Add asks the store to create a bookmark. An empty title or url returns
// ErrValidationRejected without any remote call. The record itself only
// appears once the feed delivers the insert (or, under ApplyConfirmed, once
// the store confirms it). On success the add inputs are cleared.
func (v *View) Add(title, url string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if title == "" || url == "" {
		v.mu.Unlock()
		return ErrValidationRejected
	}
	if v.ownerID == "" {
		v.mu.Unlock()
		return ErrUnauthenticated
	}
	nb := db.NewBookmark{OwnerID: v.ownerID, Title: title, URL: url}
	// The id is not known yet, so nothing has been seen for it.
	m := watermark{generation: v.generation}
	v.mu.Unlock()

	v.dispatch(func(ctx context.Context) {
		created, err := v.store.Create(ctx, nb)

		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		if err == nil {
			if v.confirmable(created.ID, m) {
				v.apply(feed.Event{Kind: feed.Insert, ID: created.ID, Bookmark: &created})
			}
			v.inputTitle, v.inputURL = "", ""
		}
		v.mu.Unlock()

		v.notify(newNotice(OpAdd, created.ID, err))
		if err == nil {
			v.changed()
		}
	})
	return nil
}

// Remove asks the store to delete id. The record leaves the collection when
// the feed delivers the delete (or, under ApplyConfirmed, on confirmation).
func (v *View) Remove(id string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.ownerID == "" {
		v.mu.Unlock()
		return ErrUnauthenticated
	}
	m := v.mark(id)
	v.mu.Unlock()

	v.dispatch(func(ctx context.Context) {
		err := v.store.Delete(ctx, id)

		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		mutated := false
		if err == nil && v.confirmable(id, m) {
			mutated = v.apply(feed.Event{Kind: feed.Delete, ID: id})
		}
		v.mu.Unlock()

		v.notify(newNotice(OpRemove, id, err))
		if mutated {
			v.changed()
		}
	})
	return nil
}

// BeginEdit makes id the edit target and seeds the drafts from the record.
// Any previous unsaved edit is silently abandoned.
func (v *View) BeginEdit(id string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	idx := v.indexOf(id)
	if !v.ready() || idx < 0 {
		v.mu.Unlock()
		return ErrUnknownRecord
	}
	b := v.collection[idx]
	v.edit = &EditState{ID: b.ID, Title: b.Title, URL: b.URL}
	v.mu.Unlock()

	v.changed()
	return nil
}

// SetDrafts replaces the draft strings of the current edit.
func (v *View) SetDrafts(title, url string) error {
	v.mu.Lock()
	if v.edit == nil {
		v.mu.Unlock()
		return ErrNotEditing
	}
	v.edit.Title, v.edit.URL = title, url
	v.mu.Unlock()
	return nil
}

// CancelEdit leaves edit mode and discards the drafts. No remote call is made.
func (v *View) CancelEdit() {
	v.mu.Lock()
	hadEdit := v.edit != nil
	v.edit = nil
	v.mu.Unlock()

	if hadEdit {
		v.changed()
	}
}

// CommitEdit sends the drafts of id to the store. On success edit mode ends;
// the visible change arrives through the feed. On failure edit mode stays
// open so the user can retry.
func (v *View) CommitEdit(id string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.edit == nil || v.edit.ID != id {
		v.mu.Unlock()
		return ErrNotEditing
	}
	patch := db.BookmarkPatch{Title: v.edit.Title, URL: v.edit.URL}
	v.edit.Saving = true
	m := v.mark(id)
	v.mu.Unlock()
	v.changed()

	v.dispatch(func(ctx context.Context) {
		err := v.store.Update(ctx, id, patch)

		v.mu.Lock()
		if v.closed {
			v.mu.Unlock()
			return
		}
		if v.edit != nil && v.edit.ID == id {
			if err == nil {
				v.edit = nil
			} else {
				v.edit.Saving = false
			}
		}
		if err == nil && v.confirmable(id, m) {
			if idx := v.indexOf(id); idx >= 0 {
				b := v.collection[idx]
				b.Title, b.URL = patch.Title, patch.URL
				v.apply(feed.Event{Kind: feed.Update, ID: id, Bookmark: &b})
			}
		}
		v.mu.Unlock()

		v.notify(newNotice(OpEdit, id, err))
		v.changed()
	})
	return nil
}

// Editing returns the current edit state.
func (v *View) Editing() (EditState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.edit == nil {
		return EditState{}, false
	}
	return *v.edit, true
}

// SetQuery changes the search string. It only affects Projection.
func (v *View) SetQuery(text string) {
	v.mu.Lock()
	v.query = text
	v.mu.Unlock()
	v.changed()
}

func (v *View) Query() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query
}

// ready must be called with v.mu held.
func (v *View) ready() bool {
	return !v.loading && v.loadErr == nil
}

// Projection returns the bookmarks matching the current query, newest
// first. It is empty while loading and after a failed load.
func (v *View) Projection() []db.Bookmark {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.ready() {
		return []db.Bookmark{}
	}
	return Filter(v.collection, v.query)
}

// All returns a copy of the unfiltered collection. Like Projection it is
// empty until a load has succeeded.
func (v *View) All() []db.Bookmark {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.ready() {
		return []db.Bookmark{}
	}
	return slices.Clone(v.collection)
}

// Len is the size of the unfiltered collection, zero until a load has
// succeeded.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.ready() {
		return 0
	}
	return len(v.collection)
}

func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// LoadErr returns the error of the last load, or nil once one has succeeded.
func (v *View) LoadErr() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadErr
}

func (v *View) OwnerID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ownerID
}

// Close releases the feed subscription. In-flight remote calls are not
// aborted, but their outcomes are ignored.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	sub := v.sub
	v.sub = nil
	v.pending = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Wait blocks until every dispatched remote call has completed.
func (v *View) Wait() {
	v.inflight.Wait()
}

func (v *View) dispatch(call func(ctx context.Context)) {
	v.inflight.Add(1)
	go func() {
		defer v.inflight.Done()
		ctx := context.Background()
		if v.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, v.opts.CallTimeout)
			defer cancel()
		}
		call(ctx)
	}()
}

func (v *View) notify(n Notice) {
	if n.Level == Failure {
		v.log.Warn("remote call failed",
			logger.String("op", n.Op.String()),
			logger.String("id", n.ID),
			logger.Error(n.Err))
	}
	if v.opts.Notify != nil {
		v.opts.Notify(n)
	}
}

func (v *View) changed() {
	if v.opts.OnChange != nil {
		v.opts.OnChange()
	}
}
