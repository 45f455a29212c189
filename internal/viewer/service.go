package viewer

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/invoice-review/internal/reviewsession"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/angelmondragon/invoice-review/pkg/render"
	"github.com/angelmondragon/invoice-review/pkg/storage/gcs"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	NotUploadedMessage = "The file you're looking for may not have been uploaded yet!"
	pageResetWarning   = "Page index was out of range and has been reset to the first page."
)

// ObjectReader fetches staged document bytes.
type ObjectReader interface {
	Download(ctx context.Context, objectPath string) ([]byte, error)
}

// SessionStore is the part of the review session store the viewer uses.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*reviewsession.State, error)
	Update(ctx context.Context, sessionID string, fn func(*reviewsession.State) error) (*reviewsession.State, error)
}

// Opener turns document bytes into a paged document.
type Opener func(data []byte) (render.Document, error)

// View is the viewer state returned to the reviewer.
type View struct {
	Document reviewsession.DocumentState `json:"document"`
	Loaded   bool                        `json:"loaded"`
	Warning  string                      `json:"warning,omitempty"`
}

// Page is one rendered page bitmap.
type Page struct {
	View
	PNG []byte `json:"-"`
}

// Service drives the per-session document viewer.
type Service interface {
	Load(ctx context.Context, sessionID, fileName string) (*View, error)
	State(ctx context.Context, sessionID string) (*View, error)
	Prev(ctx context.Context, sessionID string) (*View, error)
	Next(ctx context.Context, sessionID string) (*View, error)
	Render(ctx context.Context, sessionID string) (*Page, error)
}

type ServiceParams struct {
	Objects     ObjectReader
	Sessions    SessionStore
	Open        Opener
	StagePrefix string
	Scale       float64
	CacheSize   int
	Logger      *logger.Logger
	Metrics     *metrics.ReviewMetrics
}

type service struct {
	objects  ObjectReader
	sessions SessionStore
	open     Opener
	prefix   string
	scale    float64
	docs     *lru.Cache[string, render.Document]
	logg     *logger.Logger
	metrics  *metrics.ReviewMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Objects == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "object reader required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	open := params.Open
	if open == nil {
		open = render.Open
	}
	scale := params.Scale
	if scale <= 0 {
		scale = render.DefaultScale
	}
	size := params.CacheSize
	if size <= 0 {
		size = 64
	}
	docs, err := lru.NewWithEvict[string, render.Document](size, func(_ string, doc render.Document) {
		_ = doc.Close()
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create document cache")
	}
	return &service{
		objects:  params.Objects,
		sessions: params.Sessions,
		open:     open,
		prefix:   params.StagePrefix,
		scale:    scale,
		docs:     docs,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// Load resolves fileName in the staging area and opens it when it differs
// from the session's current document. A new document starts at page 0.
// Any failure clears the session's document.
func (s *service) Load(ctx context.Context, sessionID, fileName string) (*View, error) {
	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	objectPath := gcs.ObjectPath(s.prefix, fileName)
	if objectPath == "" {
		if _, err := s.clearDocument(ctx, sessionID, state.Document.Path); err != nil {
			return nil, err
		}
		s.metrics.DocumentLoad("not_uploaded")
		return nil, pkgerrors.New(pkgerrors.CodeNoData, NotUploadedMessage)
	}

	if state.Document.Path == objectPath && state.Document.Loaded() {
		s.metrics.DocumentLoad("unchanged")
		return viewOf(state.Document, ""), nil
	}

	doc, err := s.fetch(ctx, objectPath)
	if err != nil {
		if _, clearErr := s.clearDocument(ctx, sessionID, state.Document.Path); clearErr != nil {
			return nil, clearErr
		}
		s.metrics.DocumentLoad("error")
		s.logg.Error(s.logg.WithField(ctx, "object_path", objectPath), "document load failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("Error loading document from %s", objectPath))
	}
	s.cache(cacheKey(sessionID, objectPath), doc)

	name := strings.TrimSpace(fileName)
	state, err = s.update(ctx, sessionID, func(current *reviewsession.State) error {
		current.OpenDocument(objectPath, name, doc.PageCount())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.DocumentLoad("loaded")
	return viewOf(state.Document, ""), nil
}

// clearDocument resets the session document unless another request has
// opened a different one since seenPath was read.
func (s *service) clearDocument(ctx context.Context, sessionID, seenPath string) (*reviewsession.State, error) {
	return s.update(ctx, sessionID, func(current *reviewsession.State) error {
		if current.Document.Path == seenPath {
			current.ResetDocument()
		}
		return nil
	})
}

func (s *service) State(ctx context.Context, sessionID string) (*View, error) {
	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return viewOf(state.Document, ""), nil
}

func (s *service) Prev(ctx context.Context, sessionID string) (*View, error) {
	return s.step(ctx, sessionID, Prev)
}

func (s *service) Next(ctx context.Context, sessionID string) (*View, error) {
	return s.step(ctx, sessionID, Next)
}

func (s *service) step(ctx context.Context, sessionID string, move func(reviewsession.DocumentState) reviewsession.DocumentState) (*View, error) {
	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !state.Document.Loaded() {
		return viewOf(state.Document, ""), nil
	}
	if move(state.Document) == state.Document {
		return viewOf(state.Document, ""), nil
	}
	state, err = s.update(ctx, sessionID, func(current *reviewsession.State) error {
		if current.Document.Loaded() {
			current.Document = move(current.Document)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return viewOf(state.Document, ""), nil
}

// Render rasterizes the session's current page. An out-of-range page is
// reset to 0 and reported as a warning.
func (s *service) Render(ctx context.Context, sessionID string) (*Page, error) {
	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !state.Document.Loaded() {
		return nil, pkgerrors.New(pkgerrors.CodeNoData, NotUploadedMessage)
	}

	key := cacheKey(sessionID, state.Document.Path)
	doc, ok := s.docs.Get(key)
	if !ok {
		doc, err = s.fetch(ctx, state.Document.Path)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("Error loading document from %s", state.Document.Path))
		}
		s.cache(key, doc)
	}

	warning := ""
	if fixed, reset := reconcile(state.Document, doc.PageCount()); fixed != state.Document {
		if reset {
			warning = pageResetWarning
		}
		path := state.Document.Path
		state, err = s.update(ctx, sessionID, func(current *reviewsession.State) error {
			if current.Document.Path == path {
				current.Document, _ = reconcile(current.Document, doc.PageCount())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if state.Document.Path != path {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "document changed while rendering")
		}
	}

	png, err := doc.RenderPNG(state.Document.Page, s.scale)
	if err != nil {
		s.docs.Remove(key)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render page")
	}
	return &Page{View: *viewOf(state.Document, warning), PNG: png}, nil
}

func (s *service) fetch(ctx context.Context, objectPath string) (render.Document, error) {
	data, err := s.objects.Download(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	return s.open(data)
}

func (s *service) loadState(ctx context.Context, sessionID string) (*reviewsession.State, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review session")
	}
	return state, nil
}

func (s *service) update(ctx context.Context, sessionID string, fn func(*reviewsession.State) error) (*reviewsession.State, error) {
	state, err := s.sessions.Update(ctx, sessionID, fn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save review session")
	}
	return state, nil
}

// cache stores doc under key. A handle already cached under key is evicted
// first so it gets closed.
func (s *service) cache(key string, doc render.Document) {
	s.docs.Remove(key)
	s.docs.Add(key, doc)
}

// reconcile syncs the stored page count with the open document and guards
// the page index.
func reconcile(doc reviewsession.DocumentState, pages int) (reviewsession.DocumentState, bool) {
	doc.PageCount = pages
	return Guard(doc)
}

func viewOf(doc reviewsession.DocumentState, warning string) *View {
	return &View{Document: doc, Loaded: doc.Loaded(), Warning: warning}
}

func cacheKey(sessionID, objectPath string) string {
	return sessionID + "|" + objectPath
}
