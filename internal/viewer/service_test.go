package viewer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/invoice-review/internal/reviewsession"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/render"
)

type fakeObjects struct {
	files     map[string][]byte
	downloads int
}

func (f *fakeObjects) Download(ctx context.Context, objectPath string) ([]byte, error) {
	f.downloads++
	data, ok := f.files[objectPath]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeDoc struct {
	pages    int
	rendered []int
	closed   bool
}

func (d *fakeDoc) PageCount() int      { return d.pages }
func (d *fakeDoc) ContentType() string { return "application/pdf" }
func (d *fakeDoc) Close() error        { d.closed = true; return nil }
func (d *fakeDoc) RenderPNG(page int, scale float64) ([]byte, error) {
	if page < 0 || page >= d.pages {
		return nil, render.ErrPageOutOfRange
	}
	d.rendered = append(d.rendered, page)
	return []byte{byte(page)}, nil
}

// pageOpener treats the first byte of the object as its page count.
func pageOpener(opened *[]*fakeDoc) Opener {
	return func(data []byte) (render.Document, error) {
		if len(data) == 0 || data[0] == 0 {
			return nil, errors.New("corrupt document")
		}
		doc := &fakeDoc{pages: int(data[0])}
		*opened = append(*opened, doc)
		return doc, nil
	}
}

type memorySessions struct {
	states map[string]reviewsession.State
}

func (m *memorySessions) Load(ctx context.Context, sessionID string) (*reviewsession.State, error) {
	if state, ok := m.states[sessionID]; ok {
		return &state, nil
	}
	return reviewsession.New(sessionID), nil
}

func (m *memorySessions) Update(ctx context.Context, sessionID string, fn func(*reviewsession.State) error) (*reviewsession.State, error) {
	state, _ := m.Load(ctx, sessionID)
	if err := fn(state); err != nil {
		return nil, err
	}
	m.states[sessionID] = *state
	return state, nil
}

type fixture struct {
	svc      Service
	objects  *fakeObjects
	sessions *memorySessions
	opened   []*fakeDoc
}

func newFixture(t *testing.T, cacheSize int) *fixture {
	t.Helper()
	f := &fixture{
		objects: &fakeObjects{files: map[string][]byte{
			"invoices/three.pdf": {3},
			"invoices/one.png":   {1},
			"invoices/bad.pdf":   {0},
		}},
		sessions: &memorySessions{states: map[string]reviewsession.State{}},
	}
	svc, err := NewService(ServiceParams{
		Objects:     f.objects,
		Sessions:    f.sessions,
		Open:        pageOpener(&f.opened),
		StagePrefix: "invoices",
		CacheSize:   cacheSize,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func TestLoadOpensAtFirstPageAndSkipsReload(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()

	view, err := f.svc.Load(ctx, "s1", "three.pdf")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if view.Document.Path != "invoices/three.pdf" || view.Document.PageCount != 3 || view.Document.Page != 0 {
		t.Fatalf("unexpected view %+v", view.Document)
	}

	if _, err := f.svc.Next(ctx, "s1"); err != nil {
		t.Fatalf("next: %v", err)
	}
	view, err = f.svc.Load(ctx, "s1", "three.pdf")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if view.Document.Page != 1 {
		t.Fatalf("same path must keep the page, got %d", view.Document.Page)
	}
	if f.objects.downloads != 1 {
		t.Fatalf("same path must not be fetched again, downloads=%d", f.objects.downloads)
	}

	view, err = f.svc.Load(ctx, "s1", "one.png")
	if err != nil {
		t.Fatalf("load new: %v", err)
	}
	if view.Document.Page != 0 || view.Document.PageCount != 1 {
		t.Fatalf("new document must reset to page 0, got %+v", view.Document)
	}
}

func TestPagingThroughService(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}

	view, _ := f.svc.Prev(ctx, "s1")
	if view.Document.Page != 0 {
		t.Fatalf("prev at first page must stay at 0, got %d", view.Document.Page)
	}
	for i := 0; i < 5; i++ {
		view, _ = f.svc.Next(ctx, "s1")
	}
	if view.Document.Page != 2 {
		t.Fatalf("next must stop at the last page, got %d", view.Document.Page)
	}

	page, err := f.svc.Render(ctx, "s1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(page.PNG) != 1 || page.PNG[0] != 2 || page.Warning != "" {
		t.Fatalf("unexpected render %+v", page)
	}
}

func TestLoadWithoutFileName(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err := f.svc.Load(ctx, "s1", "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNoData || typed.Message() != NotUploadedMessage {
		t.Fatalf("expected not uploaded error, got %v", err)
	}
	view, _ := f.svc.State(ctx, "s1")
	if view.Loaded || view.Document.Path != "" {
		t.Fatalf("document state must be cleared, got %+v", view.Document)
	}
}

func TestLoadFailureClearsState(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}

	for _, name := range []string{"missing.pdf", "bad.pdf"} {
		_, err := f.svc.Load(ctx, "s1", name)
		if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			t.Fatalf("%s: expected dependency error, got %v", name, err)
		}
		view, _ := f.svc.State(ctx, "s1")
		if view.Loaded {
			t.Fatalf("%s: failed load must clear the document", name)
		}
	}
}

func TestRenderResetsOutOfRangePage(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	state := f.sessions.states["s1"]
	state.Document.Page = 7
	f.sessions.states["s1"] = state

	page, err := f.svc.Render(ctx, "s1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if page.Document.Page != 0 || page.Warning == "" {
		t.Fatalf("expected reset with warning, got %+v", page.View)
	}
	if f.sessions.states["s1"].Document.Page != 0 {
		t.Fatal("reset page must be persisted")
	}
}

func TestRenderRefetchesEvictedDocument(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := f.svc.Load(ctx, "s2", "one.png"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !f.opened[0].closed {
		t.Fatal("evicted document must be closed")
	}

	if _, err := f.svc.Render(ctx, "s1"); err != nil {
		t.Fatalf("render: %v", err)
	}
	if f.objects.downloads != 3 {
		t.Fatalf("expected evicted document to be re-fetched, downloads=%d", f.objects.downloads)
	}
}

func TestRenderWithoutDocument(t *testing.T) {
	f := newFixture(t, 4)
	_, err := f.svc.Render(context.Background(), "s1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNoData) {
		t.Fatalf("expected no data error, got %v", err)
	}
}

func TestReloadClosesReplacedDocument(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := f.svc.Load(ctx, "s1", "missing.pdf"); err == nil {
		t.Fatal("expected missing document to fail")
	}
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(f.opened) != 2 {
		t.Fatalf("expected two opened handles, got %d", len(f.opened))
	}
	if !f.opened[0].closed {
		t.Fatal("replaced document handle must be closed")
	}
	if f.opened[1].closed {
		t.Fatal("current document handle must stay open")
	}
}

type racingSessions struct {
	*memorySessions
	before func()
}

func (r *racingSessions) Update(ctx context.Context, sessionID string, fn func(*reviewsession.State) error) (*reviewsession.State, error) {
	if r.before != nil {
		r.before()
		r.before = nil
	}
	return r.memorySessions.Update(ctx, sessionID, fn)
}

func TestNextKeepsFieldsWrittenConcurrently(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	if _, err := f.svc.Load(ctx, "s1", "three.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	sessions := &racingSessions{memorySessions: f.sessions}
	sessions.before = func() {
		state := f.sessions.states["s1"]
		state.SetDraft(reviewsession.Draft{InvoiceID: "inv-1"})
		f.sessions.states["s1"] = state
	}
	svc, err := NewService(ServiceParams{
		Objects:     f.objects,
		Sessions:    sessions,
		Open:        pageOpener(&f.opened),
		StagePrefix: "invoices",
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	view, err := svc.Next(ctx, "s1")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if view.Document.Page != 1 {
		t.Fatalf("expected page 1, got %d", view.Document.Page)
	}
	state := f.sessions.states["s1"]
	if state.Draft == nil || state.Draft.InvoiceID != "inv-1" {
		t.Fatalf("draft written during paging was lost: %+v", state.Draft)
	}
}
