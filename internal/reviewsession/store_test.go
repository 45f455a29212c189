package reviewsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

type mockStore struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	getErr  error
	expires int
	mutates int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *mockStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires++
	m.ttls[key] = ttl
	return nil
}

// Mutate serializes read-modify-write under the mock's lock, like WATCH/MULTI
// without the retries.
func (m *mockStore) Mutate(ctx context.Context, key string, ttl time.Duration, fn func(string, bool) (string, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, found := m.data[key]
	next, err := fn(current, found)
	if err != nil {
		return err
	}
	m.data[key] = next
	m.ttls[key] = ttl
	m.mutates++
	return nil
}

func (m *mockStore) SessionKey(sessionID string) string {
	return "sess:" + sessionID
}

func newTestStore(kv *mockStore) *Store {
	return &Store{kv: kv, keyer: kv, ttl: time.Hour, now: time.Now}
}

func TestStoreRoundTripAndSlidingTTL(t *testing.T) {
	kv := newMockStore()
	store := newTestStore(kv)
	ctx := context.Background()

	fresh, err := store.Load(ctx, "jti-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fresh.SessionID != "jti-1" || fresh.ProcessedInvoiceID != "" {
		t.Fatalf("expected fresh state, got %+v", fresh)
	}

	_, err = store.Update(ctx, "jti-1", func(s *State) error {
		s.RememberSummary("INV-9", "tax differs", false, time.Now())
		s.OpenDocument("invoices/inv9.pdf", "inv9.pdf", 2)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if kv.mutates != 1 {
		t.Fatalf("expected one atomic write, got %d", kv.mutates)
	}
	if kv.ttls["sess:jti-1"] != time.Hour {
		t.Fatalf("expected ttl on write, got %v", kv.ttls["sess:jti-1"])
	}

	loaded, err := store.Load(ctx, "jti-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	summary, ok := loaded.Summary("INV-9")
	if !ok || summary.Text != "tax differs" {
		t.Fatalf("summary not persisted: %+v", loaded)
	}
	if loaded.Document.Path != "invoices/inv9.pdf" || loaded.Document.PageCount != 2 {
		t.Fatalf("document not persisted: %+v", loaded.Document)
	}
	if kv.expires != 1 {
		t.Fatalf("expected load to extend ttl once, got %d", kv.expires)
	}
}

func TestStoreSessionsAreIsolated(t *testing.T) {
	kv := newMockStore()
	store := newTestStore(kv)
	ctx := context.Background()

	if _, err := store.Update(ctx, "a", func(s *State) error {
		s.SelectInvoice("INV-1")
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	other, err := store.Load(ctx, "b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if other.ProcessedInvoiceID != "" {
		t.Fatalf("session b must not see session a state, got %q", other.ProcessedInvoiceID)
	}
}

func TestStoreUpdateSkipsSaveOnError(t *testing.T) {
	kv := newMockStore()
	store := newTestStore(kv)
	boom := errors.New("boom")

	_, err := store.Update(context.Background(), "a", func(s *State) error {
		s.SelectInvoice("INV-1")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if _, ok := kv.data["sess:a"]; ok {
		t.Fatal("state must not be saved when fn fails")
	}
}

func TestStoreLoadErrors(t *testing.T) {
	kv := newMockStore()
	store := newTestStore(kv)

	if _, err := store.Load(context.Background(), " "); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("expected ErrSessionRequired, got %v", err)
	}

	kv.getErr = errors.New("conn refused")
	if _, err := store.Load(context.Background(), "a"); err == nil {
		t.Fatal("expected redis error")
	}
}

func TestStoreDiscardsCorruptState(t *testing.T) {
	kv := newMockStore()
	kv.data["sess:a"] = "{not json"
	store := newTestStore(kv)

	state, err := store.Load(context.Background(), "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.SessionID != "a" || state.ProcessedInvoiceID != "" {
		t.Fatalf("expected fresh state, got %+v", state)
	}
}

func TestStoreUpdateKeepsFieldsWrittenByOtherRequests(t *testing.T) {
	kv := newMockStore()
	store := newTestStore(kv)
	ctx := context.Background()

	// Two requests of one session each loaded the state before either wrote.
	if _, err := store.Load(ctx, "s1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := store.Update(ctx, "s1", func(s *State) error {
		s.SetDraft(Draft{InvoiceID: "INV-1"})
		return nil
	}); err != nil {
		t.Fatalf("save draft: %v", err)
	}
	updated, err := store.Update(ctx, "s1", func(s *State) error {
		s.RememberSummary("INV-1", "quantity differs", false, time.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("remember summary: %v", err)
	}
	if _, ok := updated.DraftFor("INV-1"); !ok {
		t.Fatal("draft written by the other request was lost")
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "s1", func(s *State) error {
				s.Document.PageCount++
				return nil
			})
		}()
	}
	wg.Wait()
	final, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if final.Document.PageCount != 20 {
		t.Fatalf("expected 20 serialized updates, got %d", final.Document.PageCount)
	}
	if _, ok := final.Summary("INV-1"); !ok {
		t.Fatal("summary lost after concurrent updates")
	}
}

func TestStoreUpdateRequiresSession(t *testing.T) {
	store := newTestStore(newMockStore())
	if _, err := store.Update(context.Background(), "", func(*State) error { return nil }); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("expected ErrSessionRequired, got %v", err)
	}
}
