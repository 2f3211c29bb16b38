package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chatrelay/internal/limiter"
	"chatrelay/internal/models"
	"chatrelay/internal/service/assembler"
	"chatrelay/internal/service/history"
)

// fakeStore is an in-memory history.Store that counts every call so tests
// can assert when storage was not touched at all.
type fakeStore struct {
	turns     map[string][]models.Turn
	calls     int
	ensureErr error
	listErr   error
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{turns: make(map[string][]models.Turn)}
}

func (f *fakeStore) ListSessions(context.Context) ([]models.Session, error) {
	f.calls++
	return nil, nil
}

func (f *fakeStore) EnsureSession(_ context.Context, sessionID string) error {
	f.calls++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if _, ok := f.turns[sessionID]; !ok {
		f.turns[sessionID] = []models.Turn{}
	}
	return nil
}

func (f *fakeStore) ListTurns(_ context.Context, sessionID string) ([]models.Turn, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	history := f.turns[sessionID]
	copied := make([]models.Turn, len(history))
	copy(copied, history)
	return copied, nil
}

func (f *fakeStore) AppendTurnPair(_ context.Context, sessionID, userMessage, botMessage string) error {
	f.calls++
	if f.appendErr != nil {
		return f.appendErr
	}
	now := time.Now().UTC()
	f.turns[sessionID] = append(f.turns[sessionID],
		models.Turn{SessionID: sessionID, Sender: models.SenderUser, Message: userMessage, CreatedAt: now},
		models.Turn{SessionID: sessionID, Sender: models.SenderBot, Message: botMessage, CreatedAt: now.Add(time.Microsecond)},
	)
	return nil
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestGenerateStartsNewConversation(t *testing.T) {
	store := newFakeStore()
	fc := &fakeCompleter{reply: "Hi there!"}
	svc := NewService(store, fc, nil)

	res, err := svc.Generate(context.Background(), "Hello", "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.SessionID == "" {
		t.Fatalf("expected a generated session id")
	}
	if res.Reply != "Hi there!" {
		t.Fatalf("unexpected reply %q", res.Reply)
	}
	if len(fc.prompts) != 1 || fc.prompts[0] != "user: Hello" {
		t.Fatalf("unexpected context sent to backend: %#v", fc.prompts)
	}
	turns := store.turns[res.SessionID]
	if len(turns) != 2 {
		t.Fatalf("expected one persisted pair, got %d turns", len(turns))
	}
	if turns[0].Sender != models.SenderUser || turns[0].Message != "Hello" {
		t.Fatalf("unexpected user turn: %#v", turns[0])
	}
	if turns[1].Sender != models.SenderBot || turns[1].Message != "Hi there!" {
		t.Fatalf("unexpected bot turn: %#v", turns[1])
	}
}

func TestGenerateReplaysFullHistory(t *testing.T) {
	store := newFakeStore()
	store.turns["S"] = []models.Turn{
		{SessionID: "S", Sender: models.SenderUser, Message: "Hi"},
		{SessionID: "S", Sender: models.SenderBot, Message: "Hello!"},
	}
	fc := &fakeCompleter{reply: "Doing great."}
	svc := NewService(store, fc, nil)

	res, err := svc.Generate(context.Background(), "How are you?", "S")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.SessionID != "S" {
		t.Fatalf("provided session id must pass through, got %q", res.SessionID)
	}
	want := "user: Hi\nbot: Hello!\nuser: How are you?"
	if fc.prompts[len(fc.prompts)-1] != want {
		t.Fatalf("want context %q, got %q", want, fc.prompts[len(fc.prompts)-1])
	}
}

func TestGenerateDoesNotEchoPromptIntoOwnContext(t *testing.T) {
	store := newFakeStore()
	fc := &fakeCompleter{reply: "first reply"}
	svc := NewService(store, fc, nil)

	res, err := svc.Generate(context.Background(), "first prompt", "")
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	if fc.prompts[0] != "user: first prompt" {
		t.Fatalf("first context must not include the pair being produced, got %q", fc.prompts[0])
	}

	fc.reply = "second reply"
	if _, err := svc.Generate(context.Background(), "second prompt", res.SessionID); err != nil {
		t.Fatalf("second generate: %v", err)
	}
	want := "user: first prompt\nbot: first reply\nuser: second prompt"
	if fc.prompts[1] != want {
		t.Fatalf("want context %q, got %q", want, fc.prompts[1])
	}
}

func TestGenerateRejectsInvalidPromptBeforeStorage(t *testing.T) {
	store := newFakeStore()
	fc := &fakeCompleter{reply: "unused"}
	svc := NewService(store, fc, nil)

	for _, raw := range []string{"", "   "} {
		if _, err := svc.Generate(context.Background(), raw, ""); !errors.Is(err, assembler.ErrInvalidPrompt) {
			t.Fatalf("expected ErrInvalidPrompt for %q, got %v", raw, err)
		}
	}
	if store.calls != 0 {
		t.Fatalf("storage must not be touched on invalid prompt, saw %d calls", store.calls)
	}
	if len(fc.prompts) != 0 {
		t.Fatalf("backend must not be called on invalid prompt")
	}
}

func TestGenerateBackendFailureLeavesLogUntouched(t *testing.T) {
	store := newFakeStore()
	fc := &fakeCompleter{err: fmt.Errorf("quota exceeded")}
	svc := NewService(store, fc, nil)

	_, err := svc.Generate(context.Background(), "Hello", "S")
	if !errors.Is(err, ErrCompletionBackend) {
		t.Fatalf("expected ErrCompletionBackend, got %v", err)
	}
	if len(store.turns["S"]) != 0 {
		t.Fatalf("no turns may be persisted after a backend failure, got %d", len(store.turns["S"]))
	}
}

func TestGenerateEmptyCompletionNotPersisted(t *testing.T) {
	store := newFakeStore()
	fc := &fakeCompleter{reply: ""}
	svc := NewService(store, fc, nil)

	_, err := svc.Generate(context.Background(), "Hello", "S")
	if !errors.Is(err, assembler.ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
	if len(store.turns["S"]) != 0 {
		t.Fatalf("empty completions must not be persisted, got %d turns", len(store.turns["S"]))
	}
}

func TestGenerateSurfacesStorageFailures(t *testing.T) {
	store := newFakeStore()
	store.listErr = fmt.Errorf("list turns: %w", history.ErrStorageUnavailable)
	fc := &fakeCompleter{reply: "unused"}
	svc := NewService(store, fc, nil)

	_, err := svc.Generate(context.Background(), "Hello", "S")
	if !errors.Is(err, history.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if len(fc.prompts) != 0 {
		t.Fatalf("backend must not be called when history cannot be read")
	}
}

func TestGenerateSaturatedGateRespectsContext(t *testing.T) {
	store := newFakeStore()
	fc := &fakeCompleter{reply: "unused"}
	gate := limiter.New(1)
	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("prime gate: %v", err)
	}
	defer gate.Release()
	svc := NewService(store, fc, gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Generate(ctx, "Hello", "S")
	if !errors.Is(err, ErrCompletionBackend) {
		t.Fatalf("expected ErrCompletionBackend when gate stays full, got %v", err)
	}
	if len(store.turns["S"]) != 0 {
		t.Fatalf("nothing may be persisted when the completion never ran")
	}
}
