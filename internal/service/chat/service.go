package chat

import (
	"context"
	"errors"
	"fmt"

	"chatrelay/internal/limiter"
	"chatrelay/internal/service/assembler"
	"chatrelay/internal/service/history"
)

// ErrCompletionBackend marks a failed call to the completion backend.
// The failed attempt persists nothing.
var ErrCompletionBackend = errors.New("completion backend failure")

// Completer is the opaque text-completion capability.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service orchestrates one conversation turn: resolve the session, replay
// its history into a single context, call the backend, and persist the
// resulting turn pair.
type Service struct {
	store     history.Store
	completer Completer
	gate      *limiter.Limiter
}

// NewService wires the orchestrator. gate may be nil to run unbounded.
func NewService(store history.Store, completer Completer, gate *limiter.Limiter) *Service {
	return &Service{store: store, completer: completer, gate: gate}
}

// Result is the successful outcome of a turn.
type Result struct {
	SessionID string
	Reply     string
}

// Generate runs one turn. The ordering is load-bearing: history is read
// before the new pair is appended so the prompt never echoes into its own
// context, and the pair is appended only after a usable completion so a
// failed call leaves the log untouched.
func (s *Service) Generate(ctx context.Context, rawPrompt, providedSessionID string) (*Result, error) {
	prompt, err := assembler.ValidatePrompt(rawPrompt)
	if err != nil {
		return nil, err
	}

	sessionID := assembler.ResolveSessionID(providedSessionID)
	if err := s.store.EnsureSession(ctx, sessionID); err != nil {
		return nil, err
	}

	turns, err := s.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	contextText := assembler.BuildContext(turns, prompt)

	if s.gate != nil {
		if err := s.gate.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompletionBackend, err)
		}
		defer s.gate.Release()
	}
	raw, err := s.completer.Complete(ctx, contextText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletionBackend, err)
	}

	reply, err := assembler.ExtractReply(raw)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendTurnPair(ctx, sessionID, prompt, reply); err != nil {
		return nil, err
	}

	return &Result{SessionID: sessionID, Reply: reply}, nil
}
