package history

import (
	"context"

	"chatrelay/internal/models"
)

// NullStore is the persistence-disabled degenerate Store: every read is
// empty, every write is accepted and discarded, and nothing ever errors.
// Each request replays against an empty history.
type NullStore struct{}

func (NullStore) ListSessions(context.Context) ([]models.Session, error) {
	return nil, nil
}

func (NullStore) EnsureSession(context.Context, string) error {
	return nil
}

func (NullStore) ListTurns(context.Context, string) ([]models.Turn, error) {
	return []models.Turn{}, nil
}

func (NullStore) AppendTurnPair(context.Context, string, string, string) error {
	return nil
}
