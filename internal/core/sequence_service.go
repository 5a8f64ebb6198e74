package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceService allocates the human-readable identifiers (BK-00001,
// DO-00042, ...), one monotonically increasing counter per prefix.
type SequenceService interface {
	// Next allocates the next number for a prefix in its own transaction.
	Next(ctx context.Context, prefix string) (string, error)
	// NextTx allocates within the caller's transaction, so the identifier
	// and the row it names commit (or roll back) together.
	NextTx(ctx context.Context, tx pgx.Tx, prefix string) (string, error)
}

type sequenceService struct {
	pool *pgxpool.Pool
}

func NewSequenceService(pool *pgxpool.Pool) SequenceService {
	return &sequenceService{pool: pool}
}

func (s *sequenceService) Next(ctx context.Context, prefix string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := s.NextTx(ctx, tx, prefix)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit sequence allocation: %w", err)
	}
	return number, nil
}

// NextTx bumps the per-prefix counter with an atomic upsert. The row lock the
// upsert takes serializes concurrent allocations of the same prefix;
// scanning the highest existing identifier would not.
func (s *sequenceService) NextTx(ctx context.Context, tx pgx.Tx, prefix string) (string, error) {
	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO sequences (prefix, last_number)
		VALUES ($1, 1)
		ON CONFLICT (prefix)
		DO UPDATE SET last_number = sequences.last_number + 1
		RETURNING last_number
	`, prefix).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s sequence number: %w", prefix, classifyPgError(err))
	}
	return fmt.Sprintf("%s-%05d", prefix, lastNumber), nil
}
