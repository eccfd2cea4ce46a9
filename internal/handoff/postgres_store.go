package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfman30/moving-call-relay/internal/callgraph"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists handoffs in the call_handoffs table.
type PostgresStore struct {
	pool rowQuerier
}

// NewPostgresStore creates a Store on the call_handoffs table.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("handoff: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("handoff: exec required")
	}
	return &PostgresStore{pool: exec}
}

const handoffColumns = `id, call_id, related_call_ids, customer_info, transcript, state, reason, created_at`

func (s *PostgresStore) Save(ctx context.Context, h Handoff) error {
	if strings.TrimSpace(h.CallID) == "" {
		return fmt.Errorf("handoff: call_id required")
	}
	related, err := json.Marshal(h.RelatedCallIDs)
	if err != nil {
		return fmt.Errorf("handoff: marshal related ids: %w", err)
	}
	info, err := json.Marshal(h.CustomerInfo)
	if err != nil {
		return fmt.Errorf("handoff: marshal customer info: %w", err)
	}
	transcript, err := json.Marshal(h.Transcript)
	if err != nil {
		return fmt.Errorf("handoff: marshal transcript: %w", err)
	}

	query := `
		INSERT INTO call_handoffs (` + handoffColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (call_id) DO UPDATE SET
			related_call_ids = EXCLUDED.related_call_ids,
			customer_info = EXCLUDED.customer_info,
			transcript = EXCLUDED.transcript,
			state = EXCLUDED.state,
			reason = EXCLUDED.reason,
			created_at = EXCLUDED.created_at
	`
	if _, err := s.pool.Exec(ctx, query,
		h.ID, h.CallID, related, info, transcript, string(h.State), h.Reason, h.CreatedAt,
	); err != nil {
		return fmt.Errorf("handoff: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, callID string) (*Handoff, error) {
	query := `SELECT ` + handoffColumns + ` FROM call_handoffs WHERE call_id = $1`
	h, err := scanHandoff(s.pool.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("handoff: get: %w", err)
	}
	return h, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Handoff, error) {
	query := `SELECT ` + handoffColumns + ` FROM call_handoffs ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("handoff: list: %w", err)
	}
	defer rows.Close()

	var out []Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, fmt.Errorf("handoff: scan: %w", err)
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("handoff: list rows: %w", err)
	}
	return out, nil
}

func scanHandoff(row pgx.Row) (*Handoff, error) {
	var (
		h                         Handoff
		related, info, transcript []byte
		state                     string
		createdAt                 time.Time
	)
	if err := row.Scan(&h.ID, &h.CallID, &related, &info, &transcript, &state, &h.Reason, &createdAt); err != nil {
		return nil, err
	}
	if len(related) > 0 {
		if err := json.Unmarshal(related, &h.RelatedCallIDs); err != nil {
			return nil, fmt.Errorf("related ids: %w", err)
		}
	}
	if len(info) > 0 {
		if err := json.Unmarshal(info, &h.CustomerInfo); err != nil {
			return nil, fmt.Errorf("customer info: %w", err)
		}
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &h.Transcript); err != nil {
			return nil, fmt.Errorf("transcript: %w", err)
		}
	}
	h.State = callgraph.State(state)
	h.CreatedAt = createdAt.UTC()
	return &h, nil
}
