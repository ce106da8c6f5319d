package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// peerContextRow is the id of the only row in peer_context.
const peerContextRow = 1

func NewPeerContextRepo(log logger.Logger, db *DB) domain.PeerContextRepo {
	return &PeerContextRepo{
		log: log.With().Str("repo", "peer_context").Logger(),
		db:  db,
	}
}

type PeerContextRepo struct {
	log zerolog.Logger
	db  *DB
}

// GetContext returns the stored snapshot, or nil when none was ever set.
func (r *PeerContextRepo) GetContext(ctx context.Context) ([]byte, error) {
	query, args, err := r.db.squirrel.
		Select("payload").
		From("peer_context").
		Where(sq.Eq{"id": peerContextRow}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	var payload []byte
	if err := r.db.handler.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "error scanning peer context")
	}

	return payload, nil
}

// SetContext overwrites the stored snapshot.
func (r *PeerContextRepo) SetContext(ctx context.Context, payload []byte) error {
	query, args, err := r.db.squirrel.
		Insert("peer_context").
		Columns("id", "payload", "updated_at").
		Values(peerContextRow, payload, time.Now().UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error storing peer context")
	}

	r.log.Trace().Int("bytes", len(payload)).Msg("peer context stored")

	return nil
}
