package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/rs/zerolog"
)

func NewFavoriteRepo(log logger.Logger, db *DB) domain.FavoriteRepo {
	return &FavoriteRepo{
		log: log.With().Str("repo", "favorite").Logger(),
		db:  db,
	}
}

type FavoriteRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *FavoriteRepo) LoadState(ctx context.Context) ([]domain.FavoriteRecord, []domain.PendingOperation, error) {
	records, err := r.loadRecords(ctx)
	if err != nil {
		return nil, nil, err
	}

	pending, err := r.loadPending(ctx)
	if err != nil {
		return nil, nil, err
	}

	return records, pending, nil
}

func (r *FavoriteRepo) loadRecords(ctx context.Context) ([]domain.FavoriteRecord, error) {
	query, args, err := r.db.squirrel.
		Select("item_id", "text", "saved_at").
		From("favorites").
		OrderBy("saved_at DESC", "item_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	records := make([]domain.FavoriteRecord, 0)
	for rows.Next() {
		var rec domain.FavoriteRecord
		if err := rows.Scan(&rec.ItemID, &rec.Text, &rec.SavedAt); err != nil {
			return nil, errors.Wrap(err, "error scanning favorite")
		}
		records = append(records, rec)
	}

	return records, errors.Wrap(rows.Err(), "error iterating favorites")
}

func (r *FavoriteRepo) loadPending(ctx context.Context) ([]domain.PendingOperation, error) {
	query, args, err := r.db.squirrel.
		Select("id", "seq", "item_id", "text", "is_adding", "enqueued_at", "attempts").
		From("pending_operations").
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	ops := make([]domain.PendingOperation, 0)
	for rows.Next() {
		var op domain.PendingOperation
		if err := rows.Scan(&op.ID, &op.Seq, &op.ItemID, &op.Text, &op.IsAdding, &op.EnqueuedAt, &op.Attempts); err != nil {
			return nil, errors.Wrap(err, "error scanning pending operation")
		}
		ops = append(ops, op)
	}

	return ops, errors.Wrap(rows.Err(), "error iterating pending operations")
}

// SaveState replaces the favorite cache and pending queue in one transaction.
func (r *FavoriteRepo) SaveState(ctx context.Context, records []domain.FavoriteRecord, pending []domain.PendingOperation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := r.replaceRecords(ctx, tx, records); err != nil {
		return err
	}

	if err := r.replacePending(ctx, tx, pending); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing favorites")
	}

	r.log.Trace().Int("records", len(records)).Int("pending", len(pending)).Msg("favorites saved")

	return nil
}

func (r *FavoriteRepo) replaceRecords(ctx context.Context, tx *sql.Tx, records []domain.FavoriteRecord) error {
	if _, err := r.db.squirrel.Delete("favorites").RunWith(tx).ExecContext(ctx); err != nil {
		return errors.Wrap(err, "error clearing favorites")
	}

	if len(records) == 0 {
		return nil
	}

	insert := r.db.squirrel.Insert("favorites").Columns("item_id", "text", "saved_at")
	for _, rec := range records {
		savedAt := rec.SavedAt
		if savedAt.IsZero() {
			savedAt = time.Now()
		}
		insert = insert.Values(rec.ItemID, rec.Text, savedAt.UTC())
	}

	if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
		return errors.Wrap(err, "error inserting favorites")
	}

	return nil
}

func (r *FavoriteRepo) replacePending(ctx context.Context, tx *sql.Tx, pending []domain.PendingOperation) error {
	if _, err := r.db.squirrel.Delete("pending_operations").RunWith(tx).ExecContext(ctx); err != nil {
		return errors.Wrap(err, "error clearing pending operations")
	}

	if len(pending) == 0 {
		return nil
	}

	insert := r.db.squirrel.Insert("pending_operations").
		Columns("id", "seq", "item_id", "text", "is_adding", "enqueued_at", "attempts")
	for _, op := range pending {
		insert = insert.Values(op.ID, op.Seq, op.ItemID, op.Text, op.IsAdding, op.EnqueuedAt.UTC(), op.Attempts)
	}

	if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
		return errors.Wrap(err, "error inserting pending operations")
	}

	return nil
}
