package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/rs/zerolog"
)

func NewContentRepo(log logger.Logger, db *DB) domain.ContentRepo {
	return &ContentRepo{
		log: log.With().Str("repo", "content").Logger(),
		db:  db,
	}
}

type ContentRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *ContentRepo) List(ctx context.Context) ([]domain.ContentItem, error) {
	query, args, err := r.db.squirrel.
		Select("id", "text", "categories", "tone", "length", "is_active", "position", "cached_at").
		From("content_items").
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	items := make([]domain.ContentItem, 0)
	for rows.Next() {
		var (
			item       domain.ContentItem
			categories string
		)
		if err := rows.Scan(&item.ID, &item.Text, &categories, &item.Tone, &item.Length, &item.IsActive, &item.Order, &item.CachedAt); err != nil {
			return nil, errors.Wrap(err, "error scanning content item")
		}
		if categories != "" {
			if err := json.Unmarshal([]byte(categories), &item.Categories); err != nil {
				r.log.Warn().Err(err).Str("id", item.ID).Msg("could not decode categories")
			}
		}
		items = append(items, item)
	}

	return items, errors.Wrap(rows.Err(), "error iterating content items")
}

func (r *ContentRepo) Replace(ctx context.Context, items []domain.ContentItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := r.db.squirrel.Delete("content_items").RunWith(tx).ExecContext(ctx); err != nil {
		return errors.Wrap(err, "error clearing content items")
	}

	if len(items) > 0 {
		now := time.Now().UTC()
		insert := r.db.squirrel.Insert("content_items").
			Columns("id", "text", "categories", "tone", "length", "is_active", "position", "cached_at")

		seen := make(map[string]struct{}, len(items))
		position := 0
		for _, item := range items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}

			categories, err := json.Marshal(item.Categories)
			if err != nil {
				return errors.Wrap(err, "error encoding categories for %s", item.ID)
			}
			insert = insert.Values(item.ID, item.Text, string(categories), item.Tone, item.Length, item.IsActive, position, now)
			position++
		}

		if _, err := insert.RunWith(tx).ExecContext(ctx); err != nil {
			return errors.Wrap(err, "error inserting content items")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing content items")
	}

	r.log.Debug().Int("items", len(items)).Msg("content cache replaced")

	return nil
}
