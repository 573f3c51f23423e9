package library

import (
	"context"
	"database/sql"
	"fmt"

	"annotation-xref/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// TagWriter adds tags to items inside a transaction
type TagWriter interface {
	AddTag(ctx context.Context, itemID int64, name string, tagType models.TagType) error
	Save(ctx context.Context, itemID int64) error
}

type txWriter struct {
	tx  *sqlx.Tx
	lib *Library
}

// WithTx runs fn in a single transaction. The transaction is committed when
// fn returns nil and rolled back otherwise.
func (l *Library) WithTx(ctx context.Context, fn func(TagWriter) error) (err error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				l.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(&txWriter{tx: tx, lib: l})
}

// AddTag attaches a tag to an item, creating the tag name if needed. Like
// Zotero, an item carries a given tag name at most once.
func (w *txWriter) AddTag(ctx context.Context, itemID int64, name string, tagType models.TagType) error {
	if _, err := w.tx.ExecContext(ctx,
		`INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return fmt.Errorf("failed to create tag %q: %w", name, err)
	}

	var tagID int64
	if err := w.tx.GetContext(ctx, &tagID, `SELECT tagID FROM tags WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to look up tag %q: %w", name, err)
	}

	if _, err := w.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO itemTags (itemID, tagID, type) VALUES (?, ?, ?)`,
		itemID, tagID, int(tagType)); err != nil {
		return fmt.Errorf("failed to tag item %d: %w", itemID, err)
	}
	return nil
}

// Save bumps the item's modification time and marks it for sync
func (w *txWriter) Save(ctx context.Context, itemID int64) error {
	now := w.lib.now().Format("2006-01-02 15:04:05")
	result, err := w.tx.ExecContext(ctx, `
		UPDATE items
		SET dateModified = ?, clientDateModified = ?, synced = 0
		WHERE itemID = ?
	`, now, now, itemID)
	if err != nil {
		return fmt.Errorf("failed to save item %d: %w", itemID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save item %d: %w", itemID, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to save item %d: %w", itemID, ErrNotFound)
	}
	return nil
}

// Tags lists the tags of an item ordered by name
func (l *Library) Tags(ctx context.Context, itemID int64) ([]models.Tag, error) {
	var rows []struct {
		Name string `db:"name"`
		Type int    `db:"type"`
	}
	err := l.db.SelectContext(ctx, &rows, `
		SELECT t.name, it.type
		FROM itemTags it
		JOIN tags t ON t.tagID = it.tagID
		WHERE it.itemID = ?
		ORDER BY t.name
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags of %d: %w", itemID, err)
	}

	tags := make([]models.Tag, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, models.Tag{Name: row.Name, Type: models.TagType(row.Type)})
	}
	return tags, nil
}
