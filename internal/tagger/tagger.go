package tagger

import (
	"context"
	"fmt"

	"annotation-xref/internal/library"
	"annotation-xref/internal/models"

	"go.uber.org/zap"
)

// Library is the part of the Zotero library the tagger writes to
type Library interface {
	Item(ctx context.Context, id int64) (*models.Item, error)
	WithTx(ctx context.Context, fn func(library.TagWriter) error) error
}

// Tagger writes provenance tags back onto Zotero items
type Tagger struct {
	lib    Library
	logger *zap.Logger
}

// New creates a tagger
func New(lib Library, logger *zap.Logger) *Tagger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tagger{lib: lib, logger: logger}
}

// Targets returns the items an entry's tags go to: the attachment and, when
// it is a regular item, the attachment's parent. Entries without an
// attachment have no targets.
func (t *Tagger) Targets(ctx context.Context, entry *models.Entry) []*models.Item {
	att := entry.Attachment
	if att == nil {
		return nil
	}

	targets := []*models.Item{att}
	if att.ParentID == nil {
		return targets
	}

	parent, err := t.lib.Item(ctx, *att.ParentID)
	if err != nil {
		t.logger.Warn("Failed to load attachment parent, tagging attachment only",
			zap.String("entry", string(entry.ID)),
			zap.Int64("parent_id", *att.ParentID),
			zap.Error(err))
		return targets
	}
	if parent.IsRegularItem() {
		targets = append(targets, parent)
	}
	return targets
}

// Apply adds every tag to every target of the entry in one transaction and
// saves each target. Existing tags are not consulted. The error is meant to
// be logged by the caller; nothing is written when it is non-nil.
func (t *Tagger) Apply(ctx context.Context, entry *models.Entry, tags []models.Tag) error {
	if len(tags) == 0 {
		return nil
	}

	targets := t.Targets(ctx, entry)
	if len(targets) == 0 {
		t.logger.Debug("Entry has no items to tag", zap.String("entry", string(entry.ID)))
		return nil
	}

	err := t.lib.WithTx(ctx, func(w library.TagWriter) error {
		for _, item := range targets {
			for _, tag := range tags {
				if err := w.AddTag(ctx, item.ID, tag.Name, tag.Type); err != nil {
					return err
				}
			}
			if err := w.Save(ctx, item.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to tag entry %s: %w", entry.ID, err)
	}

	t.logger.Debug("Entry tagged",
		zap.String("entry", string(entry.ID)),
		zap.Int("items", len(targets)),
		zap.Int("tags", len(tags)))
	return nil
}
