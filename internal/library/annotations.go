package library

import (
	"context"
	"fmt"

	"annotation-xref/internal/models"
)

// AnnotationSource lists the annotations of an attachment. Libraries expose
// annotations either through a dedicated table or only as child items, so
// there is one adapter for each shape, chosen when the library is opened.
type AnnotationSource interface {
	Annotations(ctx context.Context, attachmentID int64) ([]*models.Item, error)
	Name() string
}

// DirectSource reads the itemAnnotations table
type DirectSource struct {
	lib *Library
}

func (s *DirectSource) Name() string { return string(ModeDirect) }

func (s *DirectSource) Annotations(ctx context.Context, attachmentID int64) ([]*models.Item, error) {
	var ids []int64
	err := s.lib.db.SelectContext(ctx, &ids, `
		SELECT itemID FROM itemAnnotations
		WHERE parentItemID = ?
		ORDER BY sortIndex, itemID
	`, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations of %d: %w", attachmentID, err)
	}
	return s.lib.Items(ctx, ids)
}

// ChildScanSource lists every child of the attachment, loads the child
// items from their IDs and keeps the annotations. On a schema without
// itemAnnotations the children are attachments and notes only, so it
// returns no annotations there.
type ChildScanSource struct {
	lib *Library
}

func (s *ChildScanSource) Name() string { return string(ModeChildren) }

func (s *ChildScanSource) Annotations(ctx context.Context, attachmentID int64) ([]*models.Item, error) {
	ids, err := s.lib.Children(ctx, attachmentID)
	if err != nil {
		return nil, err
	}

	children, err := s.lib.Items(ctx, ids)
	if err != nil {
		return nil, err
	}

	annotations := children[:0]
	for _, child := range children {
		if child.IsAnnotation() {
			annotations = append(annotations, child)
		}
	}
	return annotations, nil
}

// Annotations lists the annotations of an attachment through the adapter
// selected for this library
func (l *Library) Annotations(ctx context.Context, attachmentID int64) ([]*models.Item, error) {
	return l.annotations.Annotations(ctx, attachmentID)
}
