package library

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strconv"
	"strings"

	"annotation-xref/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type itemRow struct {
	ID       int64          `db:"itemID"`
	Key      string         `db:"key"`
	TypeName string         `db:"typeName"`
	ParentID sql.NullInt64  `db:"parentItemID"`
	LinkMode sql.NullInt64  `db:"linkMode"`
	Path     sql.NullString `db:"path"`
}

func (r *itemRow) toItem() *models.Item {
	item := &models.Item{
		ID:   r.ID,
		Key:  r.Key,
		Type: models.ItemType(r.TypeName),
		Path: r.Path.String,
	}
	if r.ParentID.Valid {
		parent := r.ParentID.Int64
		item.ParentID = &parent
	}
	if r.LinkMode.Valid {
		mode := models.LinkMode(r.LinkMode.Int64)
		item.LinkMode = &mode
	}
	return item
}

type fieldRow struct {
	ItemID int64  `db:"itemID"`
	Name   string `db:"fieldName"`
	Value  string `db:"value"`
}

func (l *Library) itemQuery() string {
	parent := "COALESCE(ia.parentItemID, inote.parentItemID)"
	annotationJoin := ""
	if l.hasAnnotationTable {
		parent = "COALESCE(ia.parentItemID, ian.parentItemID, inote.parentItemID)"
		annotationJoin = "LEFT JOIN itemAnnotations ian ON ian.itemID = i.itemID"
	}

	return fmt.Sprintf(`
		SELECT i.itemID, i.key, it.typeName, %s AS parentItemID, ia.linkMode, ia.path
		FROM items i
		JOIN itemTypes it ON it.itemTypeID = i.itemTypeID
		LEFT JOIN itemAttachments ia ON ia.itemID = i.itemID
		LEFT JOIN itemNotes inote ON inote.itemID = i.itemID
		%s
		WHERE i.itemID IN (?)
	`, parent, annotationJoin)
}

// Items loads the items with the given IDs, in the order given. Missing
// IDs are skipped.
func (l *Library) Items(ctx context.Context, ids []int64) ([]*models.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(l.itemQuery(), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build item query: %w", err)
	}

	var rows []itemRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}

	byID := make(map[int64]*models.Item, len(rows))
	for i := range rows {
		byID[rows[i].ID] = rows[i].toItem()
	}

	// Title and URL are best effort; an item without them is still usable
	if err := l.loadFields(ctx, byID); err != nil {
		l.logger.Warn("Failed to load item fields", zap.Error(err))
	}

	items := make([]*models.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// Item loads a single item
func (l *Library) Item(ctx context.Context, id int64) (*models.Item, error) {
	items, err := l.Items(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return items[0], nil
}

func (l *Library) loadFields(ctx context.Context, byID map[int64]*models.Item) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	query, args, err := sqlx.In(`
		SELECT d.itemID, f.fieldName, CAST(v.value AS TEXT) AS value
		FROM itemData d
		JOIN fields f ON f.fieldID = d.fieldID
		JOIN itemDataValues v ON v.valueID = d.valueID
		WHERE f.fieldName IN ('title', 'url') AND d.itemID IN (?)
	`, ids)
	if err != nil {
		return err
	}

	var rows []fieldRow
	if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
		return err
	}

	for _, row := range rows {
		item := byID[row.ItemID]
		if item == nil {
			continue
		}
		switch row.Name {
		case "title":
			item.Title = row.Value
		case "url":
			item.URL = row.Value
		}
	}
	return nil
}

// Selection resolves item references to items, keeping the reference
// order. A reference is an 8-character item key or a numeric item ID; an
// eight-digit reference is tried as a key first.
// Unknown references are logged and skipped.
func (l *Library) Selection(ctx context.Context, refs []string) ([]*models.Item, error) {
	var keys []string
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); models.IsValidKey(ref) {
			keys = append(keys, ref)
		}
	}

	keyIDs := make(map[string]int64, len(keys))
	if len(keys) > 0 {
		query, args, err := sqlx.In(`SELECT itemID, key FROM items WHERE key IN (?)`, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to build selection query: %w", err)
		}
		var rows []struct {
			ID  int64  `db:"itemID"`
			Key string `db:"key"`
		}
		if err := l.db.SelectContext(ctx, &rows, l.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to resolve item keys: %w", err)
		}
		for _, row := range rows {
			keyIDs[row.Key] = row.ID
		}
	}

	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if id, ok := keyIDs[ref]; ok {
			ids = append(ids, id)
			continue
		}
		// an all-digit ref that is not a key is an item ID
		if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
			ids = append(ids, id)
			continue
		}
		l.logger.Warn("Unknown item reference in selection", zap.String("ref", ref))
	}

	items, err := l.Items(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(items) < len(ids) {
		l.logger.Warn("Some selected items no longer exist",
			zap.Int("requested", len(ids)),
			zap.Int("found", len(items)))
	}
	return items, nil
}

// Attachments lists the attachment item IDs under a parent item
func (l *Library) Attachments(ctx context.Context, parentID int64) ([]int64, error) {
	var ids []int64
	err := l.db.SelectContext(ctx, &ids,
		`SELECT itemID FROM itemAttachments WHERE parentItemID = ? ORDER BY itemID`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments of %d: %w", parentID, err)
	}
	return ids, nil
}

// Children lists every child item ID (attachments, notes, annotations)
func (l *Library) Children(ctx context.Context, parentID int64) ([]int64, error) {
	query := `
		SELECT itemID FROM itemAttachments WHERE parentItemID = ?
		UNION SELECT itemID FROM itemNotes WHERE parentItemID = ?`
	args := []interface{}{parentID, parentID}
	if l.hasAnnotationTable {
		query += `
		UNION SELECT itemID FROM itemAnnotations WHERE parentItemID = ?`
		args = append(args, parentID)
	}
	query += `
		ORDER BY itemID`

	var ids []int64
	if err := l.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list children of %d: %w", parentID, err)
	}
	return ids, nil
}

// Filename returns the local file name of an attachment: the base name of
// its stored path with the "storage:" prefix removed. It is empty for
// attachments without a file.
func Filename(item *models.Item) string {
	if item == nil || item.Path == "" {
		return ""
	}
	p := strings.TrimPrefix(item.Path, "storage:")
	p = strings.ReplaceAll(p, "\\", "/")
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
