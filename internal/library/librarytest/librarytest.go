// Package librarytest builds throwaway Zotero libraries for tests.
package librarytest

import (
	"context"
	"path/filepath"
	"testing"

	"annotation-xref/internal/library"
	"annotation-xref/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// Builder inserts Zotero items into a migrated sandbox library
type Builder struct {
	t    testing.TB
	Path string
	DB   *sqlx.DB
}

// New creates a migrated library file in a temp dir
func New(t testing.TB) *Builder {
	t.Helper()

	path := filepath.Join(t.TempDir(), "zotero.sqlite")
	require.NoError(t, library.Create(path, nil))

	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return &Builder{t: t, Path: path, DB: db}
}

// Open opens the library under test
func (b *Builder) Open(mode library.AnnotationMode) *library.Library {
	b.t.Helper()
	lib, err := library.New(context.Background(), b.DB, mode, nil)
	require.NoError(b.t, err)
	return lib
}

func (b *Builder) item(typeName models.ItemType, key string) int64 {
	b.t.Helper()
	res, err := b.DB.Exec(`
		INSERT INTO items (itemTypeID, key)
		SELECT itemTypeID, ? FROM itemTypes WHERE typeName = ?
	`, key, string(typeName))
	require.NoError(b.t, err)
	id, err := res.LastInsertId()
	require.NoError(b.t, err)
	return id
}

// SetField stores an itemData value ("title" or "url")
func (b *Builder) SetField(itemID int64, field, value string) {
	b.t.Helper()
	_, err := b.DB.Exec(`INSERT OR IGNORE INTO itemDataValues (value) VALUES (?)`, value)
	require.NoError(b.t, err)
	_, err = b.DB.Exec(`
		INSERT INTO itemData (itemID, fieldID, valueID)
		SELECT ?, f.fieldID, v.valueID
		FROM fields f, itemDataValues v
		WHERE f.fieldName = ? AND v.value = ?
	`, itemID, field, value)
	require.NoError(b.t, err)
}

// Regular adds a top-level item of the given type with a title
func (b *Builder) Regular(typeName models.ItemType, key, title string) int64 {
	b.t.Helper()
	id := b.item(typeName, key)
	if title != "" {
		b.SetField(id, "title", title)
	}
	return id
}

// Attachment adds an attachment. parentID 0 makes a standalone attachment.
func (b *Builder) Attachment(parentID int64, key string, mode models.LinkMode, path string) int64 {
	b.t.Helper()
	id := b.item(models.TypeAttachment, key)
	var parent interface{}
	if parentID != 0 {
		parent = parentID
	}
	var p interface{}
	if path != "" {
		p = path
	}
	_, err := b.DB.Exec(`
		INSERT INTO itemAttachments (itemID, parentItemID, linkMode, contentType, path)
		VALUES (?, ?, ?, 'application/pdf', ?)
	`, id, parent, int(mode), p)
	require.NoError(b.t, err)
	return id
}

// Annotation adds a highlight annotation under an attachment
func (b *Builder) Annotation(attachmentID int64, key string) int64 {
	b.t.Helper()
	id := b.item(models.TypeAnnotation, key)
	_, err := b.DB.Exec(`
		INSERT INTO itemAnnotations (itemID, parentItemID, type, text, sortIndex)
		VALUES (?, ?, 1, 'highlighted text', ?)
	`, id, attachmentID, key)
	require.NoError(b.t, err)
	return id
}

// Note adds a child note
func (b *Builder) Note(parentID int64, key string) int64 {
	b.t.Helper()
	id := b.item(models.TypeNote, key)
	_, err := b.DB.Exec(`INSERT INTO itemNotes (itemID, parentItemID, note, title) VALUES (?, ?, '<p>note</p>', 'note')`,
		id, parentID)
	require.NoError(b.t, err)
	return id
}

// TagNames returns the tag names on an item
func (b *Builder) TagNames(itemID int64) []string {
	b.t.Helper()
	var names []string
	require.NoError(b.t, b.DB.Select(&names, `
		SELECT t.name FROM itemTags it JOIN tags t ON t.tagID = it.tagID
		WHERE it.itemID = ? ORDER BY t.name
	`, itemID))
	return names
}
