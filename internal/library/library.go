package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an item does not exist in the library
var ErrNotFound = errors.New("item not found")

// AnnotationMode selects how annotations of an attachment are listed
type AnnotationMode string

const (
	// ModeAuto uses the annotation table when the schema has one. Schemas
	// without it predate annotation items, so the child scan it falls back
	// to finds none and every attachment reports no keys.
	ModeAuto AnnotationMode = "auto"
	// ModeDirect lists the itemAnnotations table
	ModeDirect AnnotationMode = "direct"
	// ModeChildren lists every child item and keeps the annotations. It
	// finds annotations only in schemas that have the itemAnnotations table.
	ModeChildren AnnotationMode = "children"
)

// Library is a Zotero library database
type Library struct {
	db          *sqlx.DB
	logger      *zap.Logger
	annotations AnnotationSource
	now         func() time.Time

	// false for pre-annotation schemas
	hasAnnotationTable bool
}

// Open opens the zotero.sqlite file at path. Zotero holds an exclusive lock
// on its database while running, so writes need Zotero to be closed.
func Open(ctx context.Context, path string, mode AnnotationMode, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// the driver would silently create a missing file
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	// SQLite allows a single writer; one connection keeps transactions simple
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	lib, err := New(ctx, db, mode, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Zotero library opened",
		zap.String("path", path),
		zap.String("annotation_source", lib.annotations.Name()))

	return lib, nil
}

// New wraps an already opened database
func New(ctx context.Context, db *sqlx.DB, mode AnnotationMode, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	lib := &Library{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	var n int
	err := db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'itemAnnotations'`)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect library schema: %w", err)
	}
	lib.hasAnnotationTable = n > 0

	source, err := lib.selectSource(mode)
	if err != nil {
		return nil, err
	}
	lib.annotations = source

	return lib, nil
}

// selectSource picks the annotation adapter once for the library's lifetime
func (l *Library) selectSource(mode AnnotationMode) (AnnotationSource, error) {
	switch mode {
	case ModeDirect:
		if !l.hasAnnotationTable {
			return nil, fmt.Errorf("annotation mode %q needs the itemAnnotations table", mode)
		}
		return &DirectSource{lib: l}, nil
	case ModeChildren:
		return &ChildScanSource{lib: l}, nil
	case ModeAuto, "":
		if l.hasAnnotationTable {
			return &DirectSource{lib: l}, nil
		}
		return &ChildScanSource{lib: l}, nil
	default:
		return nil, fmt.Errorf("unknown annotation mode %q", mode)
	}
}

// AnnotationSourceName reports which annotation adapter is in use
func (l *Library) AnnotationSourceName() string {
	return l.annotations.Name()
}

// DB exposes the underlying handle
func (l *Library) DB() *sqlx.DB {
	return l.db
}

// Close closes the database connection
func (l *Library) Close() error {
	return l.db.Close()
}
