package extractor

import (
	"context"
	"errors"
	"fmt"

	"annotation-xref/internal/library"
	"annotation-xref/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoFilename labels an entry whose attachment has nothing to show
const NoFilename = "(no filename)"

// WebLink labels a linked-URL attachment that has no URL stored
const WebLink = "(web link)"

// Library is the part of the Zotero library the extractor reads
type Library interface {
	Item(ctx context.Context, id int64) (*models.Item, error)
	Items(ctx context.Context, ids []int64) ([]*models.Item, error)
	Attachments(ctx context.Context, parentID int64) ([]int64, error)
	Annotations(ctx context.Context, attachmentID int64) ([]*models.Item, error)
}

// Extractor turns a selection of Zotero items into per-attachment entries
type Extractor struct {
	lib    Library
	logger *zap.Logger

	// newPlaceholder names entries that have no attachment
	newPlaceholder func() models.EntryID
}

// New creates an extractor
func New(lib Library, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		lib:            lib,
		logger:         logger,
		newPlaceholder: placeholderID,
	}
}

func placeholderID() models.EntryID {
	id := uuid.New()
	return models.EntryID(fmt.Sprintf("missing:%x", id[:4]))
}

// Extract walks the selection and collects annotation keys per attachment.
// Lookup failures never stop the walk: the affected part of the selection
// is skipped and the failure is returned in the joined error alongside the
// entries that could be built. Entries is never nil.
func (x *Extractor) Extract(ctx context.Context, selection []*models.Item) (*models.Entries, error) {
	entries := models.NewEntries()
	var errs []error

	for _, item := range selection {
		if item == nil {
			continue
		}

		switch {
		case item.IsAnnotation():
			errs = append(errs, x.addAnnotation(ctx, entries, item))

		case item.IsAttachment():
			errs = append(errs, x.addAttachment(ctx, entries, item))

		default:
			errs = append(errs, x.addParent(ctx, entries, item))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		x.logger.Warn("Selection partially read", zap.Error(err))
	}

	x.logger.Debug("Extracted annotation keys",
		zap.Int("entries", entries.Len()),
		zap.Int("keys", len(entries.Universe())))

	return entries, err
}

// addAnnotation files a selected annotation under its parent attachment
func (x *Extractor) addAnnotation(ctx context.Context, entries *models.Entries, ann *models.Item) error {
	var parent *models.Item
	var err error
	if ann.ParentID != nil {
		parent, err = x.lib.Item(ctx, *ann.ParentID)
		if err != nil {
			err = fmt.Errorf("annotation %s: parent attachment: %w", ann.Key, err)
			parent = nil
		}
	}

	entry := x.ensure(entries, parent)
	entries.AddKey(entry, ann.Key)
	return err
}

// addAttachment collects every annotation of a selected attachment
func (x *Extractor) addAttachment(ctx context.Context, entries *models.Entries, att *models.Item) error {
	entry := x.ensure(entries, att)

	anns, err := x.lib.Annotations(ctx, att.ID)
	if err != nil {
		return fmt.Errorf("attachment %s: %w", att.Key, err)
	}
	for _, ann := range anns {
		if ann != nil {
			entries.AddKey(entry, ann.Key)
		}
	}
	return nil
}

// addParent collects the annotations of every attachment of a regular item
func (x *Extractor) addParent(ctx context.Context, entries *models.Entries, item *models.Item) error {
	ids, err := x.lib.Attachments(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("item %s: %w", item.Key, err)
	}

	atts, err := x.lib.Items(ctx, ids)
	if err != nil {
		return fmt.Errorf("item %s: %w", item.Key, err)
	}

	var errs []error
	for _, att := range atts {
		if !att.IsAttachment() {
			continue
		}
		errs = append(errs, x.addAttachment(ctx, entries, att))
	}
	return errors.Join(errs...)
}

// ensure returns the entry for att, creating it on first sight. A nil
// attachment always gets a fresh placeholder entry.
func (x *Extractor) ensure(entries *models.Entries, att *models.Item) *models.Entry {
	var id models.EntryID
	if att != nil {
		id = models.AttachmentEntryID(att.ID)
	} else {
		id = x.newPlaceholder()
	}
	return entries.Ensure(id, att, func() string { return Label(att) })
}

// Label names an attachment in the report. Web links use their URL, files
// their file name, anything else its title.
func Label(att *models.Item) string {
	if att == nil {
		return NoFilename
	}

	filename := library.Filename(att)
	linkedURL := att.LinkMode != nil && *att.LinkMode == models.LinkLinkedURL
	if linkedURL || (att.URL != "" && filename == "") {
		if att.URL != "" {
			return att.URL
		}
		return WebLink
	}

	if filename != "" {
		return filename
	}
	if att.Title != "" {
		return att.Title
	}
	return NoFilename
}
