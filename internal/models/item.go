package models

// ItemType is the Zotero item type name (itemTypes.typeName)
type ItemType string

const (
	TypeAnnotation ItemType = "annotation"
	TypeAttachment ItemType = "attachment"
	TypeNote       ItemType = "note"
)

// LinkMode mirrors Zotero.Attachments.LINK_MODE_*
type LinkMode int

const (
	LinkImportedFile  LinkMode = 0
	LinkImportedURL   LinkMode = 1
	LinkLinkedFile    LinkMode = 2
	LinkLinkedURL     LinkMode = 3
	LinkEmbeddedImage LinkMode = 4
)

// TagType is the itemTags.type discriminator
type TagType int

const (
	TagManual    TagType = 0
	TagAutomatic TagType = 1
)

// Item is a row of the Zotero items table joined with the data the
// cross-reference needs. Title and URL come from itemData and are empty when
// the field is missing or could not be read.
type Item struct {
	ID       int64     `json:"id"`
	Key      string    `json:"key"`
	Type     ItemType  `json:"type"`
	ParentID *int64    `json:"parent_id,omitempty"`
	LinkMode *LinkMode `json:"link_mode,omitempty"`
	Path     string    `json:"path,omitempty"`
	Title    string    `json:"title,omitempty"`
	URL      string    `json:"url,omitempty"`
}

// IsAnnotation reports whether the item is a PDF/EPUB annotation
func (i *Item) IsAnnotation() bool {
	return i != nil && i.Type == TypeAnnotation
}

// IsAttachment reports whether the item is an attachment
func (i *Item) IsAttachment() bool {
	return i != nil && i.Type == TypeAttachment
}

// IsRegularItem reports whether the item is a top-level bibliographic record
func (i *Item) IsRegularItem() bool {
	if i == nil || i.Type == "" {
		return false
	}
	switch i.Type {
	case TypeAnnotation, TypeAttachment, TypeNote:
		return false
	}
	return true
}
