package tagger

import (
	"context"
	"errors"
	"testing"

	"annotation-xref/internal/library"
	"annotation-xref/internal/library/librarytest"
	"annotation-xref/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockLibrary struct {
	mock.Mock
	writer *mockWriter
}

func (m *mockLibrary) Item(ctx context.Context, id int64) (*models.Item, error) {
	args := m.Called(ctx, id)
	item, _ := args.Get(0).(*models.Item)
	return item, args.Error(1)
}

func (m *mockLibrary) WithTx(ctx context.Context, fn func(library.TagWriter) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return fn(m.writer)
}

type mockWriter struct {
	mock.Mock
}

func (w *mockWriter) AddTag(ctx context.Context, itemID int64, name string, tagType models.TagType) error {
	return w.Called(itemID, name, tagType).Error(0)
}

func (w *mockWriter) Save(ctx context.Context, itemID int64) error {
	return w.Called(itemID).Error(0)
}

func ptr[T any](v T) *T { return &v }

func entryFor(att *models.Item) *models.Entry {
	id := models.EntryID("missing:00000000")
	if att != nil {
		id = models.AttachmentEntryID(att.ID)
	}
	return models.NewEntry(id, "label", att)
}

var tags = []models.Tag{
	{Name: "2026-10-19 No matching keys found AMM", Type: models.TagManual},
}

func TestApply_TagsAttachmentAndRegularParent(t *testing.T) {
	ctx := context.Background()
	att := &models.Item{ID: 2, Type: models.TypeAttachment, ParentID: ptr(int64(1))}
	parent := &models.Item{ID: 1, Type: "journalArticle"}

	w := &mockWriter{}
	lib := &mockLibrary{writer: w}
	lib.On("Item", ctx, int64(1)).Return(parent, nil)
	lib.On("WithTx", ctx).Return(nil)
	w.On("AddTag", int64(2), tags[0].Name, models.TagManual).Return(nil).Once()
	w.On("Save", int64(2)).Return(nil).Once()
	w.On("AddTag", int64(1), tags[0].Name, models.TagManual).Return(nil).Once()
	w.On("Save", int64(1)).Return(nil).Once()

	require.NoError(t, New(lib, nil).Apply(ctx, entryFor(att), tags))
	lib.AssertExpectations(t)
	w.AssertExpectations(t)
}

func TestApply_SkipsNonRegularParent(t *testing.T) {
	ctx := context.Background()
	att := &models.Item{ID: 2, Type: models.TypeAttachment, ParentID: ptr(int64(1))}
	note := &models.Item{ID: 1, Type: models.TypeNote}

	lib := &mockLibrary{}
	lib.On("Item", ctx, int64(1)).Return(note, nil)

	targets := New(lib, nil).Targets(ctx, entryFor(att))
	require.Len(t, targets, 1)
	assert.Equal(t, int64(2), targets[0].ID)
}

func TestApply_ParentLookupFailureTagsAttachmentOnly(t *testing.T) {
	ctx := context.Background()
	att := &models.Item{ID: 2, Type: models.TypeAttachment, ParentID: ptr(int64(1))}

	lib := &mockLibrary{}
	lib.On("Item", ctx, int64(1)).Return(nil, errors.New("database is locked"))

	targets := New(lib, nil).Targets(ctx, entryFor(att))
	require.Len(t, targets, 1)
	assert.Same(t, att, targets[0])
}

func TestApply_NoTagsOrNoTargetsIsNoop(t *testing.T) {
	ctx := context.Background()
	lib := &mockLibrary{}
	tg := New(lib, nil)

	assert.NoError(t, tg.Apply(ctx, entryFor(&models.Item{ID: 2, Type: models.TypeAttachment}), nil))
	assert.NoError(t, tg.Apply(ctx, entryFor(nil), tags))
	lib.AssertNotCalled(t, "WithTx", mock.Anything)
}

func TestApply_ReturnsTransactionErrors(t *testing.T) {
	ctx := context.Background()
	att := &models.Item{ID: 2, Type: models.TypeAttachment}

	lib := &mockLibrary{writer: &mockWriter{}}
	lib.On("WithTx", ctx).Return(errors.New("database is locked"))
	err := New(lib, nil).Apply(ctx, entryFor(att), tags)
	assert.ErrorContains(t, err, "database is locked")

	w := &mockWriter{}
	w.On("AddTag", int64(2), tags[0].Name, models.TagManual).Return(nil)
	w.On("Save", int64(2)).Return(library.ErrNotFound)
	lib = &mockLibrary{writer: w}
	lib.On("WithTx", ctx).Return(nil)
	err = New(lib, nil).Apply(ctx, entryFor(att), tags)
	assert.ErrorIs(t, err, library.ErrNotFound)
}

func TestApply_SQLiteLibrary(t *testing.T) {
	ctx := context.Background()
	b := librarytest.New(t)
	article := b.Regular("journalArticle", "ART00001", "Sleep")
	pdfID := b.Attachment(article, "PDF00001", models.LinkImportedFile, "storage:walker.pdf")
	standalone := b.Attachment(0, "PDF00002", models.LinkLinkedFile, "/tmp/loose.pdf")
	lib := b.Open(library.ModeAuto)

	pdf, err := lib.Item(ctx, pdfID)
	require.NoError(t, err)
	loose, err := lib.Item(ctx, standalone)
	require.NoError(t, err)

	tg := New(lib, nil)
	first := []models.Tag{{Name: "2026-10-18 No matching keys found AMM"}}
	second := []models.Tag{{Name: "2026-10-19 1 matching key found in \"n.md\" in AMM"}}

	require.NoError(t, tg.Apply(ctx, entryFor(pdf), first))
	require.NoError(t, tg.Apply(ctx, entryFor(pdf), second))
	require.NoError(t, tg.Apply(ctx, entryFor(loose), second))

	want := []string{first[0].Name, second[0].Name}
	assert.Equal(t, want, b.TagNames(pdfID), "tags from earlier runs are kept")
	assert.Equal(t, want, b.TagNames(article))
	assert.Equal(t, []string{second[0].Name}, b.TagNames(standalone))
}
