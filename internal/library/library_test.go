package library_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"annotation-xref/internal/library"
	"annotation-xref/internal/library/librarytest"
	"annotation-xref/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LibrarySuite struct {
	suite.Suite

	b       *librarytest.Builder
	ctx     context.Context
	article int64
	pdf     int64
	web     int64
	ann1    int64
	ann2    int64
	note    int64
}

func TestLibrarySuite(t *testing.T) {
	suite.Run(t, new(LibrarySuite))
}

func (s *LibrarySuite) SetupTest() {
	s.ctx = context.Background()
	s.b = librarytest.New(s.T())

	s.article = s.b.Regular("journalArticle", "ART00001", "Sleep and memory")
	s.pdf = s.b.Attachment(s.article, "PDF00001", models.LinkImportedFile, "storage:Walker 2017.pdf")
	s.web = s.b.Attachment(s.article, "WEB00001", models.LinkLinkedURL, "")
	s.b.SetField(s.web, "url", "https://example.org/paper")
	s.ann1 = s.b.Annotation(s.pdf, "ABCD1234")
	s.ann2 = s.b.Annotation(s.pdf, "abcd5678")
	s.note = s.b.Note(s.pdf, "NOTE0001")
}

func (s *LibrarySuite) TestItems() {
	lib := s.b.Open(library.ModeAuto)

	items, err := lib.Items(s.ctx, []int64{s.ann1, 9999, s.article, s.pdf})
	s.Require().NoError(err)
	s.Require().Len(items, 3)

	ann, article, pdf := items[0], items[1], items[2]

	s.Equal(models.TypeAnnotation, ann.Type)
	s.Equal("ABCD1234", ann.Key)
	s.Require().NotNil(ann.ParentID)
	s.Equal(s.pdf, *ann.ParentID)

	s.True(article.IsRegularItem())
	s.Equal("Sleep and memory", article.Title)
	s.Nil(article.ParentID)

	s.True(pdf.IsAttachment())
	s.Require().NotNil(pdf.LinkMode)
	s.Equal(models.LinkImportedFile, *pdf.LinkMode)
	s.Equal("Walker 2017.pdf", library.Filename(pdf))
	s.Require().NotNil(pdf.ParentID)
	s.Equal(s.article, *pdf.ParentID)
}

func (s *LibrarySuite) TestItemNotFound() {
	lib := s.b.Open(library.ModeAuto)
	_, err := lib.Item(s.ctx, 4242)
	s.True(errors.Is(err, library.ErrNotFound))
}

func (s *LibrarySuite) TestSelectionByKeyAndID() {
	lib := s.b.Open(library.ModeAuto)

	items, err := lib.Selection(s.ctx, []string{"PDF00001", " ", "nope", "ZZZZZZZZ", "1"})
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(s.pdf, items[0].ID)
	s.Equal(int64(1), items[1].ID)
}

func (s *LibrarySuite) TestSelectionEightDigitRefs() {
	numeric := s.b.Regular("book", "12345678", "Digits")
	lib := s.b.Open(library.ModeAuto)

	items, err := lib.Selection(s.ctx, []string{fmt.Sprintf("%08d", s.pdf), "12345678"})
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(s.pdf, items[0].ID, "no item has this key, so it is an item ID")
	s.Equal(numeric, items[1].ID, "a matching key wins over the item ID")
}

func (s *LibrarySuite) TestAttachmentsAndChildren() {
	lib := s.b.Open(library.ModeAuto)

	atts, err := lib.Attachments(s.ctx, s.article)
	s.Require().NoError(err)
	s.Equal([]int64{s.pdf, s.web}, atts)

	children, err := lib.Children(s.ctx, s.pdf)
	s.Require().NoError(err)
	s.Equal([]int64{s.ann1, s.ann2, s.note}, children)
}

func (s *LibrarySuite) TestAnnotationSourcesAgree() {
	for _, mode := range []library.AnnotationMode{library.ModeDirect, library.ModeChildren} {
		lib := s.b.Open(mode)
		s.Equal(string(mode), lib.AnnotationSourceName())

		anns, err := lib.Annotations(s.ctx, s.pdf)
		s.Require().NoError(err)

		keys := make([]string, 0, len(anns))
		for _, a := range anns {
			keys = append(keys, a.Key)
		}
		s.Equal([]string{"ABCD1234", "abcd5678"}, keys, "mode %s", mode)
	}
}

func (s *LibrarySuite) TestAutoModePrefersAnnotationTable() {
	lib := s.b.Open(library.ModeAuto)
	s.Equal("direct", lib.AnnotationSourceName())
}

func (s *LibrarySuite) TestWithTxCommitsTags() {
	lib := s.b.Open(library.ModeAuto)

	err := lib.WithTx(s.ctx, func(w library.TagWriter) error {
		for _, id := range []int64{s.pdf, s.article} {
			if err := w.AddTag(s.ctx, id, "2026-10-19 No matching keys found AMM", models.TagManual); err != nil {
				return err
			}
			// same name twice collapses like in Zotero
			if err := w.AddTag(s.ctx, id, "2026-10-19 No matching keys found AMM", models.TagManual); err != nil {
				return err
			}
			if err := w.Save(s.ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err)

	tags, err := lib.Tags(s.ctx, s.pdf)
	s.Require().NoError(err)
	s.Equal([]models.Tag{{Name: "2026-10-19 No matching keys found AMM", Type: models.TagManual}}, tags)
	s.Equal([]string{"2026-10-19 No matching keys found AMM"}, s.b.TagNames(s.article))

	var synced int
	s.Require().NoError(s.b.DB.Get(&synced, `SELECT synced FROM items WHERE itemID = ?`, s.pdf))
	s.Equal(0, synced)
}

func (s *LibrarySuite) TestWithTxRollsBackOnError() {
	lib := s.b.Open(library.ModeAuto)

	err := lib.WithTx(s.ctx, func(w library.TagWriter) error {
		if err := w.AddTag(s.ctx, s.pdf, "rolled back", models.TagManual); err != nil {
			return err
		}
		return w.Save(s.ctx, 987654)
	})
	s.Require().Error(err)
	s.True(errors.Is(err, library.ErrNotFound))
	s.Empty(s.b.TagNames(s.pdf))
}

func TestDirectModeNeedsAnnotationTable(t *testing.T) {
	b := librarytest.New(t)
	_, err := b.DB.Exec(`DROP TABLE itemAnnotations`)
	require.NoError(t, err)

	_, err = library.New(context.Background(), b.DB, library.ModeDirect, nil)
	assert.Error(t, err)

	lib := b.Open(library.ModeAuto)
	assert.Equal(t, "children", lib.AnnotationSourceName())

	article := b.Regular("book", "BOOK0001", "A book")
	children, err := lib.Children(context.Background(), article)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestAutoModeOnPreAnnotationSchema(t *testing.T) {
	b := librarytest.New(t)
	article := b.Regular("book", "BOOK0001", "A book")
	pdf := b.Attachment(article, "PDF00001", models.LinkImportedFile, "storage:book.pdf")
	note := b.Note(pdf, "NOTE0001")
	_, err := b.DB.Exec(`DROP TABLE itemAnnotations`)
	require.NoError(t, err)

	lib := b.Open(library.ModeAuto)
	require.Equal(t, "children", lib.AnnotationSourceName())

	children, err := lib.Children(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, []int64{note}, children)

	anns, err := lib.Annotations(context.Background(), pdf)
	require.NoError(t, err)
	assert.Empty(t, anns, "a schema without itemAnnotations holds no annotations")
}

func TestUnknownAnnotationMode(t *testing.T) {
	b := librarytest.New(t)
	_, err := library.New(context.Background(), b.DB, "sometimes", nil)
	assert.Error(t, err)
}

func TestMigrateIsRepeatable(t *testing.T) {
	b := librarytest.New(t)
	require.NoError(t, library.Migrate(b.DB, nil))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "stored file", path: "storage:paper.pdf", want: "paper.pdf"},
		{name: "linked unix path", path: "/home/reader/papers/linked.pdf", want: "linked.pdf"},
		{name: "linked windows path", path: `C:\Users\reader\paper.epub`, want: "paper.epub"},
		{name: "no path", path: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, library.Filename(&models.Item{Path: tt.path}))
		})
	}
	assert.Equal(t, "", library.Filename(nil))
}
