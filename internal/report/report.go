// Package report folds extracted entries and vault search results into the
// plain-text cross-reference report and the provenance tags for each entry.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"annotation-xref/internal/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DateLayout formats the date prefix of every tag
const DateLayout = "2006-01-02"

const (
	noFilename     = "(no filename)"
	noKeysLine     = "No annotation keys found."
	noMatchesLine  = "No matching keys found."
	blockSeparator = "\n\n"
)

// NoKeysTag is the tag for an entry without annotation keys
func NoKeysTag(date, profile string) string {
	return fmt.Sprintf("%s No annotation keys found in %s", date, profile)
}

// NoMatchesTag is the tag for an entry whose keys matched nothing. Unlike
// the report line for the same case, it has no "in" before the profile.
func NoMatchesTag(date, profile string) string {
	return fmt.Sprintf("%s No matching keys found %s", date, profile)
}

func noMatchesStatus(date, profile string) string {
	return fmt.Sprintf("%s No matching keys found in %s", date, profile)
}

// MatchTag is the tag for the keys of an entry found in one document
func MatchTag(date string, n int, document, profile string) string {
	noun := "keys"
	if n == 1 {
		noun = "key"
	}
	return fmt.Sprintf("%s %d matching %s found in \"%s\" in %s", date, n, noun, document, profile)
}

// Empty is the report for a selection that produced no entries
func Empty(today time.Time, profile string) string {
	date := today.Format(DateLayout)
	return noKeysLine + "\n" + NoKeysTag(date, profile)
}

// Build renders the report for entries and the tags to write for each of
// them. Entries are ordered by label, case- and accent-insensitively, keeping
// their given order on ties; output depends only on the inputs.
func Build(entries []*models.Entry, resolution *models.Resolution, today time.Time, profile string) *models.Report {
	date := today.Format(DateLayout)
	col := collate.New(language.Und, collate.IgnoreCase, collate.IgnoreDiacritics)

	sorted := make([]*models.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return col.CompareString(sorted[i].Label, sorted[j].Label) < 0
	})

	rep := &models.Report{TagsByEntry: make(map[models.EntryID][]models.Tag, len(sorted))}
	blocks := make([]string, 0, len(sorted))

	for _, entry := range sorted {
		text, tags := buildBlock(col, entry, resolution, date, profile)
		blocks = append(blocks, text)
		rep.Order = append(rep.Order, entry.ID)

		named := make([]models.Tag, 0, len(tags))
		for _, t := range tags {
			named = append(named, models.Tag{Name: t, Type: models.TagManual})
		}
		rep.TagsByEntry[entry.ID] = named
	}

	rep.Text = strings.Join(blocks, blockSeparator)
	if rep.Text == "" {
		rep.Text = Empty(today, profile)
	}
	return rep
}

func buildBlock(col *collate.Collator, entry *models.Entry, resolution *models.Resolution, date, profile string) (string, []string) {
	label := entry.Label
	if label == "" {
		label = noFilename
	}
	header := `"Zotero filename": "` + label + `"`

	if !entry.HasKeys() {
		tag := NoKeysTag(date, profile)
		return strings.Join([]string{header, noKeysLine, tag}, "\n"), []string{tag}
	}

	groups := invert(entry.Keys(), resolution)
	if len(groups) == 0 {
		return strings.Join([]string{header, noMatchesLine, noMatchesStatus(date, profile)}, "\n"),
			[]string{NoMatchesTag(date, profile)}
	}

	documents := make([]string, 0, len(groups))
	for doc := range groups {
		documents = append(documents, doc)
	}
	sort.Slice(documents, func(i, j int) bool {
		if c := col.CompareString(documents[i], documents[j]); c != 0 {
			return c < 0
		}
		return documents[i] < documents[j]
	})

	lines := []string{header}
	tags := make([]string, 0, len(documents))
	for _, doc := range documents {
		keys := groups[doc]
		sortKeys(keys)

		lines = append(lines, "\t\"Obsidian filename\": \""+doc+"\"")
		for _, k := range keys {
			lines = append(lines, "\t\t  "+k)
		}
		tag := MatchTag(date, len(keys), doc, profile)
		lines = append(lines, "\t\t  "+tag)
		tags = append(tags, tag)
	}

	return strings.Join(lines, "\n"), tags
}

// invert groups the entry's keys under every document they resolved to
func invert(keys []string, resolution *models.Resolution) map[string][]string {
	groups := make(map[string][]string)
	seen := make(map[string]map[string]struct{})
	for _, k := range keys {
		for _, doc := range resolution.Lookup(k) {
			if seen[doc] == nil {
				seen[doc] = make(map[string]struct{})
			}
			if _, dup := seen[doc][k]; dup {
				continue
			}
			seen[doc][k] = struct{}{}
			groups[doc] = append(groups[doc], k)
		}
	}
	return groups
}

// sortKeys orders keys case-insensitively, byte order breaking ties
func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if a != b {
			return a < b
		}
		return keys[i] < keys[j]
	})
}
