package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"annotation-xref/internal/config"
	"annotation-xref/internal/library/librarytest"
	"annotation-xref/internal/models"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, libraryPath, vaultURL string) string {
	t.Helper()
	body := fmt.Sprintf(`
default_profile: AMM
profiles:
  AMM:
    base_url: %s
    token: amm-token
  Sleep:
    base_url: %s
    token: sleep-token
library:
  path: %s
log:
  level: error
`, vaultURL, vaultURL, libraryPath)
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// vaultServer answers searches from docs and records the vault header
func vaultServer(t *testing.T, docs map[string][]string) (*httptest.Server, *[]string) {
	t.Helper()
	var vaults []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`{"status":"OK","authenticated":true}`))
			return
		}
		vaults = append(vaults, r.Header.Get("X-Obsidian-Vault"))
		var hits []map[string]string
		for _, d := range docs[r.URL.Query().Get("query")] {
			hits = append(hits, map[string]string{"filename": d})
		}
		if hits == nil {
			hits = []map[string]string{}
		}
		_ = json.NewEncoder(w).Encode(hits)
	}))
	t.Cleanup(srv.Close)
	return srv, &vaults
}

func TestRunCommand(t *testing.T) {
	b := librarytest.New(t)
	article := b.Regular("journalArticle", "ART00001", "Sleep and memory")
	pdf := b.Attachment(article, "PDF00001", models.LinkImportedFile, "storage:walker.pdf")
	b.Annotation(pdf, "ABCD1234")
	b.Annotation(pdf, "abcd5678")

	srv, vaults := vaultServer(t, map[string][]string{"ABCD1234": {"note.md"}})
	cfgPath := writeConfig(t, b.Path, srv.URL)

	stdout, _, err := execute(t, "run", "--config", cfgPath, "--profile", "Sleep", "ART00001")
	require.NoError(t, err)

	date := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, strings.Join([]string{
		`"Zotero filename": "walker.pdf"`,
		"\t\"Obsidian filename\": \"note.md\"",
		"\t\t  ABCD1234",
		"\t\t  " + date + " 1 matching key found in \"note.md\" in Sleep",
	}, "\n")+"\n", stdout)
	assert.Equal(t, []string{"Sleep", "Sleep"}, *vaults)
	assert.Equal(t, []string{date + ` 1 matching key found in "note.md" in Sleep`}, b.TagNames(article))
}

func TestRunCommand_JSONAndOutputFile(t *testing.T) {
	b := librarytest.New(t)
	pdf := b.Attachment(0, "PDF00001", models.LinkImportedFile, "storage:loose.pdf")
	b.Annotation(pdf, "KEY00001")

	srv, _ := vaultServer(t, nil)
	cfgPath := writeConfig(t, b.Path, srv.URL)
	outPath := filepath.Join(t.TempDir(), "report.json")

	stdout, _, err := execute(t, "run", "-c", cfgPath, "--json", "-o", outPath, "--items", "PDF00001")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var got struct {
		Report  string `json:"report"`
		Profile string `json:"profile"`
		Keys    int    `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "AMM", got.Profile)
	assert.Equal(t, 1, got.Keys)
	assert.Contains(t, got.Report, "No matching keys found.")
}

func TestRunCommand_EmptySelectionPrintsNothing(t *testing.T) {
	b := librarytest.New(t)
	srv, vaults := vaultServer(t, nil)
	cfgPath := writeConfig(t, b.Path, srv.URL)

	stdout, _, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Empty(t, *vaults)
}

func TestRunCommand_MissingLibrary(t *testing.T) {
	srv, _ := vaultServer(t, nil)
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "absent.sqlite"), srv.URL)

	_, _, err := execute(t, "run", "--config", cfgPath, "ART00001")
	assert.Error(t, err)
}

func TestProfilesCommand(t *testing.T) {
	cfgPath := writeConfig(t, "/tmp/zotero.sqlite", "http://127.0.0.1:27123")

	stdout, _, err := execute(t, "profiles", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "* AMM\thttp://127.0.0.1:27123\n  Sleep\thttp://127.0.0.1:27123\n", stdout)
}

func TestInitLibraryAndDoctor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zotero.sqlite")

	stdout, _, err := execute(t, "init-library", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "created")

	_, _, err = execute(t, "init-library", path)
	assert.Error(t, err, "existing files are never overwritten")

	srv, _ := vaultServer(t, nil)
	stdout, _, err = execute(t, "doctor", "--config", writeConfig(t, path, srv.URL))
	require.NoError(t, err)
	assert.Contains(t, stdout, "annotations: direct")
	assert.Equal(t, 3, strings.Count(stdout, " ok "))
}

func TestDoctorReportsUnreachableVault(t *testing.T) {
	b := librarytest.New(t)
	srv, _ := vaultServer(t, nil)
	url := srv.URL
	srv.Close()

	stdout, _, err := execute(t, "doctor", "--config", writeConfig(t, b.Path, url))
	assert.ErrorContains(t, err, "2 problem(s)")
	assert.Equal(t, 2, strings.Count(stdout, "FAIL"))
}

func TestPickerModel(t *testing.T) {
	m := newPickerModel([]string{"AMM", "Anki", "Sleep"}, "Anki")
	assert.Equal(t, 1, m.cursor, "starts on the default")
	assert.Contains(t, m.View(), "(default)")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	got := next.(pickerModel)
	assert.Equal(t, "Sleep", got.chosen)
	assert.True(t, got.done)
	assert.NotNil(t, cmd)
	assert.Empty(t, got.View())

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, next.(pickerModel).cursor)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, "", next.(pickerModel).chosen, "backing out keeps the default")
	assert.True(t, next.(pickerModel).done)
}

func TestServeListensOnLoopbackByDefault(t *testing.T) {
	cfg, err := config.LoadConfig(writeConfig(t, "/tmp/zotero.sqlite", "http://127.0.0.1:27123"))
	require.NoError(t, err)

	serve, _, err := NewRootCommand("test").Find([]string{"serve"})
	require.NoError(t, err)

	addr, err := listenAddr(serve, cfg)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8003", addr)

	require.NoError(t, serve.Flags().Set("host", "::1"))
	require.NoError(t, serve.Flags().Set("port", "9000"))
	addr, err = listenAddr(serve, cfg)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:9000", addr)
}
