package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/contractdesk/internal/api"
	"github.com/fakeyudi/contractdesk/internal/auth"
	"github.com/fakeyudi/contractdesk/internal/compare"
	"github.com/fakeyudi/contractdesk/internal/config"
	"github.com/fakeyudi/contractdesk/internal/session"
)

const (
	testToken    = "test-token"
	testEmail    = "ana@example.com"
	testPassword = "hunter2"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, stdin io.Reader, args ...string) (output string, err error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	root.SetIn(stdin)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// resetFlags restores every flag to its default; cobra keeps values across
// executions of the same command tree.
func resetFlags(root *cobra.Command) {
	var visit func(c *cobra.Command)
	visit = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		for _, sub := range c.Commands() {
			visit(sub)
		}
	}
	visit(root)
}

// fakeBackend answers the event_type protocol and doubles as blob storage
// for PUTs under /contracts/.
type fakeBackend struct {
	srv *httptest.Server

	mu       sync.Mutex
	reject   bool // answer 401 to every authenticated call
	objects  []string
	puts     []string
	chatURLs [][]string
	cleared  []string
	compares int
	history  []map[string]string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/contracts/") {
		_, _ = io.Copy(io.Discard, r.Body)
		b.mu.Lock()
		b.puts = append(b.puts, strings.TrimPrefix(r.URL.Path, "/contracts/"))
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	op, _ := body["event_type"].(string)

	if op == "login" {
		if body["password"] != testPassword {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Wrong password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": testToken, "user": map[string]any{"email": body["email"]}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reject || r.Header.Get("Authorization") != "Bearer "+testToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "expired"})
		return
	}

	switch op {
	case "getUploadUrl":
		name, _ := body["fileName"].(string)
		b.objects = append(b.objects, name)
		writeJSON(w, http.StatusOK, map[string]any{"uploadUrl": b.srv.URL + "/contracts/" + name + "?sv=2024&sig=secret"})
	case "contractQA":
		var urls []string
		for _, u := range body["fileUrls"].([]any) {
			urls = append(urls, u.(string))
		}
		b.chatURLs = append(b.chatURLs, urls)
		writeJSON(w, http.StatusOK, map[string]any{"llm_response": "The term is 12 months."})
	case "compareContracts":
		b.compares++
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"summary_part": "Contract B charges more.",
			"table1": [{"Clause": "Payment", "Contract_A": "30 days", "Contract_B": "45 days", "Status": "Different"}],
			"table2": [{"Product": "Widget", "Unit_Price_A": "$10", "Unit_Price_B": "$12"}]
		}`)
	case "clearSession":
		id, _ := body["unique_id"].(string)
		b.cleared = append(b.cleared, id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
	case "exportPDF":
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-fake")
	case "getChatHistory":
		msgs := b.history
		if msgs == nil {
			msgs = []map[string]string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
	default:
		http.Error(w, "unknown event", http.StatusBadRequest)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *fakeBackend) snapshot() (objects, puts, cleared []string, compares int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.objects...), append([]string(nil), b.puts...),
		append([]string(nil), b.cleared...), b.compares
}

// setup isolates every on-disk location in a temp dir and points the client
// at a fresh fake backend.
func setup(t *testing.T, loggedIn bool) (*fakeBackend, string) {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(tmp, "state"))
	t.Setenv(config.EnvLogFile, filepath.Join(tmp, "contractdesk.log"))
	t.Setenv(config.EnvProcessingDelay, "0s")
	t.Setenv(config.EnvRelayURL, "")
	t.Chdir(tmp)

	b := newFakeBackend(t)
	t.Setenv(config.EnvAPIURL, b.srv.URL+"/api/vmp_agent")

	if loggedIn {
		store, err := auth.NewStore()
		require.NoError(t, err)
		require.NoError(t, store.Save(&auth.Credentials{Token: testToken, Email: testEmail, Source: "password"}))
	}
	return b, tmp
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("contract body of "+name), 0o644))
	return p
}

func loadSession(t *testing.T) *session.Session {
	t.Helper()
	store, err := session.NewSessionStore()
	require.NoError(t, err)
	s, err := store.Load()
	require.NoError(t, err)
	return s
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(rootCmd, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "contractdesk "), out)
}

func TestLoginWithFlags(t *testing.T) {
	setup(t, false)

	out, err := executeCommand(rootCmd, nil, "login", "--email", testEmail, "--password", testPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as "+testEmail+".")

	store, err := auth.NewStore()
	require.NoError(t, err)
	c, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, testToken, c.Token)
	assert.Equal(t, "password", c.Source)
}

func TestLoginPrompts(t *testing.T) {
	setup(t, false)

	out, err := executeCommand(rootCmd, strings.NewReader(testEmail+"\n"+testPassword+"\n"), "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Email: ")
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Logged in as "+testEmail+".")
}

func TestLoginRejected(t *testing.T) {
	setup(t, false)

	_, err := executeCommand(rootCmd, nil, "login", "--email", testEmail, "--password", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Wrong password")
	assert.NotErrorIs(t, err, errLoginRequired)

	store, err := auth.NewStore()
	require.NoError(t, err)
	_, err = store.Load()
	assert.ErrorIs(t, err, auth.ErrNoCredentials)
}

func TestUploadAndChat(t *testing.T) {
	b, tmp := setup(t, true)
	doc := writeFile(t, tmp, "contract.pdf")

	out, err := executeCommand(rootCmd, nil, "upload", doc)
	require.NoError(t, err)
	s := loadSession(t)
	assert.Contains(t, out, "Uploaded contract.pdf")
	assert.Contains(t, out, "Session: "+s.ID+" (chat mode)")
	assert.True(t, s.FilesUploaded)

	objects, puts, _, _ := b.snapshot()
	assert.Equal(t, []string{"chat/" + s.ID + "/contract.pdf"}, objects)
	assert.Equal(t, objects, puts)

	out, err = executeCommand(rootCmd, nil, "chat", "What", "is", "the", "term?")
	require.NoError(t, err)
	assert.Equal(t, "The term is 12 months.\n", out)

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.chatURLs, 1)
	assert.Equal(t, []string{b.srv.URL + "/contracts/chat/" + s.ID + "/contract.pdf"}, b.chatURLs[0])
}

func TestReuploadStartsNewSession(t *testing.T) {
	b, tmp := setup(t, true)
	doc := writeFile(t, tmp, "contract.pdf")

	_, err := executeCommand(rootCmd, nil, "upload", doc)
	require.NoError(t, err)
	first := loadSession(t).ID

	out, err := executeCommand(rootCmd, nil, "upload", doc)
	require.NoError(t, err)
	second := loadSession(t).ID

	assert.Contains(t, out, session.NewSessionMessage)
	assert.NotEqual(t, first, second)
	_, _, cleared, _ := b.snapshot()
	assert.Equal(t, []string{first}, cleared)
}

func TestUploadRejectsUnsupportedFile(t *testing.T) {
	b, tmp := setup(t, true)
	doc := writeFile(t, tmp, "notes.txt")

	_, err := executeCommand(rootCmd, nil, "upload", doc)
	assert.ErrorIs(t, err, session.ErrUnsupportedFile)
	objects, _, _, _ := b.snapshot()
	assert.Empty(t, objects)
}

func TestCompareModeFillsTwoSlots(t *testing.T) {
	b, tmp := setup(t, true)
	a := writeFile(t, tmp, "a.pdf")
	bb := writeFile(t, tmp, "b.docx")
	c := writeFile(t, tmp, "c.xlsx")

	out, err := executeCommand(rootCmd, nil, "mode", "compare")
	require.NoError(t, err)
	assert.Contains(t, out, "Mode: compare")

	out, err = executeCommand(rootCmd, nil, "upload", a)
	require.NoError(t, err)
	assert.Contains(t, out, "(compare mode)")
	assert.Contains(t, out, "Contract slots filled: 1/2")

	_, err = executeCommand(rootCmd, nil, "upload", bb, c)
	assert.ErrorIs(t, err, session.ErrTooManyFiles)

	_, err = executeCommand(rootCmd, nil, "upload", bb)
	require.NoError(t, err)

	s := loadSession(t)
	assert.True(t, s.FilesUploaded)
	require.Len(t, s.Files, 2)
	objects, _, _, _ := b.snapshot()
	assert.Equal(t, []string{s.ID + "/a.pdf", s.ID + "/b.docx"}, objects)

	_, err = executeCommand(rootCmd, nil, "chat", "hello")
	assert.ErrorIs(t, err, session.ErrWrongMode)
}

// uploadPair leaves a compare session holding two contracts.
func uploadPair(t *testing.T, dir string) {
	t.Helper()
	_, err := executeCommand(rootCmd, nil, "mode", "compare")
	require.NoError(t, err)
	_, err = executeCommand(rootCmd, nil, "upload", writeFile(t, dir, "a.pdf"), writeFile(t, dir, "b.pdf"))
	require.NoError(t, err)
}

func TestCompareRunsOnceAndFilters(t *testing.T) {
	b, tmp := setup(t, true)
	uploadPair(t, tmp)

	out, err := executeCommand(rootCmd, nil, "compare", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Contract B charges more.")
	assert.Contains(t, out, compare.ClauseSection)
	assert.Contains(t, out, "Payment")
	assert.Contains(t, out, "Widget")
	assert.Contains(t, out, "Contract A")

	out, err = executeCommand(rootCmd, nil, "compare", "--plain", "--filter", "widget")
	require.NoError(t, err)
	assert.Contains(t, out, "Widget")
	assert.NotContains(t, out, "Payment")
	assert.Contains(t, out, compare.NoResults)

	_, _, _, compares := b.snapshot()
	assert.Equal(t, 1, compares)

	s := loadSession(t)
	require.NotNil(t, s.Comparison)
	assert.Equal(t, compare.CategoryAll, s.Category)
}

func TestCompareRejectsUnknownCategory(t *testing.T) {
	_, tmp := setup(t, true)
	uploadPair(t, tmp)

	_, err := executeCommand(rootCmd, nil, "compare", "--category", "hardware")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestExport(t *testing.T) {
	_, tmp := setup(t, true)
	uploadPair(t, tmp)

	_, err := executeCommand(rootCmd, nil, "export", "csv")
	assert.ErrorIs(t, err, compare.ErrNoResult)

	_, err = executeCommand(rootCmd, nil, "compare", "--plain")
	require.NoError(t, err)

	out, err := executeCommand(rootCmd, nil, "export", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported to contract-comparison.csv")
	data, err := os.ReadFile(filepath.Join(tmp, "contract-comparison.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), compare.ClauseSection)
	assert.Contains(t, string(data), "Payment")

	mdPath := filepath.Join(tmp, "out.md")
	_, err = executeCommand(rootCmd, nil, "export", "md", "-o", mdPath)
	require.NoError(t, err)
	data, err = os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Widget")

	out, err = executeCommand(rootCmd, nil, "export", "pdf", "-o", "-")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-fake", out)

	_, err = executeCommand(rootCmd, nil, "export", "xml")
	assert.Error(t, err)
}

func TestUnauthorizedSignsOut(t *testing.T) {
	b, tmp := setup(t, true)
	_, err := executeCommand(rootCmd, nil, "upload", writeFile(t, tmp, "contract.pdf"))
	require.NoError(t, err)

	b.mu.Lock()
	b.reject = true
	b.mu.Unlock()

	out, err := executeCommand(rootCmd, nil, "chat", "hello")
	assert.True(t, errors.Is(err, errLoginRequired), "got %v", err)
	assert.Contains(t, out, session.ChatErrorMessage)

	store, err := auth.NewStore()
	require.NoError(t, err)
	_, err = store.Load()
	assert.ErrorIs(t, err, auth.ErrNoCredentials)
}

func TestClear(t *testing.T) {
	b, tmp := setup(t, true)

	out, err := executeCommand(rootCmd, nil, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "no active session")

	_, err = executeCommand(rootCmd, nil, "upload", writeFile(t, tmp, "contract.pdf"))
	require.NoError(t, err)
	id := loadSession(t).ID

	out, err = executeCommand(rootCmd, nil, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Session cleared.")
	_, _, cleared, _ := b.snapshot()
	assert.Equal(t, []string{id}, cleared)

	out, err = executeCommand(rootCmd, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "no active session")
}

func TestModeSwitchDeletesSession(t *testing.T) {
	b, tmp := setup(t, true)
	_, err := executeCommand(rootCmd, nil, "upload", writeFile(t, tmp, "contract.pdf"))
	require.NoError(t, err)
	id := loadSession(t).ID

	_, err = executeCommand(rootCmd, nil, "mode", "compare")
	require.NoError(t, err)
	_, _, cleared, _ := b.snapshot()
	assert.Equal(t, []string{id}, cleared)

	out, err := executeCommand(rootCmd, nil, "mode")
	require.NoError(t, err)
	assert.Equal(t, "compare\n", out)

	_, err = executeCommand(rootCmd, nil, "mode", "draft")
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	b, tmp := setup(t, true)

	out, err := executeCommand(rootCmd, nil, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "no active session")

	_, err = executeCommand(rootCmd, nil, "upload", writeFile(t, tmp, "contract.pdf"))
	require.NoError(t, err)
	_, err = executeCommand(rootCmd, nil, "chat", "What is the term?")
	require.NoError(t, err)

	// Without a server transcript the local conversation is shown.
	out, err = executeCommand(rootCmd, nil, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "user: What is the term?")
	assert.Contains(t, out, "assistant: The term is 12 months.")

	b.mu.Lock()
	b.history = []map[string]string{{"role": "assistant", "content": "Stored answer", "timestamp": "2024-05-01 10:00:00"}}
	b.mu.Unlock()
	out, err = executeCommand(rootCmd, nil, "history")
	require.NoError(t, err)
	assert.Equal(t, "[2024-05-01 10:00:00] assistant: Stored answer\n", out)
}

func TestStatusAndLogout(t *testing.T) {
	_, tmp := setup(t, true)

	out, err := executeCommand(rootCmd, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "User: "+testEmail)
	assert.Contains(t, out, "Mode: chat")
	assert.Contains(t, out, "no active session")

	_, err = executeCommand(rootCmd, nil, "upload", writeFile(t, tmp, "contract.pdf"))
	require.NoError(t, err)
	out, err = executeCommand(rootCmd, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: complete")
	assert.Contains(t, out, "Files: 1")
	assert.Contains(t, out, "contract.pdf")

	out, err = executeCommand(rootCmd, nil, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out.")

	out, err = executeCommand(rootCmd, nil, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "User: not logged in")
}

func TestFriendly(t *testing.T) {
	expired := fmt.Errorf("chat: %w", &api.RequestError{Op: api.OpContractQA, Status: http.StatusUnauthorized})
	assert.Equal(t, errLoginRequired, friendly(expired))

	rejected := &api.RequestError{Op: api.OpLogin, Status: http.StatusUnauthorized, Message: "Wrong password"}
	assert.Equal(t, error(rejected), friendly(rejected))
}

func TestLoginValidation(t *testing.T) {
	setup(t, false)

	_, err := executeCommand(rootCmd, nil, "login", "--email", "not-an-email", "--password", testPassword)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email address")

	_, err = executeCommand(rootCmd, strings.NewReader("\n\n"), "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email and password are required")
}
