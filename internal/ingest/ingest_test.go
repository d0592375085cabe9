package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"researchflow-backend/internal/chat"
	"researchflow-backend/internal/database"
	"researchflow-backend/internal/settings"
	"researchflow-backend/internal/storage"
	"researchflow-backend/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeWorkflow struct {
	uploadedName     string
	uploadedContents string
	runInputs        map[string]any
	newChatTitle     string
}

// newTestIngestor stands up an Ingestor against a fake workflow service that
// records what it receives.
func newTestIngestor(t *testing.T, fake *fakeWorkflow) (*Ingestor, *gorm.DB, *settings.Store, string) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/files/upload":
			require.NoError(t, r.ParseMultipartForm(10<<20))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			contents, err := io.ReadAll(file)
			require.NoError(t, err)
			fake.uploadedName = header.Filename
			fake.uploadedContents = string(contents)
			io.WriteString(w, `{"id": "remote-id-1", "name": "`+header.Filename+`"}`)
		case "/workflows/run":
			var body struct {
				Inputs map[string]any `json:"inputs"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			fake.runInputs = body.Inputs
			require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"outputs": map[string]any{
						"response":       "## Paper Report\n\nsummary",
						"new_chat_title": fake.newChatTitle,
					},
				},
			}))
		default:
			t.Fatalf("unexpected request path %s", r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	markdownDir := t.TempDir()
	store, err := storage.NewMarkdownStore(markdownDir)
	require.NoError(t, err)

	settingsStore, err := settings.Load(db)
	require.NoError(t, err)

	wf := workflow.NewClient(server.URL, "test-key")
	return NewIngestor(db, wf, store, settingsStore), db, settingsStore, markdownDir
}

func TestIngestMarkdownNewChat(t *testing.T) {
	fake := &fakeWorkflow{newChatTitle: "Attention Is All You Need"}
	ingestor, db, settingsStore, markdownDir := newTestIngestor(t, fake)

	result, err := ingestor.Ingest(context.Background(), "attention.md", []byte("# Attention\n\nfull text"), "", true)
	require.NoError(t, err)

	assert.Equal(t, "Attention Is All You Need", result.Title)
	assert.Equal(t, "## Paper Report\n\nsummary", result.Report)
	assert.Equal(t, "attention.md", result.FileName)
	assert.Equal(t, "remote-id-1", result.FileID)

	// The converted markdown went to the remote service unchanged.
	assert.Equal(t, "attention.md", fake.uploadedName)
	assert.Equal(t, "# Attention\n\nfull text", fake.uploadedContents)

	// The run inputs carry the file reference and the knowledge base name.
	paper, ok := fake.runInputs["ResearchPaper"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "remote-id-1", paper["upload_file_id"])
	assert.Equal(t, "local_file", paper["transfer_method"])
	assert.Equal(t, "attention.md", fake.runInputs["Knownledge_Base_Name"])
	assert.Equal(t, "Generate Paper Report", fake.runInputs["query"])

	// Session created, attachment recorded, selected chat moved.
	assert.Equal(t, "Attention Is All You Need", settingsStore.Get().SelectedChat)
	info, ok2, err := chat.LoadFileInfo(db, "Attention Is All You Need")
	require.NoError(t, err)
	require.True(t, ok2)
	assert.Equal(t, chat.FileInfo{FileName: "attention.md", FileID: "remote-id-1"}, info)

	// The exchange is recorded with the report as the first reply version.
	responses, err := chat.GetAIResponses(db, result.UserInputID)
	require.NoError(t, err)
	assert.Equal(t, []chat.VersionedResponse{{Content: "## Paper Report\n\nsummary", Version: 1}}, responses)

	input, err := chat.GetUserInput(db, result.UserInputID)
	require.NoError(t, err)
	payload, err := chat.ParsePayload(input.Content)
	require.NoError(t, err)
	assert.Equal(t, "Generate a report for : 'Attention Is All You Need'", payload.Query)

	// Local scratch copies are gone once the remote service holds the file.
	entries, err := os.ReadDir(markdownDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngestExistingChatAdoptsBetterTitle(t *testing.T) {
	fake := &fakeWorkflow{newChatTitle: "Improved Title"}
	ingestor, db, settingsStore, _ := newTestIngestor(t, fake)

	_, err := chat.CreateSession(db, "draft chat")
	require.NoError(t, err)

	result, err := ingestor.Ingest(context.Background(), "paper.md", []byte("text"), "draft chat", false)
	require.NoError(t, err)

	assert.Equal(t, "Improved Title", result.Title)
	assert.Equal(t, "Improved Title", settingsStore.Get().SelectedChat)
	_, err = chat.GetSession(db, "draft chat")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestIngestExistingChatKeepsTitleOnCollision(t *testing.T) {
	fake := &fakeWorkflow{newChatTitle: "taken"}
	ingestor, db, _, _ := newTestIngestor(t, fake)

	_, err := chat.CreateSession(db, "taken")
	require.NoError(t, err)
	_, err = chat.CreateSession(db, "mine")
	require.NoError(t, err)

	result, err := ingestor.Ingest(context.Background(), "paper.md", []byte("text"), "mine", false)
	require.NoError(t, err)
	assert.Equal(t, "mine", result.Title)
}

func TestIngestNewChatRequiresGeneratedTitle(t *testing.T) {
	fake := &fakeWorkflow{newChatTitle: ""}
	ingestor, _, _, _ := newTestIngestor(t, fake)

	_, err := ingestor.Ingest(context.Background(), "paper.md", []byte("text"), "", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestIngestRejectsUnsupportedFileType(t *testing.T) {
	fake := &fakeWorkflow{}
	ingestor, _, _, _ := newTestIngestor(t, fake)

	_, err := ingestor.Ingest(context.Background(), "paper.docx", []byte("text"), "", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestConvertMapsExtensions(t *testing.T) {
	markdown, err := convert("notes.md", []byte("# Notes"))
	require.NoError(t, err)
	assert.Equal(t, "# Notes", markdown)

	_, err = convert("data.csv", []byte("a,b"))
	assert.Error(t, err)
}
