package workflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "test-key")
}

func TestRunSendsBlockingRequest(t *testing.T) {
	client := runServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workflows/run", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "blocking", body["response_mode"])
		user, _ := body["user"].(string)
		assert.True(t, strings.HasPrefix(user, "researchflow-"), "user %q", user)
		assert.Equal(t, map[string]any{"query": "hi"}, body["inputs"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data": {"outputs": {"response": "hello back", "new_chat_title": "Greetings"}}}`)
	})

	outputs, err := client.Run(context.Background(), map[string]any{"query": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello back", outputs.Answer)
	assert.Equal(t, "Greetings", outputs.NewChatTitle)
}

func TestRunAppendsGraph(t *testing.T) {
	client := runServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data": {"outputs": {"response": "results", "graph": "graph TD; a-->b"}}}`)
	})

	outputs, err := client.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "results\n\n### Visualization of Database\ngraph TD; a-->b", outputs.Answer)
}

func TestRunEmptyOutputsFallsBack(t *testing.T) {
	client := runServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data": {"outputs": {}}}`)
	})

	outputs, err := client.Run(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, outputs.Answer)
	assert.Empty(t, outputs.NewChatTitle)
}

func TestRunPropagatesHTTPError(t *testing.T) {
	client := runServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.Run(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestUploadFile(t *testing.T) {
	client := runServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(10<<20))

		assert.True(t, strings.HasPrefix(r.FormValue("user"), "researchflow-"))
		assert.Equal(t, "MD", r.FormValue("type"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "paper.md", header.Filename)

		contents, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "# Paper\n\nbody", string(contents))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "remote-42", "name": "paper.md"}`)
	})

	info, err := client.UploadFile(context.Background(), "paper.md", []byte("# Paper\n\nbody"))
	require.NoError(t, err)
	assert.Equal(t, FileInfo{ID: "remote-42", Name: "paper.md"}, info)
}

func TestUploadFileError(t *testing.T) {
	client := runServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported file type", http.StatusUnsupportedMediaType)
	})

	_, err := client.UploadFile(context.Background(), "paper.md", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "415")
}
