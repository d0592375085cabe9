package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadFlattensExtraFields(t *testing.T) {
	payload := Payload{
		Query:       "what is attention?",
		ChatHistory: "[]",
		Extra:       map[string]any{"new_chat": "False", "Knownledge_Base_Name": "paper.md"},
	}

	encoded, err := json.Marshal(payload)
	require.NoError(t, err)

	// Extra keys sit at the top level alongside query and chat_history, the
	// shape the workflow service expects for its inputs object.
	var flat map[string]any
	require.NoError(t, json.Unmarshal(encoded, &flat))
	assert.Equal(t, "what is attention?", flat["query"])
	assert.Equal(t, "[]", flat["chat_history"])
	assert.Equal(t, "False", flat["new_chat"])
	assert.Equal(t, "paper.md", flat["Knownledge_Base_Name"])

	parsed, err := ParsePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload.Query, parsed.Query)
	assert.Equal(t, payload.ChatHistory, parsed.ChatHistory)
	assert.Equal(t, "False", parsed.Extra["new_chat"])
	assert.Equal(t, "paper.md", parsed.Extra["Knownledge_Base_Name"])
	assert.NotContains(t, parsed.Extra, "query")
}

func TestParsePayloadRejectsInvalidJSON(t *testing.T) {
	_, err := ParsePayload([]byte("{not json"))
	assert.Error(t, err)
}
