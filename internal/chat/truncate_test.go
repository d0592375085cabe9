package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestTruncateHistoryNoOpWithinBudget(t *testing.T) {
	history := []Turn{
		{Role: "user", Content: "what is a transformer?"},
		{Role: "ai", Content: "a neural network architecture based on attention"},
		{Role: "user", Content: "who introduced it?"},
	}

	out := TruncateHistory("tell me more", history)
	assert.Equal(t, mustMarshal(t, history), out)
}

func TestTruncateHistoryEmpty(t *testing.T) {
	assert.Equal(t, "[]", TruncateHistory("hello", nil))
	assert.Equal(t, "[]", TruncateHistory("hello", []Turn{}))
}

func TestTruncateHistoryDropsOldestFirst(t *testing.T) {
	oldest := Turn{Role: "user", Content: strings.Repeat("A", 6100)}
	newest := Turn{Role: "ai", Content: "B"}

	out := TruncateHistory("Q", []Turn{oldest, newest})

	// The oversized oldest turn cannot fit, the small newest one can.
	assert.Equal(t, mustMarshal(t, []Turn{newest}), out)
}

func TestTruncateHistoryKeepsContiguousSuffix(t *testing.T) {
	var history []Turn
	for i := 0; i < 40; i++ {
		history = append(history, Turn{Role: "user", Content: fmt.Sprintf("turn %02d %s", i, strings.Repeat("x", 300))})
	}

	out := TruncateHistory("a query", history)

	var kept []Turn
	require.NoError(t, json.Unmarshal([]byte(out), &kept))
	require.NotEmpty(t, kept)
	require.Less(t, len(kept), len(history))

	// For any kept turn, all newer turns are also kept, in order.
	assert.Equal(t, history[len(history)-len(kept):], kept)
}

func TestTruncateHistoryRespectsBudget(t *testing.T) {
	var history []Turn
	historySize := 0
	for i := 0; i < 40; i++ {
		turn := Turn{Role: "ai", Content: strings.Repeat("y", 250)}
		history = append(history, turn)
		historySize += turnSize(turn)
	}

	query := strings.Repeat("q", 500)
	querySize := len(serializeString(query))
	require.Greater(t, querySize+historySize, MaxContextSize)

	var kept []Turn
	require.NoError(t, json.Unmarshal([]byte(TruncateHistory(query, history)), &kept))

	keptSize := 0
	for _, turn := range kept {
		keptSize += turnSize(turn)
	}

	excess := querySize + historySize - MaxContextSize
	historySpace := historySize - excess
	assert.LessOrEqual(t, keptSize, historySpace)
}

func TestTruncateHistoryOversizedQueryTrimsToEmpty(t *testing.T) {
	history := []Turn{
		{Role: "user", Content: "short"},
		{Role: "ai", Content: "also short"},
	}

	// The query alone blows the budget; history space collapses to zero but
	// the query is never touched.
	out := TruncateHistory(strings.Repeat("q", 7000), history)
	assert.Equal(t, "[]", out)
}

func TestTruncateHistoryIdempotent(t *testing.T) {
	var history []Turn
	for i := 0; i < 30; i++ {
		history = append(history, Turn{Role: "user", Content: strings.Repeat("z", 400)})
	}

	query := "follow-up question"
	first := TruncateHistory(query, history)

	var kept []Turn
	require.NoError(t, json.Unmarshal([]byte(first), &kept))

	assert.Equal(t, first, TruncateHistory(query, kept))
}
