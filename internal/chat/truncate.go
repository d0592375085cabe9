package chat

import (
	"encoding/json"
	"log/slog"
)

// MaxContextSize bounds the serialized size of query + retained history sent
// to the workflow service on each request.
const MaxContextSize = 6000

// Turn is one entry of flattened conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func turnSize(turn Turn) int {
	b, err := json.Marshal(turn)
	if err != nil {
		// Turn contains only strings, so this cannot happen.
		return 0
	}
	return len(b)
}

// truncateToFit walks the history newest to oldest, keeping turns while the
// accumulated serialized size stays within maxSize, then restores the
// original oldest-first order. The first turn that would overflow ends the
// walk, so the kept turns are always a contiguous suffix of the input.
func truncateToFit(history []Turn, maxSize int) []Turn {
	var kept []Turn
	currentSize := 0

	for i := len(history) - 1; i >= 0; i-- {
		size := turnSize(history[i])
		if currentSize+size > maxSize {
			break
		}
		kept = append(kept, history[i])
		currentSize += size
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// TruncateHistory fits the prior turns alongside the new query into
// MaxContextSize. Only history is trimmed, oldest turns first; the query is
// never touched even when it alone exceeds the budget. The result is the
// serialized turn list as it is embedded into the request envelope.
func TruncateHistory(query string, history []Turn) string {
	querySize := len(serializeString(query))

	historySize := 0
	for _, turn := range history {
		historySize += turnSize(turn)
	}

	if querySize+historySize > MaxContextSize {
		excess := querySize + historySize - MaxContextSize
		historySpace := max(0, historySize-excess)
		history = truncateToFit(history, historySpace)
		slog.Debug("truncated chat history", "history_size", historySize, "history_space", historySpace, "kept_turns", len(history))
	}

	if len(history) == 0 {
		return "[]"
	}

	b, err := json.Marshal(history)
	if err != nil {
		slog.Error("error serializing chat history", "error", err)
		return "[]"
	}
	return string(b)
}

func serializeString(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return b
}
