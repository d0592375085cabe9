package chat

import (
	"encoding/json"
	"fmt"
)

// Payload is the structured request envelope stored as a user input and sent
// to the workflow service. Query and ChatHistory are always present;
// workflow-specific fields (file references, flags) travel in Extra and are
// flattened into the same JSON object at the store boundary.
type Payload struct {
	Query       string
	ChatHistory string
	Extra       map[string]any
}

func (p Payload) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		obj[k] = v
	}
	obj["query"] = p.Query
	obj["chat_history"] = p.ChatHistory
	return json.Marshal(obj)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	if q, ok := obj["query"].(string); ok {
		p.Query = q
	}
	if h, ok := obj["chat_history"].(string); ok {
		p.ChatHistory = h
	}
	delete(obj, "query")
	delete(obj, "chat_history")

	if len(obj) > 0 {
		p.Extra = obj
	} else {
		p.Extra = nil
	}
	return nil
}

// ParsePayload decodes a stored user input envelope.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("error parsing user input payload: %w", err)
	}
	return p, nil
}
