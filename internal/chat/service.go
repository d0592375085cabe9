package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"researchflow-backend/internal/settings"
	"researchflow-backend/internal/workflow"

	"gorm.io/gorm"
)

// Service drives the chat lifecycle on top of the store: new-chat title
// generation, history truncation, recording the exchange, and
// rename-on-response bookkeeping.
type Service struct {
	db       *gorm.DB
	wf       *workflow.Client
	settings *settings.Store
}

func NewService(db *gorm.DB, wf *workflow.Client, settings *settings.Store) *Service {
	return &Service{db: db, wf: wf, settings: settings}
}

// SendResult is the outcome of one user message.
type SendResult struct {
	Title       string `json:"title"`
	Answer      string `json:"answer"`
	UserInputID uint   `json:"user_input_id"`
	Version     int    `json:"version"`
}

// SendMessage handles one user turn. For a new chat the session has no title
// yet: a synthetic request asks the workflow service for one, the session
// row is created and the selected-chat setting is moved to it. After that the
// session is existing and title generation never runs again. Remote failures
// degrade to an empty answer; the exchange is still recorded so the user can
// regenerate.
func (s *Service) SendMessage(ctx context.Context, title, query string, newChat bool) (SendResult, error) {
	if newChat {
		generated, err := s.generateTitle(ctx, query)
		if err != nil {
			return SendResult{}, err
		}

		if _, err := CreateSession(s.db, generated); err != nil {
			return SendResult{}, err
		}
		if err := s.settings.SetSelectedChat(generated); err != nil {
			return SendResult{}, err
		}
		title = generated
	}

	history, err := LoadChatHistory(s.db, title)
	if err != nil {
		return SendResult{}, err
	}

	payload := Payload{
		Query:       query,
		ChatHistory: TruncateHistory(query, history),
		Extra:       map[string]any{"new_chat": "False"},
	}

	answer := ""
	outputs, err := s.wf.Run(ctx, payload)
	if err != nil {
		slog.Error("workflow call failed, recording empty answer", "session", title, "error", err)
	} else {
		answer = outputs.Answer
	}

	inputID, err := s.recordExchange(title, payload, answer)
	if err != nil {
		return SendResult{}, err
	}

	// The workflow can hand back a better title mid-conversation (e.g. once
	// it has seen the first real query). Move the session and the selected
	// pointer together; a collision keeps the current title.
	if outputs.NewChatTitle != "" && outputs.NewChatTitle != title {
		if err := RenameSession(s.db, title, outputs.NewChatTitle); err != nil {
			if errors.Is(err, ErrDuplicateSession) {
				slog.Warn("generated title already taken, keeping current", "session", title, "generated", outputs.NewChatTitle)
			} else {
				return SendResult{}, err
			}
		} else {
			title = outputs.NewChatTitle
			if err := s.settings.SetSelectedChat(title); err != nil {
				return SendResult{}, err
			}
		}
	}

	return SendResult{Title: title, Answer: answer, UserInputID: inputID, Version: 1}, nil
}

// Regenerate re-sends a stored user input with the current history and
// appends the reply as the next version, leaving earlier attempts intact.
func (s *Service) Regenerate(ctx context.Context, title string, userInputID uint) (SendResult, error) {
	input, err := GetUserInput(s.db, userInputID)
	if err != nil {
		return SendResult{}, err
	}

	payload, err := ParsePayload(input.Content)
	if err != nil {
		return SendResult{}, err
	}

	history, err := LoadChatHistory(s.db, title)
	if err != nil {
		return SendResult{}, err
	}
	payload.ChatHistory = TruncateHistory(payload.Query, history)

	answer := ""
	outputs, err := s.wf.Run(ctx, payload)
	if err != nil {
		slog.Error("workflow call failed during regenerate", "session", title, "user_input_id", userInputID, "error", err)
	} else {
		answer = outputs.Answer
	}

	version, err := NextResponseVersion(s.db, userInputID)
	if err != nil {
		return SendResult{}, err
	}
	if err := AddAIResponse(s.db, title, userInputID, answer, version); err != nil {
		return SendResult{}, err
	}

	return SendResult{Title: title, Answer: answer, UserInputID: userInputID, Version: version}, nil
}

func (s *Service) generateTitle(ctx context.Context, query string) (string, error) {
	payload := Payload{
		Query:       fmt.Sprintf("Can you generate a single chat title for this user input: '%s'\nI only need one chat title", query),
		ChatHistory: "[]",
		Extra:       map[string]any{"new_chat": "True"},
	}

	outputs, err := s.wf.Run(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("error generating chat title: %w", err)
	}
	if outputs.NewChatTitle == "" {
		return "", errors.New("workflow service did not return a chat title")
	}
	return outputs.NewChatTitle, nil
}

// recordExchange persists the user turn and its first reply version.
func (s *Service) recordExchange(title string, payload Payload, answer string) (uint, error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("error serializing user input: %w", err)
	}

	inputID, err := AddUserInput(s.db, title, content)
	if err != nil {
		return 0, err
	}
	if err := AddAIResponse(s.db, title, inputID, answer, 1); err != nil {
		return 0, err
	}
	return inputID, nil
}
