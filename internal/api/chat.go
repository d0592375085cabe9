package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"researchflow-backend/internal/chat"
	"researchflow-backend/internal/ingest"
	"researchflow-backend/internal/settings"
	"researchflow-backend/pkg/api"
)

type ChatService struct {
	db       *gorm.DB
	chats    *chat.Service
	ingestor *ingest.Ingestor
	settings *settings.Store
}

func NewChatService(db *gorm.DB, chats *chat.Service, ingestor *ingest.Ingestor, settings *settings.Store) *ChatService {
	return &ChatService{db: db, chats: chats, ingestor: ingestor, settings: settings}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Get("/sessions", RestHandler(s.GetSessions))
		r.Post("/sessions", RestHandler(s.CreateSession))
		r.Post("/messages", RestHandler(s.SendFirstMessage))
		r.Route("/sessions/{title}", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetSession))
			r.Delete("/", RestHandler(s.DeleteSession))
			r.Post("/rename", RestHandler(s.RenameSession))
			r.Post("/messages", RestHandler(s.SendMessage))
			r.Post("/regenerate", RestHandler(s.Regenerate))
			r.Get("/history", RestHandler(s.GetHistory))
			r.Get("/transcript", RestHandler(s.GetTranscript))
			r.Get("/file", RestHandler(s.GetFileInfo))
			r.Post("/upload", RestHandler(s.UploadDocument))
		})
		r.Get("/responses/{user_input_id}", RestHandler(s.GetResponses))
		r.Post("/responses/edit", RestHandler(s.UpdateResponse))
		r.Post("/responses/code", RestHandler(s.UpdateResponseCode))
	})
}

// storeError maps the store's sentinel errors onto HTTP statuses.
func storeError(err error) error {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound), errors.Is(err, chat.ErrUserInputNotFound):
		return CodedError(http.StatusNotFound, err)
	case errors.Is(err, chat.ErrDuplicateSession):
		return CodedError(http.StatusConflict, err)
	default:
		return CodedError(http.StatusInternalServerError, err)
	}
}

func (s *ChatService) GetSessions(r *http.Request) (any, error) {
	sessions, err := chat.ListSessions(s.db)
	if err != nil {
		return nil, storeError(err)
	}

	resp := api.GetSessionsResponse{Sessions: []api.SessionMetadata{}}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, api.SessionMetadata{
			Title:     session.Title,
			FileName:  session.FileName,
			FileID:    session.FileID,
			Timestamp: session.Timestamp,
		})
	}
	return resp, nil
}

func (s *ChatService) GetSession(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}

	session, err := chat.GetSession(s.db, title)
	if err != nil {
		return nil, storeError(err)
	}

	return api.SessionMetadata{
		Title:     session.Title,
		FileName:  session.FileName,
		FileID:    session.FileID,
		Timestamp: session.Timestamp,
	}, nil
}

func (s *ChatService) CreateSession(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateSessionRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "title is required")
	}

	session, err := chat.CreateSession(s.db, req.Title)
	if err != nil {
		return nil, storeError(err)
	}

	return api.SessionMetadata{Title: session.Title, Timestamp: session.Timestamp}, nil
}

func (s *ChatService) DeleteSession(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}

	if err := chat.DeleteSession(s.db, title); err != nil {
		return nil, storeError(err)
	}

	// Point the selected chat at the most recent remaining session so the
	// next load does not land on the deleted one.
	if s.settings.Get().SelectedChat == title {
		sessions, err := chat.ListSessions(s.db)
		if err != nil {
			return nil, storeError(err)
		}
		next := ""
		if len(sessions) > 0 {
			next = sessions[0].Title
		}
		if err := s.settings.SetSelectedChat(next); err != nil {
			return nil, CodedError(http.StatusInternalServerError, err)
		}
	}

	return nil, nil
}

func (s *ChatService) RenameSession(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.RenameSessionRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "title is required")
	}

	if err := chat.RenameSession(s.db, title, req.Title); err != nil {
		return nil, storeError(err)
	}

	if s.settings.Get().SelectedChat == title {
		if err := s.settings.SetSelectedChat(req.Title); err != nil {
			return nil, CodedError(http.StatusInternalServerError, err)
		}
	}

	return nil, nil
}

// SendFirstMessage starts a brand new conversation: the session has no title
// until the workflow service generates one from the first query.
func (s *ChatService) SendFirstMessage(r *http.Request) (any, error) {
	req, err := ParseRequest[api.SendMessageRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "query is required")
	}

	result, err := s.chats.SendMessage(r.Context(), "", req.Query, true)
	if err != nil {
		return nil, storeError(err)
	}
	return sendResponse(result), nil
}

func (s *ChatService) SendMessage(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.SendMessageRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "query is required")
	}

	result, err := s.chats.SendMessage(r.Context(), title, req.Query, req.NewChat)
	if err != nil {
		return nil, storeError(err)
	}
	return sendResponse(result), nil
}

func (s *ChatService) Regenerate(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest[api.RegenerateRequest](r)
	if err != nil {
		return nil, err
	}

	result, err := s.chats.Regenerate(r.Context(), title, req.UserInputID)
	if err != nil {
		return nil, storeError(err)
	}
	return sendResponse(result), nil
}

func sendResponse(result chat.SendResult) api.SendMessageResponse {
	return api.SendMessageResponse{
		Title:       result.Title,
		Answer:      result.Answer,
		UserInputID: result.UserInputID,
		Version:     result.Version,
	}
}

func (s *ChatService) GetHistory(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}

	turns, err := chat.LoadChatHistory(s.db, title)
	if err != nil {
		return nil, storeError(err)
	}

	resp := []api.HistoryTurn{}
	for _, turn := range turns {
		resp = append(resp, api.HistoryTurn{Role: turn.Role, Content: turn.Content})
	}
	return resp, nil
}

func (s *ChatService) GetTranscript(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}

	turns, err := chat.LoadSessionView(s.db, title)
	if err != nil {
		return nil, storeError(err)
	}

	resp := []api.TranscriptTurn{}
	for _, turn := range turns {
		resp = append(resp, api.TranscriptTurn{
			Role:        turn.Role,
			Content:     turn.Content,
			UserInputID: turn.UserInputID,
			UserInput:   turn.UserInput,
			Version:     turn.Version,
		})
	}
	return resp, nil
}

func (s *ChatService) GetResponses(r *http.Request) (any, error) {
	param := chi.URLParam(r, "user_input_id")
	userInputID, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid user_input_id '%v' url parameter", param)
	}

	responses, err := chat.GetAIResponses(s.db, uint(userInputID))
	if err != nil {
		return nil, storeError(err)
	}

	resp := api.GetResponsesResponse{Responses: []api.ResponseVersion{}}
	for _, response := range responses {
		resp.Responses = append(resp.Responses, api.ResponseVersion{Content: response.Content, Version: response.Version})
	}
	return resp, nil
}

func (s *ChatService) UpdateResponse(r *http.Request) (any, error) {
	req, err := ParseRequest[api.UpdateResponseRequest](r)
	if err != nil {
		return nil, err
	}

	if err := chat.UpdateAIResponse(s.db, req.UserInputID, req.Version, req.Content); err != nil {
		return nil, storeError(err)
	}
	return nil, nil
}

func (s *ChatService) UpdateResponseCode(r *http.Request) (any, error) {
	req, err := ParseRequest[api.UpdateResponseCodeRequest](r)
	if err != nil {
		return nil, err
	}

	if err := chat.UpdateAIResponseCode(s.db, req.UserInputID, req.Version, req.EditedCode); err != nil {
		return nil, storeError(err)
	}
	return nil, nil
}

func (s *ChatService) GetFileInfo(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}

	info, ok, err := chat.LoadFileInfo(s.db, title)
	if err != nil {
		return nil, storeError(err)
	}
	if !ok {
		return api.FileInfo{}, nil
	}
	return api.FileInfo{FileName: info.FileName, FileID: info.FileID}, nil
}
