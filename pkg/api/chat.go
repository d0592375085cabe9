package api

import "time"

type SessionMetadata struct {
	Title     string    `json:"title"`
	FileName  string    `json:"file_name,omitempty"`
	FileID    string    `json:"file_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type GetSessionsResponse struct {
	Sessions []SessionMetadata `json:"sessions"`
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

type SendMessageRequest struct {
	Query   string `json:"query"`
	NewChat bool   `json:"new_chat"`
}

type SendMessageResponse struct {
	Title       string `json:"title"`
	Answer      string `json:"answer"`
	UserInputID uint   `json:"user_input_id"`
	Version     int    `json:"version"`
}

type RegenerateRequest struct {
	UserInputID uint `json:"user_input_id"`
}

type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TranscriptTurn struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	UserInputID uint   `json:"user_input_id"`
	UserInput   string `json:"user_input,omitempty"`
	Version     int    `json:"version"`
}

type ResponseVersion struct {
	Content string `json:"content"`
	Version int    `json:"version"`
}

type GetResponsesResponse struct {
	Responses []ResponseVersion `json:"responses"`
}

type UpdateResponseRequest struct {
	UserInputID uint   `json:"user_input_id"`
	Version     int    `json:"version"`
	Content     string `json:"content"`
}

type UpdateResponseCodeRequest struct {
	UserInputID uint   `json:"user_input_id"`
	Version     int    `json:"version"`
	EditedCode  string `json:"edited_code"`
}

type FileInfo struct {
	FileName string `json:"file_name"`
	FileID   string `json:"file_id"`
}

type UploadResponse struct {
	Title       string `json:"title"`
	Report      string `json:"report"`
	FileName    string `json:"file_name"`
	FileID      string `json:"file_id"`
	UserInputID uint   `json:"user_input_id"`
}

type Settings struct {
	APIURL         string `json:"api_url"`
	APIKey         string `json:"api_key"`
	SelectedChat   string `json:"selected_chat"`
	ConversationID string `json:"conversation_id"`
}
