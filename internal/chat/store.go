package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"researchflow-backend/internal/database"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound   = errors.New("chat session not found")
	ErrDuplicateSession  = errors.New("chat session with this title already exists")
	ErrUserInputNotFound = errors.New("user input not found")
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

// ListSessions returns all session titles, most recently active first.
func ListSessions(db *gorm.DB) ([]database.ChatSession, error) {
	var sessions []database.ChatSession
	err := db.Order("timestamp DESC").Find(&sessions).Error
	return sessions, err
}

// GetSession looks up a session by title. Absence is reported as
// ErrSessionNotFound, never as a zero-value row.
func GetSession(db *gorm.DB, title string) (database.ChatSession, error) {
	var session database.ChatSession
	if err := db.First(&session, "title = ?", title).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.ChatSession{}, ErrSessionNotFound
		}
		return database.ChatSession{}, err
	}
	return session, nil
}

// CreateSession inserts a new session row. A colliding title leaves the
// existing row and its children untouched.
func CreateSession(db *gorm.DB, title string) (database.ChatSession, error) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	session := database.ChatSession{Title: title, Timestamp: time.Now().UTC()}
	err := db.Transaction(func(txn *gorm.DB) error {
		var count int64
		if err := txn.Model(&database.ChatSession{}).Where("title = ?", title).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSession
		}
		return txn.Create(&session).Error
	})
	if err != nil {
		return database.ChatSession{}, err
	}
	return session, nil
}

// DeleteSession removes a session and everything it owns. Children go first
// so the parent row never points at orphans, and the three deletes commit or
// roll back as one unit.
func DeleteSession(db *gorm.DB, title string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	return db.Transaction(func(txn *gorm.DB) error {
		var session database.ChatSession
		if err := txn.First(&session, "title = ?", title).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if err := txn.Delete(&database.ChatMessage{}, "session_id = ?", session.ID).Error; err != nil {
			return err
		}
		if err := txn.Delete(&database.UserInput{}, "session_id = ?", session.ID).Error; err != nil {
			return err
		}
		return txn.Delete(&database.ChatSession{}, "id = ?", session.ID).Error
	})
}

// RenameSession updates a session title. Unlike the legacy behavior this
// rejects renames onto an existing title, since title is the primary lookup
// key and a collision would merge two sessions' identity.
func RenameSession(db *gorm.DB, oldTitle, newTitle string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	return db.Transaction(func(txn *gorm.DB) error {
		var count int64
		if err := txn.Model(&database.ChatSession{}).Where("title = ?", newTitle).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateSession
		}

		res := txn.Model(&database.ChatSession{}).Where("title = ?", oldTitle).Update("title", newTitle)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// AddUserInput appends a user turn and refreshes the session's last-activity
// timestamp in the same transaction. Returns the new row's id.
func AddUserInput(db *gorm.DB, title string, content []byte) (uint, error) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	var inputID uint
	err := db.Transaction(func(txn *gorm.DB) error {
		var session database.ChatSession
		if err := txn.First(&session, "title = ?", title).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		input := database.UserInput{SessionID: session.ID, Content: datatypes.JSON(content)}
		if err := txn.Create(&input).Error; err != nil {
			return err
		}
		inputID = input.ID

		return txn.Model(&database.ChatSession{}).
			Where("id = ?", session.ID).
			Update("timestamp", time.Now().UTC()).Error
	})
	if err != nil {
		return 0, err
	}
	return inputID, nil
}

// GetUserInputID finds the user input row matching the given serialized
// content within a session.
func GetUserInputID(db *gorm.DB, title string, content []byte) (uint, error) {
	session, err := GetSession(db, title)
	if err != nil {
		return 0, err
	}

	var input database.UserInput
	err = db.First(&input, "session_id = ? AND content = ?", session.ID, string(content)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserInputNotFound
		}
		return 0, err
	}
	return input.ID, nil
}

// GetUserInput fetches one user input row by id.
func GetUserInput(db *gorm.DB, userInputID uint) (database.UserInput, error) {
	var input database.UserInput
	if err := db.First(&input, "id = ?", userInputID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.UserInput{}, ErrUserInputNotFound
		}
		return database.UserInput{}, err
	}
	return input, nil
}

// UpdateUserInput rewrites the stored envelope of a user input (explicit
// edit path).
func UpdateUserInput(db *gorm.DB, userInputID uint, content []byte) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&database.UserInput{}).
		Where("id = ?", userInputID).
		Update("content", datatypes.JSON(content)).Error
}

// AddAIResponse records a generated reply for a user input with an explicit
// version number. Version numbering is the caller's responsibility; use
// NextResponseVersion when regenerating.
func AddAIResponse(db *gorm.DB, title string, userInputID uint, content string, version int) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	session, err := GetSession(db, title)
	if err != nil {
		return err
	}

	message := database.ChatMessage{
		SessionID:   session.ID,
		UserInputID: userInputID,
		Role:        database.RoleAI,
		Content:     content,
		Version:     version,
		EditedCode:  "",
	}
	return db.Create(&message).Error
}

// VersionedResponse is one stored reply attempt for a user input.
type VersionedResponse struct {
	Content string `json:"content"`
	Version int    `json:"version"`
}

// GetAIResponses returns every reply attempt for a user input in ascending
// version order.
func GetAIResponses(db *gorm.DB, userInputID uint) ([]VersionedResponse, error) {
	var responses []VersionedResponse
	err := db.Model(&database.ChatMessage{}).
		Select("content", "version").
		Where("user_input_id = ?", userInputID).
		Order("version ASC").
		Scan(&responses).Error
	return responses, err
}

// NextResponseVersion computes the version to assign to a regenerated reply.
// Derived from MAX(version) rather than the row count so it stays correct
// even if version rows are ever deleted.
func NextResponseVersion(db *gorm.DB, userInputID uint) (int, error) {
	maxVersion, err := maxResponseVersion(db, userInputID)
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

func maxResponseVersion(db *gorm.DB, userInputID uint) (int, error) {
	var maxVersion sql.NullInt64
	err := db.Model(&database.ChatMessage{}).
		Select("MAX(version)").
		Where("user_input_id = ?", userInputID).
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	if !maxVersion.Valid {
		return 0, nil
	}
	return int(maxVersion.Int64), nil
}

// UpdateAIResponse rewrites the content of one specific version. Affects
// zero rows when the (userInputID, version) pair does not exist; callers
// that care must verify separately.
func UpdateAIResponse(db *gorm.DB, userInputID uint, version int, content string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&database.ChatMessage{}).
		Where("user_input_id = ? AND version = ?", userInputID, version).
		Update("content", content).Error
}

// UpdateAIResponseCode sets the user-edited-code overlay on one specific
// version. Same zero-rows-on-absence contract as UpdateAIResponse.
func UpdateAIResponseCode(db *gorm.DB, userInputID uint, version int, editedCode string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&database.ChatMessage{}).
		Where("user_input_id = ? AND version = ?", userInputID, version).
		Update("edited_code", editedCode).Error
}

// MessageRow is one row of the canonical transcript read path: one entry per
// (user input, reply version) pair. Response fields are null for user inputs
// that have no replies yet.
type MessageRow struct {
	UserInputID uint           `json:"user_input_id"`
	UserInput   string         `json:"user_input"`
	Role        sql.NullString `json:"role"`
	Content     sql.NullString `json:"content"`
	Version     sql.NullInt64  `json:"version"`
	EditedCode  sql.NullString `json:"edited_code"`
}

// FetchChatMessages joins user inputs with their reply versions for a
// session, ordered by user input id then ascending version.
func FetchChatMessages(db *gorm.DB, title string) ([]MessageRow, error) {
	if _, err := GetSession(db, title); err != nil {
		return nil, err
	}

	var rows []MessageRow
	err := db.Table("user_inputs").
		Select("user_inputs.id AS user_input_id, user_inputs.content AS user_input, chat_messages.role, chat_messages.content, chat_messages.version, chat_messages.edited_code").
		Joins("LEFT JOIN chat_messages ON chat_messages.user_input_id = user_inputs.id").
		Joins("INNER JOIN chat_sessions ON user_inputs.session_id = chat_sessions.id").
		Where("chat_sessions.title = ?", title).
		Order("user_inputs.id, chat_messages.version ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching chat messages for '%s': %w", title, err)
	}
	return rows, nil
}

// sessionMaxVersions maps user input id to the highest stored reply version
// within one session.
func sessionMaxVersions(db *gorm.DB, title string) (map[uint]int, error) {
	var rows []struct {
		UserInputID uint
		MaxVersion  int
	}
	err := db.Table("chat_messages").
		Select("chat_messages.user_input_id, MAX(chat_messages.version) AS max_version").
		Joins("INNER JOIN chat_sessions ON chat_messages.session_id = chat_sessions.id").
		Where("chat_sessions.title = ?", title).
		Group("chat_messages.user_input_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	maxVersions := make(map[uint]int, len(rows))
	for _, row := range rows {
		maxVersions[row.UserInputID] = row.MaxVersion
	}
	return maxVersions, nil
}

// LoadChatHistory flattens a session into {role, content} turns: one user
// turn per distinct user input (its Query field), followed by the reply
// whose version is the highest stored for that input. Earlier regenerate
// attempts stay in storage but are hidden here, so each request to the
// workflow service carries at most one AI turn per user input.
func LoadChatHistory(db *gorm.DB, title string) ([]Turn, error) {
	rows, err := FetchChatMessages(db, title)
	if err != nil {
		return nil, err
	}

	maxVersions, err := sessionMaxVersions(db, title)
	if err != nil {
		return nil, err
	}

	var turns []Turn
	var lastInputID uint
	for _, row := range rows {
		if row.UserInputID != lastInputID {
			payload, err := ParsePayload([]byte(row.UserInput))
			if err != nil {
				return nil, err
			}
			turns = append(turns, Turn{Role: database.RoleUser, Content: payload.Query})
			lastInputID = row.UserInputID
		}

		if row.Role.String == database.RoleAI && row.Version.Valid && int(row.Version.Int64) == maxVersions[row.UserInputID] {
			turns = append(turns, Turn{Role: database.RoleAI, Content: row.Content.String})
		}
	}
	return turns, nil
}

// ViewTurn is one entry of the transcript view surfaced to clients. It
// carries the metadata the UI needs for version switching and regeneration
// on top of the plain turn.
type ViewTurn struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	UserInputID uint   `json:"user_input_id"`
	UserInput   string `json:"user_input,omitempty"`
	Version     int    `json:"version"`
}

// LoadSessionView is the LoadChatHistory flattening plus per-turn metadata
// and the edited-code overlay rendered into the reply content.
func LoadSessionView(db *gorm.DB, title string) ([]ViewTurn, error) {
	rows, err := FetchChatMessages(db, title)
	if err != nil {
		return nil, err
	}

	maxVersions, err := sessionMaxVersions(db, title)
	if err != nil {
		return nil, err
	}

	var turns []ViewTurn
	var lastInputID uint
	for _, row := range rows {
		if row.UserInputID != lastInputID {
			payload, err := ParsePayload([]byte(row.UserInput))
			if err != nil {
				return nil, err
			}
			turns = append(turns, ViewTurn{
				Role:        database.RoleUser,
				Content:     payload.Query,
				Version:     1,
				UserInputID: row.UserInputID,
			})
			lastInputID = row.UserInputID
		}

		if row.Role.String == database.RoleAI && row.Version.Valid && int(row.Version.Int64) == maxVersions[row.UserInputID] {
			content := row.Content.String
			if row.EditedCode.String != "" {
				content = fmt.Sprintf("%s\n\n**Edited Code:**\n%s", content, row.EditedCode.String)
			}
			turns = append(turns, ViewTurn{
				Role:        database.RoleAI,
				Content:     content,
				UserInputID: row.UserInputID,
				UserInput:   row.UserInput,
				Version:     int(row.Version.Int64),
			})
		}
	}
	return turns, nil
}

// FileInfo is the optional document attachment recorded on a session.
type FileInfo struct {
	FileName string `json:"file_name"`
	FileID   string `json:"file_id"`
}

// SaveFileInfo attaches a converted document's name and remote handle to a
// session.
func SaveFileInfo(db *gorm.DB, title, fileName, fileID string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()
	return db.Model(&database.ChatSession{}).
		Where("title = ?", title).
		Updates(map[string]any{"file_name": fileName, "file_id": fileID}).Error
}

// LoadFileInfo reads a session's attachment. A missing session yields
// ok=false rather than an error; absence is a valid outcome here.
func LoadFileInfo(db *gorm.DB, title string) (FileInfo, bool, error) {
	var session database.ChatSession
	if err := db.First(&session, "title = ?", title).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return FileInfo{}, false, nil
		}
		return FileInfo{}, false, err
	}
	return FileInfo{FileName: session.FileName, FileID: session.FileID}, true, nil
}
