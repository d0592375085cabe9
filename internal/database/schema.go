package database

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser string = "user"
	RoleAI   string = "ai"
)

// ChatSession is one named conversation. Title doubles as the human-facing
// lookup key, so it must stay unique across all sessions.
type ChatSession struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"uniqueIndex;not null"`
	FileName  string
	FileID    string
	Timestamp time.Time `gorm:"autoCreateTime"`

	UserInputs []UserInput   `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Messages   []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// UserInput is one user-submitted turn. Content holds the serialized request
// envelope (Query, ChatHistory, workflow extension fields).
type UserInput struct {
	ID        uint           `gorm:"primaryKey"`
	SessionID uint           `gorm:"index;not null"`
	Content   datatypes.JSON `gorm:"not null"`
}

// ChatMessage is one generated reply tied to a UserInput. Regenerating a
// response appends a row with the next version rather than overwriting, so
// (UserInputID, Version) identifies one attempt.
type ChatMessage struct {
	ID          uint   `gorm:"primaryKey"`
	SessionID   uint   `gorm:"index;not null"`
	UserInputID uint   `gorm:"index"`
	Role        string `gorm:"size:10;not null"`
	Content     string
	Version     int `gorm:"default:1"`
	EditedCode  string
}

// Setting is one key-value row of persisted app configuration.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}
