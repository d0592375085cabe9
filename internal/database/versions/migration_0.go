package versions

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Snapshot of the schema as of the first release. Later migrations must not
// reference the live types in the database package, only these copies.

type ChatSession struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"uniqueIndex;not null"`
	FileName  string
	FileID    string
	Timestamp time.Time `gorm:"autoCreateTime"`
}

type UserInput struct {
	ID        uint           `gorm:"primaryKey"`
	SessionID uint           `gorm:"index;not null"`
	Content   datatypes.JSON `gorm:"not null"`
}

type ChatMessage struct {
	ID          uint   `gorm:"primaryKey"`
	SessionID   uint   `gorm:"index;not null"`
	UserInputID uint   `gorm:"index"`
	Role        string `gorm:"size:10;not null"`
	Content     string
	Version     int `gorm:"default:1"`
	EditedCode  string
}

type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func Migration0(db *gorm.DB) error {
	if err := db.AutoMigrate(&ChatSession{}, &UserInput{}, &ChatMessage{}, &Setting{}); err != nil {
		return fmt.Errorf("migration 0 failed: %w", err)
	}
	return nil
}
