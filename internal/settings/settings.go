// Package settings persists app configuration in the key-value settings
// table: the workflow endpoint and key plus the last-selected chat. Handlers
// receive an explicit *Store instead of reading ambient globals; every
// change is written back immediately.
package settings

import (
	"errors"
	"sync"

	"researchflow-backend/internal/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	KeyAPIURL         = "API_URL"
	KeyAPIKey         = "API_KEY"
	KeySelectedChat   = "SELECTED_CHAT"
	KeyConversationID = "CONVERSATION_ID"
)

// Settings is the snapshot kept in memory between saves.
type Settings struct {
	APIURL         string `json:"api_url"`
	APIKey         string `json:"api_key"`
	SelectedChat   string `json:"selected_chat"`
	ConversationID string `json:"conversation_id"`
}

type Store struct {
	mu       sync.Mutex
	db       *gorm.DB
	settings Settings
}

// Load reads all settings from the database, filling in defaults for keys
// that have never been written.
func Load(db *gorm.DB) (*Store, error) {
	store := &Store{db: db}

	var err error
	if store.settings.APIURL, err = getSetting(db, KeyAPIURL, "http://localhost:8000/v1"); err != nil {
		return nil, err
	}
	if store.settings.APIKey, err = getSetting(db, KeyAPIKey, ""); err != nil {
		return nil, err
	}
	if store.settings.SelectedChat, err = getSetting(db, KeySelectedChat, ""); err != nil {
		return nil, err
	}
	if store.settings.ConversationID, err = getSetting(db, KeyConversationID, ""); err != nil {
		return nil, err
	}

	return store, nil
}

func getSetting(db *gorm.DB, key, fallback string) (string, error) {
	var setting database.Setting
	if err := db.First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fallback, nil
		}
		return "", err
	}
	return setting.Value, nil
}

func setSetting(db *gorm.DB, key, value string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&database.Setting{Key: key, Value: value}).Error
}

// Get returns the current snapshot.
func (s *Store) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Update replaces the snapshot and persists every key.
func (s *Store) Update(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	return s.save()
}

// SetSelectedChat persists just the selected-session pointer. Used on
// session switch, rename and delete so reloads land on the right chat.
func (s *Store) SetSelectedChat(title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.SelectedChat = title
	return setSetting(s.db, KeySelectedChat, title)
}

func (s *Store) save() error {
	pairs := map[string]string{
		KeyAPIURL:         s.settings.APIURL,
		KeyAPIKey:         s.settings.APIKey,
		KeySelectedChat:   s.settings.SelectedChat,
		KeyConversationID: s.settings.ConversationID,
	}
	for key, value := range pairs {
		if err := setSetting(s.db, key, value); err != nil {
			return err
		}
	}
	return nil
}
