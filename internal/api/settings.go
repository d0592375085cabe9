package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	appsettings "researchflow-backend/internal/settings"
	"researchflow-backend/internal/workflow"
	"researchflow-backend/pkg/api"
)

// SettingsService exposes the persisted app configuration. Updating the
// workflow endpoint or key takes effect immediately on the shared client.
type SettingsService struct {
	db       *gorm.DB
	settings *appsettings.Store
	wf       *workflow.Client
}

func NewSettingsService(db *gorm.DB, settings *appsettings.Store, wf *workflow.Client) *SettingsService {
	return &SettingsService{db: db, settings: settings, wf: wf}
}

func (s *SettingsService) AddRoutes(r chi.Router) {
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetSettings))
		r.Put("/", RestHandler(s.UpdateSettings))
	})
}

func (s *SettingsService) GetSettings(r *http.Request) (any, error) {
	current := s.settings.Get()
	return api.Settings{
		APIURL:         current.APIURL,
		APIKey:         current.APIKey,
		SelectedChat:   current.SelectedChat,
		ConversationID: current.ConversationID,
	}, nil
}

func (s *SettingsService) UpdateSettings(r *http.Request) (any, error) {
	req, err := ParseRequest[api.Settings](r)
	if err != nil {
		return nil, err
	}
	if req.APIURL == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "api_url is required")
	}

	err = s.settings.Update(appsettings.Settings{
		APIURL:         req.APIURL,
		APIKey:         req.APIKey,
		SelectedChat:   req.SelectedChat,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	s.wf.SetCredentials(req.APIURL, req.APIKey)

	return nil, nil
}
