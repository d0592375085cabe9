package api

import (
	"io"
	"net/http"

	"researchflow-backend/pkg/api"
)

// Documents come in as multipart uploads; anything beyond this is rejected
// before conversion starts.
const maxUploadBytes = 50 << 20

func (s *ChatService) UploadDocument(r *http.Request) (any, error) {
	title, err := URLParamTitle(r, "title")
	if err != nil {
		return nil, err
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing file in upload: %v", err)
	}
	defer file.Close()

	contents, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error reading uploaded file: %v", err)
	}

	newChat := r.FormValue("new_chat") == "true"

	result, err := s.ingestor.Ingest(r.Context(), header.Filename, contents, title, newChat)
	if err != nil {
		return nil, storeError(err)
	}

	return api.UploadResponse{
		Title:       result.Title,
		Report:      result.Report,
		FileName:    result.FileName,
		FileID:      result.FileID,
		UserInputID: result.UserInputID,
	}, nil
}
