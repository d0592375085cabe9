// Package ingest implements the document upload flow: convert to markdown,
// hand the text to the workflow service for a file handle, generate the
// paper report, and record everything against the owning chat session.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"researchflow-backend/internal/chat"
	"researchflow-backend/internal/document_parsing"
	"researchflow-backend/internal/settings"
	"researchflow-backend/internal/storage"
	"researchflow-backend/internal/workflow"

	"gorm.io/gorm"
)

type Ingestor struct {
	db       *gorm.DB
	wf       *workflow.Client
	store    *storage.MarkdownStore
	settings *settings.Store
}

func NewIngestor(db *gorm.DB, wf *workflow.Client, store *storage.MarkdownStore, settings *settings.Store) *Ingestor {
	return &Ingestor{db: db, wf: wf, store: store, settings: settings}
}

// Result reports what one document ingestion produced.
type Result struct {
	Title       string `json:"title"`
	Report      string `json:"report"`
	FileName    string `json:"file_name"`
	FileID      string `json:"file_id"`
	UserInputID uint   `json:"user_input_id"`
}

// Ingest runs the full upload flow for one document. For a new chat the
// report response also names the session; for an existing chat an improved
// title moves the session and the selected-chat pointer together. Converted
// markdown is kept on disk only until the remote service holds a copy.
func (ing *Ingestor) Ingest(ctx context.Context, fileName string, contents []byte, title string, newChat bool) (Result, error) {
	markdown, err := convert(fileName, contents)
	if err != nil {
		return Result{}, fmt.Errorf("error converting document %q: %w", fileName, err)
	}

	mdName := document_parsing.MarkdownFileName(fileName)
	if _, err := ing.store.Save(mdName, markdown); err != nil {
		return Result{}, err
	}

	fileInfo, err := ing.wf.UploadFile(ctx, mdName, []byte(markdown))
	if err != nil {
		return Result{}, err
	}

	payload := chat.Payload{
		Query:       "Generate Paper Report",
		ChatHistory: "[]",
		Extra: map[string]any{
			"ResearchPaper": map[string]any{
				"transfer_method": "local_file",
				"upload_file_id":  fileInfo.ID,
				"type":            "document",
			},
			// Key spelling matches the workflow input schema.
			"Knownledge_Base_Name": mdName,
			"new_chat":             "False",
		},
	}

	outputs, err := ing.wf.Run(ctx, payload)
	if err != nil {
		return Result{}, fmt.Errorf("error generating paper report: %w", err)
	}

	if newChat {
		if outputs.NewChatTitle == "" {
			return Result{}, fmt.Errorf("workflow service did not return a title for the new chat")
		}
		if _, err := chat.CreateSession(ing.db, outputs.NewChatTitle); err != nil {
			return Result{}, err
		}
		if err := ing.settings.SetSelectedChat(outputs.NewChatTitle); err != nil {
			return Result{}, err
		}
		title = outputs.NewChatTitle
	} else if outputs.NewChatTitle != "" && outputs.NewChatTitle != title {
		if err := chat.RenameSession(ing.db, title, outputs.NewChatTitle); err == nil {
			title = outputs.NewChatTitle
			if err := ing.settings.SetSelectedChat(title); err != nil {
				return Result{}, err
			}
		} else {
			slog.Warn("could not adopt generated title for session", "session", title, "generated", outputs.NewChatTitle, "error", err)
		}
	}

	if err := chat.SaveFileInfo(ing.db, title, mdName, fileInfo.ID); err != nil {
		return Result{}, err
	}

	payload.Query = fmt.Sprintf("Generate a report for : '%s'", title)
	content, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("error serializing report request: %w", err)
	}

	inputID, err := chat.AddUserInput(ing.db, title, content)
	if err != nil {
		return Result{}, err
	}
	if err := chat.AddAIResponse(ing.db, title, inputID, outputs.Answer, 1); err != nil {
		return Result{}, err
	}

	if err := ing.store.Clear(); err != nil {
		slog.Warn("could not clean up converted markdown", "error", err)
	}

	return Result{
		Title:       title,
		Report:      outputs.Answer,
		FileName:    mdName,
		FileID:      fileInfo.ID,
		UserInputID: inputID,
	}, nil
}

func convert(fileName string, contents []byte) (string, error) {
	switch {
	case strings.HasSuffix(strings.ToLower(fileName), ".pdf"):
		return document_parsing.PDFToMD(contents)
	case strings.HasSuffix(strings.ToLower(fileName), ".md"):
		return string(contents), nil
	default:
		return "", fmt.Errorf("unsupported file type for %q, only pdf and md are accepted", fileName)
	}
}
