package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// The workflow service can take minutes on deep research queries, so the
// client timeout is deliberately long. There is no retry policy: a timeout
// or transport error is terminal for the current user action.
const requestTimeout = 180 * time.Second

// FallbackAnswer is surfaced when the service returns a well-formed response
// with empty outputs.
const FallbackAnswer = "The assistant did not return any response. Try rephrasing your query, regenerate the response, or delete the chat and start a new one."

type Client struct {
	client *resty.Client
	user   string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetTimeout(requestTimeout),
		// The remote service tracks usage per end user; one id per process
		// keeps this backend's calls attributable without a login system.
		user: "researchflow-" + uuid.NewString(),
	}
}

// SetCredentials updates the remote endpoint and key, used when settings
// change at runtime.
func (c *Client) SetCredentials(baseURL, apiKey string) {
	c.client.SetBaseURL(baseURL)
	c.client.SetAuthToken(apiKey)
}

type runRequest struct {
	Inputs       any    `json:"inputs"`
	ResponseMode string `json:"response_mode"`
	User         string `json:"user"`
}

type runResponse struct {
	Data struct {
		Outputs struct {
			Response     string `json:"response"`
			NewChatTitle string `json:"new_chat_title"`
			Graph        string `json:"graph"`
		} `json:"outputs"`
	} `json:"data"`
}

// Outputs is the parsed result of one blocking workflow run.
type Outputs struct {
	Answer       string
	NewChatTitle string
}

// Run executes the workflow with the given input envelope in blocking mode.
// When the response carries a graph it is appended to the answer as a
// rendered visualization block.
func (c *Client) Run(ctx context.Context, inputs any) (Outputs, error) {
	body := runRequest{
		Inputs:       inputs,
		ResponseMode: "blocking",
		User:         c.user,
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/workflows/run")
	if err != nil {
		slog.Error("error calling workflow service", "error", err)
		return Outputs{}, fmt.Errorf("error calling workflow service: %w", err)
	}

	if !res.IsSuccess() {
		slog.Error("workflow service returned error", "status_code", res.StatusCode(), "body", res.String())
		return Outputs{}, fmt.Errorf("workflow service returned status %d", res.StatusCode())
	}

	var parsed runResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		slog.Error("error parsing workflow response", "error", err)
		return Outputs{}, fmt.Errorf("error parsing workflow response: %w", err)
	}

	outputs := parsed.Data.Outputs
	if outputs.Response == "" && outputs.NewChatTitle == "" && outputs.Graph == "" {
		return Outputs{Answer: FallbackAnswer}, nil
	}

	answer := outputs.Response
	if outputs.Graph != "" {
		answer = fmt.Sprintf("%s\n\n### Visualization of Database\n%s", answer, outputs.Graph)
	}

	return Outputs{Answer: answer, NewChatTitle: outputs.NewChatTitle}, nil
}

// FileInfo is the remote handle returned for an uploaded document.
type FileInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UploadFile sends converted markdown to the workflow service and returns
// the file handle to reference in later queries.
func (c *Client) UploadFile(ctx context.Context, fileName string, contents []byte) (FileInfo, error) {
	res, err := c.client.R().
		SetContext(ctx).
		SetFileReader("file", fileName, bytes.NewReader(contents)).
		SetFormData(map[string]string{
			"user": c.user,
			"type": "MD",
		}).
		Post("/files/upload")
	if err != nil {
		return FileInfo{}, fmt.Errorf("error uploading file to workflow service: %w", err)
	}

	if !res.IsSuccess() {
		return FileInfo{}, fmt.Errorf("file upload failed with status %d: %s", res.StatusCode(), res.String())
	}

	var info FileInfo
	if err := json.Unmarshal(res.Body(), &info); err != nil {
		return FileInfo{}, fmt.Errorf("error parsing file upload response: %w", err)
	}
	return info, nil
}
