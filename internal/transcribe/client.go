package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"meetscribe/internal/logger"
)

const (
	// DefaultEndpoint is the OpenAI speech-to-text endpoint.
	DefaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"

	// DefaultModel is the model selector sent with every request.
	DefaultModel = "whisper-1"

	// segmentMIMEType is the fixed MIME type of the uploaded file part.
	segmentMIMEType = "audio/mpeg"

	// errorBodyLimit caps how much of an error response is kept for the
	// failure reason.
	errorBodyLimit = 2048
)

// Transcriber converts one audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filePath string) (string, error)
}

// RequestError describes a failed transcription request. The client never
// retries; callers decide whether a failure is worth another attempt.
type RequestError struct {
	Reason string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription request failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transcription request failed: %s", e.Reason)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Client sends audio segments to a remote speech-to-text endpoint. It is
// stateless apart from its HTTP client and safe to share across
// concurrent pipeline units.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	logger     logger.Logger
}

// NewClient creates a transcription client authenticated with the given
// bearer credential. Empty endpoint or model select the OpenAI defaults.
func NewClient(log logger.Logger, apiKey, endpoint, model string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		logger:   log,
	}
}

// Transcribe streams the file as a multipart upload and returns the text
// field of the JSON response.
func (c *Client) Transcribe(ctx context.Context, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", &RequestError{Reason: "cannot open segment file", Err: err}
	}

	// The multipart body is written through a pipe so the segment file is
	// streamed rather than buffered in memory.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		var werr error
		defer func() {
			file.Close()
			pw.CloseWithError(werr)
		}()

		if werr = writer.WriteField("model", c.model); werr != nil {
			return
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filePath)))
		header.Set("Content-Type", segmentMIMEType)

		var part io.Writer
		if part, werr = writer.CreatePart(header); werr != nil {
			return
		}
		if _, werr = io.Copy(part, file); werr != nil {
			return
		}
		werr = writer.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return "", &RequestError{Reason: "cannot build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debugf("Sending transcription request for %s", filePath)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &RequestError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", &RequestError{
			Reason: fmt.Sprintf("endpoint returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &RequestError{Reason: "cannot decode response", Err: err}
	}
	if parsed.Text == nil {
		return "", &RequestError{Reason: "response has no text field"}
	}

	c.logger.Debugf("Received transcription for %s (%d characters)", filePath, len(*parsed.Text))
	return *parsed.Text, nil
}
