package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"longform-transcriber/internal/chunking"
)

// DefaultAPIBaseURL is the OpenAI-compatible endpoint root.
const DefaultAPIBaseURL = "https://api.openai.com"

// OpenAIBackend uploads chunk payloads to an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
type OpenAIBackend struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	readFile func(name string) ([]byte, error)
}

// NewOpenAIBackend constructs an HTTP backend. Empty baseURL or model fall
// back to OpenAI defaults.
func NewOpenAIBackend(baseURL, apiKey, model, language string) *OpenAIBackend {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = "whisper-1"
	}
	return &OpenAIBackend{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		language: language,
		client:   &http.Client{Timeout: 10 * time.Minute},
		readFile: os.ReadFile,
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads one chunk and returns the recognized text.
func (o *OpenAIBackend) Transcribe(ctx context.Context, chunk chunking.Chunk) (string, error) {
	if strings.TrimSpace(o.apiKey) == "" {
		return "", ErrMissingAPIKey
	}

	payload := chunk.Payload
	if len(payload) == 0 && chunk.Location != "" {
		data, err := o.readFile(chunk.Location)
		if err != nil {
			return "", fmt.Errorf("read staged chunk %d: %w", chunk.Index, err)
		}
		payload = data
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("chunk %d has no audio payload", chunk.Index)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", o.model); err != nil {
		return "", err
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", err
	}
	if lang := normalizeLanguage(o.language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", "chunk"+chunking.NormalizeFormat(chunk.Format))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(payload); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe chunk %d: %w", chunk.Index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcribe chunk %d: openai http %d: %s", chunk.Index, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription for chunk %d: %w", chunk.Index, err)
	}
	return strings.TrimSpace(out.Text), nil
}
