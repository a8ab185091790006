package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"carelink/internal/config"
	apperrors "carelink/internal/errors"
)

// Client calls the remote recognition service over HTTP. All three
// capabilities share one endpoint with per-capability paths.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewClient creates a recognition client from config.
func NewClient(cfg *config.RecognitionConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

type recognizeRequest struct {
	// Data is base64-encoded image or audio content.
	Data string `json:"data"`
}

func (c *Client) post(ctx context.Context, path string, payload []byte, out interface{}) error {
	body, err := json.Marshal(recognizeRequest{Data: base64.StdEncoding.EncodeToString(payload)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrRecognitionFailed.Code, "recognition request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.New(apperrors.ErrRecognitionFailed.Code,
			fmt.Sprintf("recognition service returned %d: %s", resp.StatusCode, raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrRecognitionFailed.Code, "invalid recognition response")
	}
	return nil
}

// RecognizePrescription implements PrescriptionRecognizer.
func (c *Client) RecognizePrescription(ctx context.Context, image []byte) (*Prescription, error) {
	var out Prescription
	if err := c.post(ctx, "/recognize/prescription", image, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecognizePills implements PillRecognizer.
func (c *Client) RecognizePills(ctx context.Context, image []byte) ([]Pill, error) {
	var out struct {
		Pills []Pill `json:"pills"`
	}
	if err := c.post(ctx, "/recognize/pill", image, &out); err != nil {
		return nil, err
	}
	return out.Pills, nil
}

// Transcribe implements Transcriber.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.post(ctx, "/transcribe", audio, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}
