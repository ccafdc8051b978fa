package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FaceQuality contains face quality metrics.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	IsFrontal bool    `json:"is_frontal"`
}

// VerifyResult is a 1:1 comparison against an enrolled student.
type VerifyResult struct {
	UserID     string       `json:"user_id"`
	Verified   bool         `json:"verified"`
	Similarity float64      `json:"similarity"`
	Threshold  float64      `json:"threshold"`
	Quality    *FaceQuality `json:"quality"`
}

// EnrollResult is the face service's answer to an enrollment.
type EnrollResult struct {
	UserID  string       `json:"user_id"`
	Success bool         `json:"success"`
	Quality *FaceQuality `json:"quality"`
	Message string       `json:"message"`
}

// Client calls the face recognition microservice. With Skip set every
// call succeeds with canned results and no request is made.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("face service error %s: %s", resp.Status, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Verify compares imageURL with the face enrolled for studentID.
func (c *Client) Verify(ctx context.Context, studentID, imageURL string) (*VerifyResult, error) {
	if c.Skip {
		return &VerifyResult{
			UserID:     studentID,
			Verified:   true,
			Similarity: 0.92,
			Threshold:  0.45,
			Quality:    &FaceQuality{Score: 0.85, IsFrontal: true},
		}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}
	var out VerifyResult
	if err := c.post(ctx, "/verify", map[string]string{"user_id": studentID, "image_url": imageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enroll registers a student's reference photo.
func (c *Client) Enroll(ctx context.Context, studentID, imageURL, name string) (*EnrollResult, error) {
	if c.Skip {
		return &EnrollResult{
			UserID:  studentID,
			Success: true,
			Quality: &FaceQuality{Score: 0.85, IsFrontal: true},
			Message: "Face enrolled (mock)",
		}, nil
	}
	payload := map[string]string{"user_id": studentID, "image_url": imageURL}
	if name != "" {
		payload["name"] = name
	}
	var out EnrollResult
	if err := c.post(ctx, "/enroll", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
