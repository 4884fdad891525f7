package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// cameraRequestTimeout bounds the start/stop camera REST calls. These calls
// are best-effort resource hints to the service; they must never hold up
// session teardown.
const cameraRequestTimeout = 5 * time.Second

// CameraControl issues the per-client camera start/stop calls the analysis
// service uses to manage server-side resources, independently of the
// streaming connection. Keyed by the same client id as the stream.
type CameraControl struct {
	// BaseURL is the HTTP root of the analysis service,
	// e.g. "http://host/face-detection".
	BaseURL string

	// ClientID matches the streaming connection's identifier.
	ClientID string

	// HTTPClient overrides the default client. Nil uses a client with
	// cameraRequestTimeout.
	HTTPClient *http.Client
}

// StartCamera tells the service to allocate camera-processing resources for
// this client.
func (cc *CameraControl) StartCamera(ctx context.Context) error {
	return cc.post(ctx, "start-camera")
}

// StopCamera tells the service to release camera-processing resources for
// this client.
func (cc *CameraControl) StopCamera(ctx context.Context) error {
	return cc.post(ctx, "stop-camera")
}

func (cc *CameraControl) post(ctx context.Context, action string) error {
	client := cc.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cameraRequestTimeout}
	}

	url := fmt.Sprintf("%s/%s/%s", cc.BaseURL, action, cc.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("analysis: build %s request: %w", action, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("analysis: %s: %w", action, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis: %s: unexpected status %d", action, resp.StatusCode)
	}
	return nil
}
