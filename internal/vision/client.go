package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"
)

// Client calls the face detection microservice over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
	Dim     int
}

// NewClient creates a detector client. When skip is set, Detect returns a
// deterministic mock face so the rest of the pipeline can run without the
// vision service (dev mode).
func NewClient(baseURL string, skip bool, dim int) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		Dim:     dim,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // model inference can take time
		},
	}
}

// Warmup asks the service to load model assets and verifies it is reachable.
func (c *Client) Warmup(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/warmup", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("vision service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vision service warmup failed: %s", resp.Status)
	}
	return nil
}

// Detect posts a frame and returns all detected faces with embeddings.
func (c *Client) Detect(ctx context.Context, frame Frame) ([]Face, error) {
	if c.Skip {
		return []Face{mockFace(c.Dim)}, nil
	}
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	body, _ := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(frame.Data),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vision service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Faces []struct {
			Embedding []float32 `json:"embedding"`
			Box       struct {
				X int `json:"x"`
				Y int `json:"y"`
				W int `json:"w"`
				H int `json:"h"`
			} `json:"box"`
			Score float64 `json:"score"`
		} `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	faces := make([]Face, 0, len(out.Faces))
	for _, f := range out.Faces {
		if c.Dim > 0 && len(f.Embedding) != c.Dim {
			return nil, fmt.Errorf("embedding dimension %d, want %d", len(f.Embedding), c.Dim)
		}
		faces = append(faces, Face{
			Embedding: f.Embedding,
			Box:       image.Rect(f.Box.X, f.Box.Y, f.Box.X+f.Box.W, f.Box.Y+f.Box.H),
			Score:     f.Score,
		})
	}
	return faces, nil
}

func mockFace(dim int) Face {
	if dim <= 0 {
		dim = 512
	}
	emb := make(Embedding, dim)
	for i := range emb {
		emb[i] = 1
	}
	return Face{Embedding: emb, Box: image.Rect(80, 60, 240, 260), Score: 0.95}
}
