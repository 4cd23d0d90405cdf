package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultFaceModel    = "buffalo_l" // model name for reference only
	faceEndpoint        = "/embed/face"
)

// ErrNoFeatureFound is returned by Encode when the image contains no detectable face.
var ErrNoFeatureFound = errors.New("no face found in image")

// EmbeddingClient computes face embeddings using the embedding server
type EmbeddingClient struct {
	baseURL      string
	model        string
	maxImageSize int
	client       *http.Client
}

// NewEmbeddingClient creates a new embedding client. Images with a side longer
// than maxImageSize are downscaled before upload; 0 disables resizing.
func NewEmbeddingClient(baseURL, model string, maxImageSize int) *EmbeddingClient {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if model == "" {
		model = defaultFaceModel
	}
	return &EmbeddingClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		maxImageSize: maxImageSize,
		client:       &http.Client{Timeout: 2 * time.Minute},
	}
}

// Model returns the model name being used
func (c *EmbeddingClient) Model() string {
	return c.model
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels of the uploaded image
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// detectMIMEType sniffs the image type from magic bytes.
func detectMIMEType(data []byte) string {
	switch {
	case len(data) < 8:
		return "application/octet-stream"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return "application/octet-stream"
}

// postImage uploads imageData as the multipart "file" field and returns the response body.
func (c *EmbeddingClient) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings. Faces are
// returned in face_index order with bounding boxes in the coordinates of the
// original (not downscaled) image.
func (c *EmbeddingClient) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	upload, scale, err := Downscale(imageData, c.maxImageSize)
	if err != nil {
		return nil, err
	}

	body, err := c.postImage(ctx, faceEndpoint, upload)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	sort.SliceStable(faceResp.Faces, func(i, j int) bool {
		return faceResp.Faces[i].FaceIndex < faceResp.Faces[j].FaceIndex
	})
	if scale != 1 {
		for i := range faceResp.Faces {
			for k := range faceResp.Faces[i].BBox {
				faceResp.Faces[i].BBox[k] /= scale
			}
		}
	}
	return &faceResp, nil
}

// Encode returns the embedding of the first detected face in a reference image.
func (c *EmbeddingClient) Encode(ctx context.Context, image []byte) ([]float32, error) {
	resp, err := c.ComputeFaceEmbeddings(ctx, image)
	if err != nil {
		return nil, err
	}
	if len(resp.Faces) == 0 {
		return nil, ErrNoFeatureFound
	}
	if len(resp.Faces[0].Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return resp.Faces[0].Embedding, nil
}

// DetectAndEncode returns every face found in a query image, possibly none.
func (c *EmbeddingClient) DetectAndEncode(ctx context.Context, frame []byte) ([]FaceDetection, error) {
	resp, err := c.ComputeFaceEmbeddings(ctx, frame)
	if err != nil {
		return nil, err
	}
	return resp.Faces, nil
}
