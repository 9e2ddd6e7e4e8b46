package segmentation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/lwald/semgrade/internal/config"
	"github.com/lwald/semgrade/internal/model"
)

// Client talks to the external ML service that splits submission texts into
// segments and clusters them. The service is an opaque producer; this side
// only validates what comes back.
type Client interface {
	Cluster(ctx context.Context, req *ClusterRequest) (*model.ClusterBatch, error)
}

type ClusterRequest struct {
	ExerciseID  string           `json:"exercise_id"`
	Submissions []SubmissionText `json:"submissions"`
}

type SubmissionText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type httpClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewClient(cfg config.SegmentationConfig) (Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("segmentation endpoint is required")
	}
	return &httpClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}, nil
}

func (c *httpClient) Cluster(ctx context.Context, req *ClusterRequest) (*model.ClusterBatch, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	logutil.GetLogger(ctx).Info("requesting clustering",
		zap.String("exercise_id", req.ExerciseID),
		zap.Int("submissions", len(req.Submissions)))
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("segmentation request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("segmentation service returned %d: %s", resp.StatusCode, string(data))
	}
	var batch model.ClusterBatch
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("decode segmentation response: %w", err)
	}
	return &batch, nil
}
