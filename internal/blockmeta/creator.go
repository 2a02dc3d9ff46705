package blockmeta

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/driftfs/driftfs/internal/utils"
)

const replicaRequestTimeout = 10 * time.Second

// HTTPReplicaCreator asks a target node to pull a block copy from a source
// node over the nodes' HTTP transfer endpoint
type HTTPReplicaCreator struct {
	client *http.Client
}

// NewHTTPReplicaCreator creates a creator with a default timeout client
func NewHTTPReplicaCreator(client *http.Client) *HTTPReplicaCreator {
	if client == nil {
		client = &http.Client{Timeout: replicaRequestTimeout}
	}
	return &HTTPReplicaCreator{client: client}
}

// CreateReplica issues the replica-creation command to the target node
func (c *HTTPReplicaCreator) CreateReplica(ctx context.Context, blockID, source, target string) error {
	endpoint := fmt.Sprintf("http://%s/blocks/%s/replicas?source=%s",
		target, url.PathEscape(blockID), url.QueryEscape(source))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Request-ID", utils.GenerateRequestID())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send replica request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
