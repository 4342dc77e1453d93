package api

import (
	"context"
	"fmt"

	"github.com/rickgao/issue-dashboard/internal/model"
)

// GetMetrics fetches the current dashboard snapshot.
func (c *Client) GetMetrics(ctx context.Context) (*model.MetricsSnapshot, error) {
	var m model.MetricsSnapshot
	if err := c.get(ctx, "/metrics", &m); err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return &m, nil
}
