// ABOUTME: MCP resource implementations for the workout feed.
// ABOUTME: Provides workouts://feed, workouts://local, and workouts://summary resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerResources() {
	// workouts://feed - merged feed for the configured identity
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "workouts://feed",
		Name:        "Merged Workout Feed",
		Description: "Workouts from this device and the relay network, deduplicated",
		MIMEType:    "application/json",
	}, s.handleFeedResource)

	// workouts://local - last 10 workouts recorded on this device
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "workouts://local",
		Name:        "Recent Local Workouts",
		Description: "Last 10 workouts recorded on this device",
		MIMEType:    "application/json",
	}, s.handleLocalResource)

	// workouts://summary - per-activity totals over the merged feed
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "workouts://summary",
		Name:        "Workout Summary",
		Description: "Per-activity counts, duration and distance over the merged feed",
		MIMEType:    "application/json",
	}, s.handleSummaryResource)
}

// Resource handlers

func (s *Server) handleFeedResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	res := s.feed.Get(ctx, s.identity)
	return jsonResource("workouts://feed", res)
}

func (s *Server) handleLocalResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	workouts, err := s.repo.ListWorkouts(nil, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}

	return jsonResource("workouts://local", map[string]interface{}{
		"workouts": workouts,
		"count":    len(workouts),
	})
}

type activitySummary struct {
	Count           int     `json:"count"`
	DurationSeconds int     `json:"duration_seconds"`
	DistanceMeters  float64 `json:"distance_meters"`
}

func (s *Server) handleSummaryResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	res := s.feed.Get(ctx, s.identity)

	byActivity := make(map[string]*activitySummary)
	for _, r := range res.Records {
		sum, ok := byActivity[r.ActivityType]
		if !ok {
			sum = &activitySummary{}
			byActivity[r.ActivityType] = sum
		}
		sum.Count++
		sum.DurationSeconds += r.DurationSeconds
		if r.DistanceMeters != nil {
			sum.DistanceMeters += *r.DistanceMeters
		}
	}

	var latest *models.WorkoutRecord
	if len(res.Records) > 0 {
		latest = &res.Records[0]
	}

	return jsonResource("workouts://summary", map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"activities":   byActivity,
		"latest":       latest,
		"totals": map[string]int{
			"records":    len(res.Records),
			"network":    res.NetworkCount,
			"local":      res.LocalCount,
			"duplicates": res.DuplicateCount,
		},
		"stale":   res.Stale,
		"partial": res.Partial,
	})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
