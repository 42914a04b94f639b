// ABOUTME: MCP tool implementations for the workout feed.
// ABOUTME: Provides merged-feed reads, cache control, and CRUD for local workouts.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerTools() {
	// get_workouts
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_workouts",
		Description: "Get the merged workout feed (this device plus relays) for an identity, served from cache when possible",
	}, s.handleGetWorkouts)

	// refresh_workouts
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "refresh_workouts",
		Description: "Bypass the cache and rediscover workouts from relays",
	}, s.handleRefreshWorkouts)

	// get_older_workouts
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_older_workouts",
		Description: "Get the page of workouts older than a cursor returned by a previous call",
	}, s.handleGetOlderWorkouts)

	// invalidate_cache
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "invalidate_cache",
		Description: "Drop the cached feed for an identity",
	}, s.handleInvalidateCache)

	// add_local_workout
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "add_local_workout",
		Description: "Record a workout on this device",
	}, s.handleAddLocalWorkout)

	// list_local_workouts
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_local_workouts",
		Description: "List workouts recorded on this device, optionally filtered by activity",
	}, s.handleListLocalWorkouts)

	// get_local_workout
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_local_workout",
		Description: "Get a workout recorded on this device by ID or ID prefix",
	}, s.handleGetLocalWorkout)

	// delete_local_workout
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_local_workout",
		Description: "Delete a workout recorded on this device",
	}, s.handleDeleteLocalWorkout)
}

// Tool input/output types

type feedInput struct {
	Identity string `json:"identity,omitempty" jsonschema:"Public identity as 64-char hex or npub; defaults to the configured identity"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Max records to return (default all)"`
}

type refreshInput struct {
	Identity string `json:"identity,omitempty" jsonschema:"Public identity as 64-char hex or npub; defaults to the configured identity"`
}

type olderInput struct {
	Identity string `json:"identity,omitempty" jsonschema:"Public identity as 64-char hex or npub; defaults to the configured identity"`
	Until    int64  `json:"until" jsonschema:"Cursor in unix seconds (next_cursor from a previous result)"`
}

type addLocalWorkoutInput struct {
	ActivityType    string  `json:"activity_type" jsonschema:"Type of workout (run, cycle, walk, hike, yoga, strength, gym, etc.)"`
	Title           string  `json:"title,omitempty" jsonschema:"Short title"`
	StartTime       string  `json:"start_time,omitempty" jsonschema:"Start timestamp (ISO 8601), defaults to now"`
	DurationMinutes float64 `json:"duration_minutes,omitempty" jsonschema:"Duration in minutes"`
	DistanceKm      float64 `json:"distance_km,omitempty" jsonschema:"Distance in kilometers"`
	Calories        float64 `json:"calories,omitempty" jsonschema:"Energy burned in kcal"`
	HeartRateAvg    float64 `json:"heart_rate_avg,omitempty" jsonschema:"Average heart rate in bpm"`
	Notes           string  `json:"notes,omitempty" jsonschema:"Workout notes"`
}

type listLocalInput struct {
	ActivityType string `json:"activity_type,omitempty" jsonschema:"Filter by activity type"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Max results (default 20)"`
}

type idInput struct {
	ID string `json:"id" jsonschema:"Workout ID or prefix"`
}

type simpleOutput struct {
	Message string `json:"message"`
}

type workoutOutput struct {
	ID           string `json:"id"`
	ActivityType string `json:"activity_type"`
	Message      string `json:"message"`
}

// Tool handlers

func (s *Server) handleGetWorkouts(ctx context.Context, req *mcp.CallToolRequest, input feedInput) (*mcp.CallToolResult, any, error) {
	res := s.feed.Get(ctx, s.identityOr(input.Identity))
	return nil, res.Limit(input.Limit), nil
}

func (s *Server) handleRefreshWorkouts(ctx context.Context, req *mcp.CallToolRequest, input refreshInput) (*mcp.CallToolResult, any, error) {
	return nil, s.feed.ForceRefresh(ctx, s.identityOr(input.Identity)), nil
}

func (s *Server) handleGetOlderWorkouts(ctx context.Context, req *mcp.CallToolRequest, input olderInput) (*mcp.CallToolResult, any, error) {
	if input.Until <= 0 {
		return nil, nil, errors.New("until must be a positive unix timestamp")
	}
	return nil, s.feed.OlderPage(ctx, s.identityOr(input.Identity), time.Unix(input.Until, 0)), nil
}

func (s *Server) handleInvalidateCache(ctx context.Context, req *mcp.CallToolRequest, input refreshInput) (*mcp.CallToolResult, simpleOutput, error) {
	identity := s.identityOr(input.Identity)
	if err := s.feed.Invalidate(identity); err != nil {
		return nil, simpleOutput{}, fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil, simpleOutput{
		Message: fmt.Sprintf("Invalidated cached feed for %s", identity),
	}, nil
}

func (s *Server) handleAddLocalWorkout(ctx context.Context, req *mcp.CallToolRequest, input addLocalWorkoutInput) (*mcp.CallToolResult, workoutOutput, error) {
	if input.ActivityType == "" {
		return nil, workoutOutput{}, errors.New("activity_type is required")
	}

	w := models.NewLocalWorkout(input.ActivityType)
	if input.StartTime != "" {
		t, err := time.Parse(time.RFC3339, input.StartTime)
		if err != nil {
			t, err = time.ParseInLocation("2006-01-02 15:04", input.StartTime, time.Local)
		}
		if err != nil {
			return nil, workoutOutput{}, fmt.Errorf("invalid start_time: %s", input.StartTime)
		}
		w.WithStartTime(t)
	}
	if input.DurationMinutes > 0 {
		w.WithDuration(time.Duration(input.DurationMinutes * float64(time.Minute)))
	}
	if input.DistanceKm > 0 {
		w.WithDistance(input.DistanceKm * 1000)
	}
	if input.Calories > 0 {
		w.WithCalories(input.Calories)
	}
	if input.HeartRateAvg > 0 {
		w.WithHeartRate(input.HeartRateAvg)
	}
	if input.Notes != "" {
		w.WithNotes(input.Notes)
	}
	w.Title = input.Title

	if err := s.repo.CreateWorkout(w); err != nil {
		return nil, workoutOutput{}, fmt.Errorf("failed to create workout: %w", err)
	}

	return nil, workoutOutput{
		ID:           w.ID[:8],
		ActivityType: w.ActivityType,
		Message:      fmt.Sprintf("Added %s workout (ID: %s)", w.ActivityType, w.ID[:8]),
	}, nil
}

func (s *Server) handleListLocalWorkouts(ctx context.Context, req *mcp.CallToolRequest, input listLocalInput) (*mcp.CallToolResult, any, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}

	var activityType *string
	if input.ActivityType != "" {
		activityType = &input.ActivityType
	}

	workouts, err := s.repo.ListWorkouts(activityType, input.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list workouts: %w", err)
	}

	if len(workouts) == 0 {
		return nil, map[string]interface{}{"message": "No workouts found."}, nil
	}

	return nil, workouts, nil
}

func (s *Server) handleGetLocalWorkout(ctx context.Context, req *mcp.CallToolRequest, input idInput) (*mcp.CallToolResult, any, error) {
	w, err := s.repo.GetWorkout(input.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("workout not found: %s", input.ID)
	}

	return nil, w, nil
}

func (s *Server) handleDeleteLocalWorkout(ctx context.Context, req *mcp.CallToolRequest, input idInput) (*mcp.CallToolResult, simpleOutput, error) {
	if err := s.repo.DeleteWorkout(input.ID); err != nil {
		return nil, simpleOutput{}, fmt.Errorf("failed to delete workout: %w", err)
	}

	return nil, simpleOutput{
		Message: fmt.Sprintf("Deleted workout: %s", input.ID),
	}, nil
}
