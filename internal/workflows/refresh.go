package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RefreshInput is the input for the analytics refresh workflow.
type RefreshInput struct {
	Source string // which ingest source triggered the refresh ("" for manual runs)
}

// RefreshResult reports what one refresh produced.
type RefreshResult struct {
	WorkflowID     string
	Stations       int
	ArtifactDir    string
	ElapsedSeconds float64
}

// RefreshWorkflow rebuilds the canonical station catalog, refreshes the
// aggregate views, exports artifacts, and announces the new dataset.
// If the announcement fails, the exported artifacts are removed again
// (saga compensation) so consumers never see an unannounced directory.
func RefreshWorkflow(ctx workflow.Context, input RefreshInput) (*RefreshResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting analytics refresh", "source", input.Source)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)
	started := workflow.Now(ctx)

	// Step 1: Resolve the canonical station catalog from ride observations
	var stations int
	err := workflow.ExecuteActivity(ctx, "ResolveStations").Get(ctx, &stations)
	if err != nil {
		return nil, err
	}

	// Step 2: Rebuild the aggregate views and drop stale cache entries
	err = workflow.ExecuteActivity(ctx, "RefreshAggregates").Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	// Step 3: Export CSV artifacts + manifest
	var artifactDir string
	err = workflow.ExecuteActivity(ctx, "ExportArtifacts").Get(ctx, &artifactDir)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{
		WorkflowID:     workflow.GetInfo(ctx).WorkflowExecution.ID,
		Stations:       stations,
		ArtifactDir:    artifactDir,
		ElapsedSeconds: workflow.Now(ctx).Sub(started).Seconds(),
	}

	// Step 4: Announce the refreshed dataset
	err = workflow.ExecuteActivity(ctx, "PublishRefreshed", *result).Get(ctx, nil)
	if err != nil {
		logger.Warn("announce failed, compensating", "error", err)
		// Compensate: remove the artifact directory
		_ = workflow.ExecuteActivity(ctx, "CleanupArtifacts", artifactDir).Get(ctx, nil)
		return nil, err
	}

	logger.Info("Refresh complete", "stations", stations, "artifacts", artifactDir)
	return result, nil
}
