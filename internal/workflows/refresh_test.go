package workflows_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/winstonk6/case-study-bike-share/internal/workflows"
)

func newRefreshEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(workflows.RefreshWorkflow)
	env.RegisterActivity(&workflows.RefreshActivities{})
	return env
}

func TestRefreshWorkflow_HappyPath(t *testing.T) {
	env := newRefreshEnv(t)

	env.OnActivity("ResolveStations", mock.Anything).Return(812, nil)
	env.OnActivity("RefreshAggregates", mock.Anything).Return(nil)
	env.OnActivity("ExportArtifacts", mock.Anything).Return("artifacts/20230801T000000Z", nil)
	env.OnActivity("PublishRefreshed", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(workflows.RefreshWorkflow, workflows.RefreshInput{Source: "202307-divvy-tripdata.zip"})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result workflows.RefreshResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, 812, result.Stations)
	require.Equal(t, "artifacts/20230801T000000Z", result.ArtifactDir)
	env.AssertNotCalled(t, "CleanupArtifacts", mock.Anything, mock.Anything)
}

func TestRefreshWorkflow_ResolveFails(t *testing.T) {
	env := newRefreshEnv(t)

	env.OnActivity("ResolveStations", mock.Anything).
		Return(0, errors.New("connection refused"))

	env.ExecuteWorkflow(workflows.RefreshWorkflow, workflows.RefreshInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNotCalled(t, "ExportArtifacts", mock.Anything)
	env.AssertNotCalled(t, "PublishRefreshed", mock.Anything, mock.Anything)
}

func TestRefreshWorkflow_CompensatesOnPublishFailure(t *testing.T) {
	env := newRefreshEnv(t)

	const dir = "artifacts/20230801T000000Z"

	env.OnActivity("ResolveStations", mock.Anything).Return(10, nil)
	env.OnActivity("RefreshAggregates", mock.Anything).Return(nil)
	env.OnActivity("ExportArtifacts", mock.Anything).Return(dir, nil)
	env.OnActivity("PublishRefreshed", mock.Anything, mock.Anything).
		Return(errors.New("nats: connection closed"))

	cleaned := false
	env.OnActivity("CleanupArtifacts", mock.Anything, dir).
		Return(nil).
		Run(func(args mock.Arguments) { cleaned = true })

	env.ExecuteWorkflow(workflows.RefreshWorkflow, workflows.RefreshInput{Source: "manual"})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.True(t, cleaned, "artifacts must be removed when the announcement fails")
}

func TestRefreshWorkflow_AggregateRefreshFails(t *testing.T) {
	env := newRefreshEnv(t)

	env.OnActivity("ResolveStations", mock.Anything).Return(10, nil)
	env.OnActivity("RefreshAggregates", mock.Anything).
		Return(errors.New("deadlock detected"))

	env.ExecuteWorkflow(workflows.RefreshWorkflow, workflows.RefreshInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertNotCalled(t, "ExportArtifacts", mock.Anything)
}
