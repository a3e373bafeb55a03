package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastra-ai/mastra/workflow"
)

const orderConfig = `
Name: order-processing
Workflows:
  - Name: fulfillment
    TriggerSchema:
      Type: object
      Required: [orderId]
      Properties:
        orderId:
          Type: string
    Steps:
      - ID: reserve
        Handler: reserve-stock
        Payload:
          warehouse: eu-1
      - ID: charge
        Handler: charge-card
        Retry:
          Attempts: 2
          Delay: 1ms
        Variables:
          amount: reserve.total
      - ID: ship
        Handler: ship-order
        When:
          Ref: charge.status
          Query:
            $eq: paid
`

func testHandlers(t *testing.T) map[string]workflow.StepHandler {
	t.Helper()
	return map[string]workflow.StepHandler{
		"reserve-stock": func(ctx context.Context, sctx *workflow.StepContext) (map[string]any, error) {
			require.Equal(t, "eu-1", sctx.InputData["warehouse"])
			return map[string]any{"total": 42.5}, nil
		},
		"charge-card": func(ctx context.Context, sctx *workflow.StepContext) (map[string]any, error) {
			require.Equal(t, 42.5, sctx.InputData["amount"])
			return map[string]any{"status": "paid"}, nil
		},
		"ship-order": func(ctx context.Context, sctx *workflow.StepContext) (map[string]any, error) {
			return map[string]any{"tracking": "abc123"}, nil
		},
	}
}

func TestBuildAndRunFromYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(orderConfig))
	require.NoError(t, err)
	require.Equal(t, "order-processing", cfg.Name)

	workflows, err := cfg.Build(BuildOptions{Handlers: testHandlers(t)})
	require.NoError(t, err)
	require.Len(t, workflows, 1)

	wf := workflows[0]
	require.Equal(t, "fulfillment", wf.Name())

	run, err := wf.CreateRun(workflow.CreateRunOptions{})
	require.NoError(t, err)

	// Trigger schema from the config is enforced.
	_, err = run.Start(context.Background(), workflow.StartOptions{TriggerData: map[string]any{}})
	require.Error(t, err)

	run, err = wf.CreateRun(workflow.CreateRunOptions{})
	require.NoError(t, err)
	result, err := run.Start(context.Background(), workflow.StartOptions{
		TriggerData: map[string]any{"orderId": "ord-1"},
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StepStatusSuccess, result.Results["reserve"].Status)
	require.Equal(t, workflow.StepStatusSuccess, result.Results["charge"].Status)
	require.Equal(t, "abc123", result.Results["ship"].Output["tracking"])
}

func TestBuildUnknownHandler(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
Workflows:
  - Name: broken
    Steps:
      - ID: only
        Handler: does-not-exist
`))
	require.NoError(t, err)
	_, err = cfg.Build(BuildOptions{Handlers: map[string]workflow.StepHandler{}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does-not-exist")
}

func TestBuildJoinAndEvents(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
Workflows:
  - Name: release
    Events:
      signoff:
        Schema:
          Type: object
          Required: [by]
          Properties:
            by:
              Type: string
    Steps:
      - ID: build
      - ID: test
        Root: true
      - ID: package
        After: [build, test]
      - AfterEvent: signoff
      - ID: publish
`))
	require.NoError(t, err)

	workflows, err := cfg.Build(BuildOptions{})
	require.NoError(t, err)
	wf := workflows[0]

	// build and test are roots; package joins on both.
	require.Len(t, wf.Graph().Initial, 2)
	sub, ok := wf.Subscribers()[workflow.CompoundKey("build", "test")]
	require.True(t, ok)
	require.Equal(t, "package", sub.Initial[0].Step.ID())

	ctx := context.Background()
	run, err := wf.CreateRun(workflow.CreateRunOptions{})
	require.NoError(t, err)
	result, err := run.Start(ctx, workflow.StartOptions{})
	require.NoError(t, err)
	eventStep := workflow.EventStepID("signoff")
	require.Equal(t, workflow.StepStatusSuspended, result.Results[eventStep].Status)

	result, err = run.ResumeWithEvent(ctx, "signoff", map[string]any{"by": "release-bot"})
	require.NoError(t, err)
	require.Equal(t, workflow.StepStatusSuccess, result.Results["publish"].Status)
}

func TestBuildLoop(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
Workflows:
  - Name: polling
    Steps:
      - ID: seed
      - ID: poll
        Handler: poll
        Loop:
          Type: until
          Condition:
            Ref: poll.done
            Query:
              $eq: true
`))
	require.NoError(t, err)

	attempts := 0
	handlers := map[string]workflow.StepHandler{
		"poll": func(ctx context.Context, sctx *workflow.StepContext) (map[string]any, error) {
			attempts++
			return map[string]any{"done": attempts >= 3}, nil
		},
	}
	workflows, err := cfg.Build(BuildOptions{Handlers: handlers})
	require.NoError(t, err)

	run, err := workflows[0].CreateRun(workflow.CreateRunOptions{})
	require.NoError(t, err)
	result, err := run.Start(context.Background(), workflow.StartOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, true, result.Results["poll"].Output["done"])
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no workflows", `Name: empty`},
		{"unnamed workflow", `{Workflows: [{Steps: [{ID: a}]}]}`},
		{"no steps", `{Workflows: [{Name: w}]}`},
		{"duplicate step", `{Workflows: [{Name: w, Steps: [{ID: a}, {ID: a}]}]}`},
		{"join on later step", `{Workflows: [{Name: w, Steps: [{ID: a, After: [b]}, {ID: b}]}]}`},
		{"undeclared event", `{Workflows: [{Name: w, Steps: [{AfterEvent: ghost}]}]}`},
		{"bad loop type", `{Workflows: [{Name: w, Steps: [{ID: a, Loop: {Type: forever, Condition: {Ref: a}}}]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tc.doc))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(orderConfig), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Workflows, 1)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(dir, "workflows.toml")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0644))
	_, err = Load(bad)
	require.Error(t, err)
}
