package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/mastra-ai/mastra/workflow"
)

func openStore() (*workflow.SQLiteSnapshotStore, func(), error) {
	dbPath := viper.GetString("db")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("error resolving home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".mastra", "runs.db")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("database not found: %s\nPoint --db (or MASTRA_DB) at a snapshot database", dbPath)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening database: %v", err)
	}
	store, err := workflow.NewSQLiteSnapshotStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

// runStatus condenses a snapshot into a single run-level status.
func runStatus(state *workflow.RunState) string {
	if len(state.SuspendedSteps) > 0 {
		return "suspended"
	}
	failed := false
	for _, stepState := range state.Value {
		switch workflow.StepState(stepState) {
		case workflow.StatePending, workflow.StateExecuting, workflow.StateWaiting:
			return "running"
		case workflow.StateFailed:
			failed = true
		}
	}
	if failed {
		return "failed"
	}
	return "completed"
}

func statusText(status string) string {
	switch status {
	case "completed":
		return successStyle.Sprint("✓ " + status)
	case "failed":
		return errorStyle.Sprint("✗ " + status)
	case "suspended":
		return warningStyle.Sprint("⏸ " + status)
	default:
		return infoStyle.Sprint("• " + status)
	}
}

func listRuns(workflowName string, limit int) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListSnapshots(context.Background(), workflowName)
	if err != nil {
		return fmt.Errorf("error listing runs: %v", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if len(records) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	fmt.Printf("%-40s %-24s %-14s %-20s\n", "RUN ID", "WORKFLOW", "STATUS", "UPDATED")
	fmt.Println(strings.Repeat("-", 100))
	for _, record := range records {
		updated := ""
		if !record.UpdatedAt.IsZero() {
			updated = record.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-40s %-24s %-14s %s\n",
			record.RunID,
			truncate(record.WorkflowName, 24),
			statusText(runStatus(record.State)),
			mutedStyle.Sprint(updated))
	}
	return nil
}

// findRun locates a run by id, optionally narrowed to one workflow. Run ids
// are unique per workflow, so an ambiguous id needs --workflow.
func findRun(ctx context.Context, store *workflow.SQLiteSnapshotStore, runID, workflowName string) (*workflow.SnapshotRecord, error) {
	if workflowName != "" {
		state, err := store.LoadSnapshot(ctx, workflowName, runID)
		if err != nil {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return &workflow.SnapshotRecord{WorkflowName: workflowName, RunID: runID, State: state}, nil
	}
	records, err := store.ListSnapshots(ctx, "")
	if err != nil {
		return nil, err
	}
	var matches []workflow.SnapshotRecord
	for _, record := range records {
		if record.RunID == runID {
			matches = append(matches, record)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("run not found: %s", runID)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("run id %s exists in multiple workflows; use --workflow", runID)
	}
}

func showRun(runID, workflowName string, asJSON bool) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	record, err := findRun(context.Background(), store, runID, workflowName)
	if err != nil {
		return err
	}
	state := record.State

	if asJSON {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	headerStyle.Println("Run Details")
	fmt.Printf("ID:        %s\n", state.RunID)
	fmt.Printf("Workflow:  %s\n", record.WorkflowName)
	fmt.Printf("Status:    %s\n", statusText(runStatus(state)))
	if !record.UpdatedAt.IsZero() {
		fmt.Printf("Updated:   %s\n", record.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}

	if state.Context != nil && len(state.Context.TriggerData) > 0 {
		fmt.Println()
		headerStyle.Println("Trigger Data")
		printMap(state.Context.TriggerData)
	}

	fmt.Println()
	headerStyle.Println("Steps")
	ids := make([]string, 0, len(state.Value))
	for id := range state.Value {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		line := fmt.Sprintf("  %-32s %s", truncate(id, 32), statusText(state.Value[id]))
		if state.Context != nil {
			if result, ok := state.Context.Steps[id]; ok && result.Error != "" {
				line += "  " + errorStyle.Sprint(result.Error)
			}
		}
		fmt.Println(line)
	}

	if len(state.ActivePaths) > 0 {
		fmt.Println()
		headerStyle.Println("Active Paths")
		for _, path := range state.ActivePaths {
			fmt.Printf("  %s (%s)\n", path.StepID, path.Status)
		}
	}
	return nil
}

func printMap(m map[string]any) {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  %s: %v\n", key, m[key])
	}
}

func deleteRun(runID, workflowName string, confirm bool) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	record, err := findRun(ctx, store, runID, workflowName)
	if err != nil {
		return err
	}
	if !confirm {
		fmt.Printf("Delete run %s of workflow %s? [y/N]: ", record.RunID, record.WorkflowName)
		var response string
		fmt.Scanln(&response)
		response = strings.ToLower(response)
		if response != "y" && response != "yes" {
			fmt.Println("Deletion cancelled.")
			return nil
		}
	}
	if err := store.DeleteSnapshot(ctx, record.WorkflowName, record.RunID); err != nil {
		return fmt.Errorf("error deleting run: %v", err)
	}
	fmt.Printf("%s Run %s deleted.\n", successStyle.Sprint("✓"), record.RunID)
	return nil
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect workflow runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		workflowName, _ := cmd.Flags().GetString("workflow")
		limit, _ := cmd.Flags().GetInt("limit")
		return listRuns(workflowName, limit)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workflowName, _ := cmd.Flags().GetString("workflow")
		asJSON, _ := cmd.Flags().GetBool("json")
		return showRun(args[0], workflowName, asJSON)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a persisted run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workflowName, _ := cmd.Flags().GetString("workflow")
		confirm, _ := cmd.Flags().GetBool("yes")
		return deleteRun(args[0], workflowName, confirm)
	},
}

func init() {
	runsListCmd.Flags().String("workflow", "", "Filter by workflow name")
	runsListCmd.Flags().Int("limit", 50, "Maximum number of runs to show")
	runsShowCmd.Flags().String("workflow", "", "Workflow the run belongs to")
	runsShowCmd.Flags().Bool("json", false, "Print the raw snapshot as JSON")
	runsDeleteCmd.Flags().String("workflow", "", "Workflow the run belongs to")
	runsDeleteCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
