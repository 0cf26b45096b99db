package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/models"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List your tasks (usable with --task)",
		Args:  cobra.NoArgs,
		RunE:  runTasks,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func runTasks(cmd *cobra.Command, _ []string) error {
	rt, err := loadUserRuntime(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := rt.newClient()
	if err != nil {
		return err
	}
	tasks, err := client.ListUserTasks(ctx)
	if err != nil {
		return backendError("list tasks", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		if tasks == nil {
			tasks = []models.Task{}
		}
		return writeJSON(out, tasks)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks")
		return nil
	}
	tbl := newTable("ID", "TITLE", "STATUS").alignRight(0)
	for _, task := range tasks {
		tbl.add(strconv.FormatInt(task.ID, 10), fitWidth(task.Title, 60), task.Status)
	}
	return tbl.write(out)
}
