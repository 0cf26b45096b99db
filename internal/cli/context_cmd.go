package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or change the default partner and task",
		Long: `The context holds the partner that thread uses without an argument and the
task that conversations, thread and send fall back to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			current, err := rt.contextStore().Load()
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(cmd.OutOrStdout(), current)
			}
			fmt.Fprintln(cmd.OutOrStdout(), current.String())
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	cmd.AddCommand(newContextSetCmd(), newContextClearCmd())
	return cmd
}

func newContextSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the default partner and/or task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("partner") && !flags.Changed("task") {
				return usageError(cmd, "set --partner and/or --task")
			}
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			store := rt.contextStore()
			current, err := store.Load()
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}

			if flags.Changed("partner") {
				id, _ := flags.GetInt64("partner")
				if id < 0 {
					return usageError(cmd, "--partner must not be negative")
				}
				name, _ := flags.GetString("name")
				current.SetPartner(id, name)
			}
			if flags.Changed("task") {
				id, _ := flags.GetInt64("task")
				if id < 0 {
					return usageError(cmd, "--task must not be negative")
				}
				current.SetTask(id)
			}

			if err := store.Save(current); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), current.String())
			return nil
		},
	}
	cmd.Flags().Int64("partner", 0, "partner id (0 clears)")
	cmd.Flags().String("name", "", "partner display name")
	cmd.Flags().Int64("task", 0, "task id (0 clears)")
	return cmd
}

func newContextClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the default partner and task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.contextStore().Clear(); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "context cleared")
			return nil
		},
	}
}
