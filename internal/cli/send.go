package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/models"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <partner-id> <message>",
		Short: "Send a message",
		Long: `Send a message to a partner.

The message is attached to --task when given, else to the context task, else
to the task of the newest message in the conversation.`,
		Example: `  tasker-inbox send 42 "On my way"
  tasker-inbox send 42 "Quote attached" --task 7`,
		Args: cobra.MinimumNArgs(2),
		RunE: runSend,
	}
	cmd.Flags().Int64("task", 0, "task the message is about")
	cmd.Flags().String("name", "", "display name for a partner without messages")
	cmd.Flags().Bool("json", false, "output the created message as JSON")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	rt, err := loadUserRuntime(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	partnerID, err := resolvePartner(cmd, args[:1], 0)
	if err != nil {
		return err
	}
	content := strings.Join(args[1:], " ")
	if strings.TrimSpace(content) == "" {
		return usageError(cmd, "message must not be empty")
	}

	pre := inbox.Preselection{PartnerID: partnerID}
	pre.PartnerName, _ = cmd.Flags().GetString("name")
	switch {
	case cmd.Flags().Changed("task"):
		id, _ := cmd.Flags().GetInt64("task")
		if id <= 0 {
			return usageError(cmd, "--task must be a positive task id")
		}
		pre.TaskID = &id
	default:
		if current, err := rt.contextStore().Load(); err == nil && current.HasTask() {
			pre.TaskID = models.Int64Ptr(current.TaskID)
		}
	}

	s, err := rt.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if err := s.inbox.Load(ctx); err != nil {
		return backendError("load messages", err)
	}
	if _, err := s.inbox.Preselect(ctx, pre); err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}

	created, err := s.inbox.Send(ctx, content)
	if err != nil {
		var validation *models.ValidationErrors
		if errors.As(err, &validation) || errors.Is(err, inbox.ErrEmptyMessage) {
			return &ExitError{Code: ExitCodeUsage, Err: err}
		}
		return backendError("send message", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(out, created)
	}
	fmt.Fprintln(out, created.ID)
	return nil
}
