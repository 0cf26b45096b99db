package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/models"
)

func newThreadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread [partner-id]",
		Short: "Show a conversation and mark it read",
		Long: `Show the conversation with a partner and mark their messages read.

Without a partner id the context partner is used. Opening a partner you have
not talked to yet shows an empty conversation you can send to.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runThread,
	}
	cmd.Flags().String("name", "", "display name for a partner without messages")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

type threadOutput struct {
	Conversation models.Conversation `json:"conversation"`
	MarkedRead   []int64             `json:"marked_read"`
	ReadFailed   []int64             `json:"read_failed,omitempty"`
}

func runThread(cmd *cobra.Command, args []string) error {
	rt, err := loadUserRuntime(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store := rt.contextStore()
	current, err := store.Load()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	partnerID, err := resolvePartner(cmd, args, current.PartnerID)
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" && current.PartnerID == partnerID {
		name = current.PartnerName
	}

	s, err := rt.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if err := s.inbox.Load(ctx); err != nil {
		return backendError("load messages", err)
	}
	pre := inbox.Preselection{PartnerID: partnerID, PartnerName: name}
	if current.HasTask() {
		pre.TaskID = models.Int64Ptr(current.TaskID)
	}
	report, err := s.inbox.Preselect(ctx, pre)
	if err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}
	conv, ok := s.inbox.Selected()
	if !ok {
		return Exitf(ExitCodeFailure, "conversation with %d is not available", partnerID)
	}

	current.SetPartner(conv.PartnerID, conv.PartnerName)
	if err := store.Save(current); err != nil {
		rt.logger.Warn().Err(err).Msg("failed to save context")
	}

	out := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return writeJSON(out, threadOutput{
			Conversation: conv,
			MarkedRead:   report.Attempted,
			ReadFailed:   failedIDs(report),
		})
	}
	printNotice(out, s.inbox.Notice())
	writeThread(out, conv, rt.cfg.User.ID, time.Now())
	return nil
}

func resolvePartner(cmd *cobra.Command, args []string, fallback int64) (int64, error) {
	if len(args) == 0 {
		if fallback > 0 {
			return fallback, nil
		}
		return 0, usageError(cmd, "partner id required (or set one with `context set --partner`)")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError(cmd, fmt.Sprintf("invalid partner id %q", args[0]))
	}
	return id, nil
}

func failedIDs(report inbox.ReadReceiptReport) []int64 {
	if len(report.Failed) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(report.Failed))
	for id := range report.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

func writeThread(out io.Writer, conv models.Conversation, me int64, now time.Time) {
	header := color.New(color.Bold).Sprintf("%s (#%d)", conv.PartnerName, conv.PartnerID)
	if conv.PartnerRole != "" {
		header += " " + string(conv.PartnerRole)
	}
	fmt.Fprintln(out, header)

	if len(conv.Messages) == 0 {
		fmt.Fprintln(out, "No messages yet. Start the conversation with `send`.")
		return
	}

	mine := color.New(color.FgCyan)
	for _, msg := range conv.Messages {
		who := conv.PartnerName
		if msg.SenderID == me {
			who = mine.Sprint("You")
		}
		stamp := inbox.FormatTimestamp(now, msg.CreatedAt)
		task := ""
		if msg.TaskID != nil {
			task = fmt.Sprintf(" [task %d]", *msg.TaskID)
		}
		fmt.Fprintf(out, "%s  %s%s: %s\n", color.New(color.Faint).Sprint(stamp), who, task, msg.Content)
	}
}
