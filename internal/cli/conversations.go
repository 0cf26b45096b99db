package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/db"
	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/models"
)

func newConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls", "inbox"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE:    runConversations,
	}
	cmd.Flags().Int64("task", 0, "only show conversations about this task (default: context task)")
	cmd.Flags().Bool("cached", false, "read the last synced snapshot instead of the API")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func runConversations(cmd *cobra.Command, _ []string) error {
	rt, err := loadUserRuntime(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	taskFilter, err := rt.taskFilter(cmd)
	if err != nil {
		return err
	}
	cached, _ := cmd.Flags().GetBool("cached")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var (
		conversations []models.Conversation
		notice        inbox.Notice
		syncedAt      time.Time
	)
	if cached {
		conversations, syncedAt, err = rt.cachedConversations(ctx)
		if err != nil {
			return err
		}
		conversations = inbox.FilterByTask(conversations, taskFilter)
	} else {
		s, err := rt.newSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close(ctx)

		if err := s.inbox.Load(ctx); err != nil {
			return backendError("load messages", err)
		}
		s.inbox.SetTaskFilter(taskFilter)
		conversations = s.inbox.Conversations()
		notice = s.inbox.Notice()
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, conversations)
	}
	if !syncedAt.IsZero() {
		fmt.Fprintf(out, "cached snapshot from %s\n", inbox.FormatTimestamp(time.Now(), syncedAt))
	}
	printNotice(out, notice)
	return writeConversations(out, conversations, time.Now())
}

// taskFilter returns --task, falling back to the sticky context.
func (rt *runtime) taskFilter(cmd *cobra.Command) (*int64, error) {
	if cmd.Flags().Changed("task") {
		id, _ := cmd.Flags().GetInt64("task")
		if id <= 0 {
			return nil, usageError(cmd, "--task must be a positive task id")
		}
		return &id, nil
	}
	current, err := rt.contextStore().Load()
	if err != nil {
		rt.logger.Warn().Err(err).Msg("ignoring unreadable context")
		return nil, nil
	}
	if current.HasTask() {
		return models.Int64Ptr(current.TaskID), nil
	}
	return nil, nil
}

// cachedConversations groups the last stored snapshot for the user.
func (rt *runtime) cachedConversations(ctx context.Context) ([]models.Conversation, time.Time, error) {
	if !rt.cfg.Cache.Enabled {
		return nil, time.Time{}, Exitf(ExitCodeUsage, "--cached needs the local cache (cache.enabled)")
	}
	cache, err := rt.openCache(ctx)
	if err != nil {
		return nil, time.Time{}, Exitf(ExitCodeFailure, "open cache: %v", err)
	}
	defer cache.Close()

	repo := db.NewMessageRepository(cache)
	me := rt.cfg.User.ID
	snapshot, err := repo.Snapshot(ctx, me)
	if err != nil {
		if errors.Is(err, db.ErrNoSnapshot) {
			return nil, time.Time{}, Exitf(ExitCodeFailure, "no cached messages yet; run without --cached first")
		}
		return nil, time.Time{}, Exitf(ExitCodeFailure, "read cache: %v", err)
	}
	messages, err := repo.List(ctx, me)
	if err != nil {
		return nil, time.Time{}, Exitf(ExitCodeFailure, "read cache: %v", err)
	}
	return inbox.GroupConversations(messages, me), snapshot.SyncedAt, nil
}

func writeConversations(out io.Writer, conversations []models.Conversation, now time.Time) error {
	if len(conversations) == 0 {
		fmt.Fprintln(out, "No conversations yet")
		return nil
	}

	tbl := newTable("ID", "PARTNER", "ROLE", "UNREAD", "LAST", "PREVIEW").alignRight(0, 3)
	for _, conv := range conversations {
		last, preview := "", ""
		if conv.LastMessage != nil {
			last = inbox.FormatTimestamp(now, conv.LastMessage.CreatedAt)
			preview = inbox.Truncate(conv.LastMessage.Content, inbox.PreviewLength)
		}
		tbl.add(
			strconv.FormatInt(conv.PartnerID, 10),
			conv.PartnerName,
			string(conv.PartnerRole),
			unreadBadge(conv.UnreadCount),
			last,
			preview,
		)
	}
	return tbl.write(out)
}

func unreadBadge(count int) string {
	if count == 0 {
		return ""
	}
	return color.New(color.FgYellow, color.Bold).Sprintf("%d new", count)
}

func printNotice(out io.Writer, notice inbox.Notice) {
	if notice.IsZero() {
		return
	}
	c := color.New(color.FgYellow)
	if notice.Persistent {
		c = color.New(color.FgRed, color.Bold)
	}
	fmt.Fprintln(out, c.Sprint(notice.Text))
}
