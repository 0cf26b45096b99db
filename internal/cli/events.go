package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/db"
	"github.com/tOgg1/tasker/internal/models"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the local inbox event log",
		Long: `Show inbox events recorded by earlier commands: loads, notices, read
receipts, sends and poller state changes. Events are kept in the local cache.`,
		Example: `  tasker-inbox events --type message.read_failed
  tasker-inbox events --since 1h --json`,
		Args: cobra.NoArgs,
		RunE: runEvents,
	}
	cmd.Flags().String("type", "", "only events of this type")
	cmd.Flags().Duration("since", 0, "only events newer than this")
	cmd.Flags().Int("limit", 50, "maximum events to show")
	cmd.Flags().String("cursor", "", "continue after this event id")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	if !rt.cfg.Cache.Enabled {
		return Exitf(ExitCodeUsage, "the event log needs the local cache (cache.enabled)")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	query := db.EventQuery{}
	query.Limit, _ = cmd.Flags().GetInt("limit")
	query.Cursor, _ = cmd.Flags().GetString("cursor")
	if typ, _ := cmd.Flags().GetString("type"); strings.TrimSpace(typ) != "" {
		eventType := models.EventType(strings.TrimSpace(typ))
		query.Type = &eventType
	}
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		from := time.Now().Add(-since)
		query.Since = &from
	}

	cache, err := rt.openCache(ctx)
	if err != nil {
		return Exitf(ExitCodeFailure, "open cache: %v", err)
	}
	defer cache.Close()

	page, err := db.NewEventRepository(cache).Query(ctx, query)
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		events := page.Events
		if events == nil {
			events = []*models.Event{}
		}
		return writeJSON(out, struct {
			Events     []*models.Event `json:"events"`
			NextCursor string          `json:"next_cursor,omitempty"`
		}{events, page.NextCursor})
	}

	if len(page.Events) == 0 {
		fmt.Fprintln(out, "No events")
		return nil
	}
	for _, event := range page.Events {
		writeEventLine(out, event)
	}
	if page.NextCursor != "" {
		fmt.Fprintf(out, "more: --cursor %s\n", page.NextCursor)
	}
	return nil
}

// writeEventLine prints one event as "15:04:05 type entity=id summary".
func writeEventLine(out io.Writer, event *models.Event) {
	stamp := event.Timestamp.Local().Format("15:04:05")
	fmt.Fprintf(out, "%s %s %s=%s%s\n",
		color.New(color.Faint).Sprint(stamp),
		eventColor(event.Type).Sprint(event.Type),
		event.EntityType,
		event.EntityID,
		eventSummary(event),
	)
}

func eventColor(t models.EventType) *color.Color {
	switch t {
	case models.EventTypeMessageSendFailed, models.EventTypeMessageReadFailed, models.EventTypePollerStopped:
		return color.New(color.FgRed)
	case models.EventTypeInboxNotice:
		return color.New(color.FgYellow)
	case models.EventTypeMessageSent, models.EventTypeMessageRead:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgCyan)
	}
}

func eventSummary(event *models.Event) string {
	if len(event.Payload) == 0 {
		return ""
	}
	switch event.Type {
	case models.EventTypeInboxLoaded, models.EventTypeInboxUpdated:
		var p models.InboxUpdatedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return fmt.Sprintf(" conversations=%d unread=%d last=%d", p.Conversations, p.Unread, p.LastSeenMessageID)
		}
	case models.EventTypeInboxNotice, models.EventTypeMessageSendFailed:
		var p models.NoticePayload
		if json.Unmarshal(event.Payload, &p) == nil {
			if p.Text == "" {
				return " (cleared)"
			}
			return fmt.Sprintf(" %q", p.Text)
		}
	case models.EventTypeMessageReadFailed:
		var p models.ReadFailedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return fmt.Sprintf(" partner=%d error=%q", p.PartnerID, p.Error)
		}
	case models.EventTypePollerStopped:
		var p models.PollerStoppedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return fmt.Sprintf(" failures=%d reason=%q", p.Failures, p.Reason)
		}
	}
	return ""
}
