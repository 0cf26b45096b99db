package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/events"
	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/models"
)

// watchBuffer is the event channel size for line output.
const watchBuffer = 64

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the inbox open and follow new messages",
		Long: `Start the poller and follow the inbox.

On a terminal this opens the interactive inbox. With --plain, or when output
is not a terminal, inbox events are printed one per line until interrupted or
until polling gives up.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	cmd.Flags().Int64("with", 0, "open the conversation with this partner")
	cmd.Flags().String("name", "", "display name for --with when there are no messages yet")
	cmd.Flags().Bool("plain", false, "print events instead of opening the interactive inbox")
	cmd.Flags().Bool("jsonl", false, "print events as JSON lines (implies --plain)")
	cmd.Flags().StringSlice("type", nil, "only print these event types")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	rt, err := loadUserRuntime(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pre *inbox.Preselection
	if cmd.Flags().Changed("with") {
		id, _ := cmd.Flags().GetInt64("with")
		name, _ := cmd.Flags().GetString("name")
		pre = &inbox.Preselection{PartnerID: id, PartnerName: name}
	}

	plain, _ := cmd.Flags().GetBool("plain")
	jsonl, _ := cmd.Flags().GetBool("jsonl")
	if !plain && !jsonl && hasTTY() {
		return runTUI(ctx, rt, pre)
	}

	types, _ := cmd.Flags().GetStringSlice("type")
	filter := events.Filter{}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			filter.EventTypes = append(filter.EventTypes, models.EventType(t))
		}
	}
	if len(filter.EventTypes) > 0 && !slices.Contains(filter.EventTypes, models.EventTypePollerStopped) {
		filter.EventTypes = append(filter.EventTypes, models.EventTypePollerStopped)
	}

	s, err := rt.newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	ch, cancel, err := s.publisher.SubscribeChannel(filter, watchBuffer)
	if err != nil {
		return Exitf(ExitCodeFailure, "subscribe: %v", err)
	}
	defer cancel()

	if err := s.inbox.Start(ctx); err != nil {
		return Exitf(ExitCodeFailure, "start inbox: %v", err)
	}
	if pre != nil {
		if _, err := s.inbox.Preselect(ctx, *pre); err != nil {
			return Exitf(ExitCodeUsage, "%v", err)
		}
	}

	return streamEvents(ctx, ch, s.inbox.PollingStopped(), cmd.OutOrStdout(), jsonl)
}

// streamEvents writes events until ctx ends or the poller gives up. A
// stopped poller is reported as a failure so scripts can restart. stopped
// covers a poller.stopped event that a full channel dropped.
func streamEvents(ctx context.Context, ch <-chan *models.Event, stopped <-chan struct{}, out io.Writer, jsonl bool) error {
	connectionLost := &ExitError{Code: ExitCodeFailure, Err: errors.New(inbox.NoticeConnectionLost)}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeEvent(out, event, jsonl); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
			if event.Type == models.EventTypePollerStopped {
				return connectionLost
			}
		case <-stopped:
			// Flush what is already buffered, then give up.
			for {
				select {
				case event, ok := <-ch:
					if !ok {
						return connectionLost
					}
					if err := writeEvent(out, event, jsonl); err != nil {
						return fmt.Errorf("failed to write event: %w", err)
					}
				default:
					return connectionLost
				}
			}
		}
	}
}

func writeEvent(out io.Writer, event *models.Event, jsonl bool) error {
	if !jsonl {
		writeEventLine(out, event)
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
