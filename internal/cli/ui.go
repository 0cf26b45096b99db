package cli

import (
	"context"
	"os"

	"golang.org/x/term"

	"github.com/tOgg1/tasker/internal/events"
	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/inboxtui"
	"github.com/tOgg1/tasker/internal/logging"
)

// runTUI opens the interactive inbox. Logs go to a file while the terminal is
// owned by the UI.
func runTUI(ctx context.Context, rt *runtime, pre *inbox.Preselection) error {
	logFile, err := logging.OpenFile(rt.cfg.LogFilePath())
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	defer logFile.Close()
	logging.Init(logging.Config{
		Level:        rt.cfg.Logging.Level,
		Format:       "json",
		Output:       logFile,
		EnableCaller: rt.cfg.Logging.EnableCaller,
	})

	// Thread scrolling is measured in rows, not the default units.
	rt.cfg.Inbox.ScrollThreshold = rt.cfg.TUI.ScrollThreshold

	visibility := inboxtui.NewVisibility()
	s, err := rt.newSession(ctx, inbox.WithForeground(visibility.Visible))
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	ch, cancel, err := s.publisher.SubscribeChannel(events.Filter{}, watchBuffer)
	if err != nil {
		return Exitf(ExitCodeFailure, "subscribe: %v", err)
	}
	defer cancel()

	if err := s.inbox.Start(ctx); err != nil {
		return Exitf(ExitCodeFailure, "start inbox: %v", err)
	}

	return inboxtui.Run(ctx, inboxtui.Config{
		Inbox:      s.inbox,
		Events:     ch,
		Visibility: visibility,
		Theme:      rt.cfg.TUI.Theme,
		Preselect:  pre,
	})
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
