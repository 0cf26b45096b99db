// Package cli implements the tasker-inbox command line.
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tOgg1/tasker/internal/api"
	"github.com/tOgg1/tasker/internal/config"
	"github.com/tOgg1/tasker/internal/db"
	"github.com/tOgg1/tasker/internal/events"
	"github.com/tOgg1/tasker/internal/inbox"
	"github.com/tOgg1/tasker/internal/logging"
)

// maxStoredEvents is how many inbox events the local log keeps.
const maxStoredEvents = 1000

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tasker-inbox",
		Short:         "Tasker direct messages from the terminal",
		Long:          "tasker-inbox lists conversations, reads threads and sends messages through the Tasker API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (default ~/.config/tasker/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("base-url", "", "Tasker API base URL")
	flags.String("token", "", "API bearer token")
	flags.Int64("user-id", 0, "id of the signed-in user")
	flags.Bool("no-cache", false, "do not read or write the local message cache")

	cmd.AddCommand(
		newConversationsCmd(),
		newThreadCmd(),
		newSendCmd(),
		newTasksCmd(),
		newWatchCmd(),
		newContextCmd(),
		newEventsCmd(),
	)

	return cmd
}

// runtime is the per-invocation state shared by subcommands.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// flagOverrides maps persistent flags to the config keys they override.
var flagOverrides = []struct {
	flag string
	key  string
}{
	{"base-url", "api.base_url"},
	{"token", "api.token"},
	{"user-id", "user.id"},
	{"log-level", "logging.level"},
	{"log-format", "logging.format"},
}

func loadRuntime(cmd *cobra.Command) (*runtime, error) {
	loader := config.NewLoader()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loader.SetConfigFile(path)
	}

	for _, o := range flagOverrides {
		f := cmd.Flags().Lookup(o.flag)
		if f == nil || !f.Changed {
			continue
		}
		if o.flag == "user-id" {
			id, _ := cmd.Flags().GetInt64(o.flag)
			loader.Override(o.key, id)
			continue
		}
		loader.Override(o.key, f.Value.String())
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		loader.Override("cache.enabled", false)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, Exitf(ExitCodeUsage, "%v", err)
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cmd.ErrOrStderr(),
		EnableCaller: cfg.Logging.EnableCaller,
	})

	rt := &runtime{cfg: cfg, logger: logging.Component("cli")}
	if used := loader.ConfigFileUsed(); used != "" {
		rt.logger.Debug().Str("path", used).Msg("loaded config file")
	}
	return rt, nil
}

// loadUserRuntime is loadRuntime for commands that act as the signed-in user.
func loadUserRuntime(cmd *cobra.Command) (*runtime, error) {
	rt, err := loadRuntime(cmd)
	if err != nil {
		return nil, err
	}
	if err := rt.cfg.ValidateUser(); err != nil {
		return nil, &ExitError{Code: ExitCodeUsage, Err: err}
	}
	return rt, nil
}

func (rt *runtime) newClient() (*api.Client, error) {
	client, err := api.NewClient(api.Config{
		BaseURL:   rt.cfg.API.BaseURL,
		Token:     rt.cfg.API.Token,
		Timeout:   rt.cfg.API.Timeout,
		TasksPath: rt.cfg.API.TasksPath,
	})
	if err != nil {
		return nil, Exitf(ExitCodeUsage, "%v", err)
	}
	return client, nil
}

func (rt *runtime) inboxConfig() inbox.Config {
	return inbox.Config{
		Me:                     rt.cfg.Me(),
		PollInterval:           rt.cfg.Poll.Interval,
		SilentFailures:         rt.cfg.Poll.SilentFailures,
		MaxFailures:            rt.cfg.Poll.MaxFailures,
		ReadReceiptConcurrency: rt.cfg.Inbox.ReadReceiptConcurrency,
		ScrollThreshold:        rt.cfg.Inbox.ScrollThreshold,
	}
}

// openCache opens and migrates the local database.
func (rt *runtime) openCache(ctx context.Context) (*db.DB, error) {
	if err := rt.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	database, err := db.Open(db.DefaultConfig(rt.cfg.DatabasePath()))
	if err != nil {
		return nil, err
	}
	applied, err := database.MigrateUp(ctx)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	if applied > 0 {
		rt.logger.Debug().Int("migrations", applied).Str("path", database.Path()).Msg("cache migrated")
	}
	return database, nil
}

// session bundles an inbox with the resources it was built on.
type session struct {
	inbox     *inbox.Inbox
	publisher *events.InMemoryPublisher
	cache     *db.DB
	eventLog  *db.EventRepository
}

// Close stops the inbox, trims the event log and closes the cache.
func (s *session) Close(ctx context.Context) {
	s.inbox.Stop()
	s.publisher.Close()
	if s.cache == nil {
		return
	}
	if _, err := s.eventLog.DeleteExcess(ctx, maxStoredEvents); err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).Msg("failed to prune event log")
	}
	_ = s.cache.Close()
}

// newSession wires an inbox to the API client, the event publisher and, when
// enabled, the local cache.
func (rt *runtime) newSession(ctx context.Context, opts ...inbox.Option) (*session, error) {
	client, err := rt.newClient()
	if err != nil {
		return nil, err
	}

	s := &session{}
	var pubOpts []events.PublisherOption
	if rt.cfg.Cache.Enabled {
		cache, err := rt.openCache(ctx)
		if err != nil {
			// The cache is an optimization; run without it.
			rt.logger.Warn().Err(err).Msg("local cache unavailable")
		} else {
			s.cache = cache
			s.eventLog = db.NewEventRepository(cache)
			pubOpts = append(pubOpts, events.WithRepository(s.eventLog))
			opts = append(opts, inbox.WithSnapshotStore(db.NewMessageRepository(cache)))
		}
	}
	s.publisher = events.NewInMemoryPublisher(pubOpts...)
	opts = append([]inbox.Option{inbox.WithPublisher(s.publisher)}, opts...)

	ib, err := inbox.New(client, rt.inboxConfig(), opts...)
	if err != nil {
		if s.cache != nil {
			_ = s.cache.Close()
		}
		return nil, &ExitError{Code: ExitCodeUsage, Err: err}
	}
	s.inbox = ib
	return s, nil
}

func (rt *runtime) contextStore() *config.ContextStore {
	return config.NewContextStore(filepath.Join(rt.cfg.Global.ConfigDir, "context.yaml"))
}
