// Package cli implements the outlook-email command tree.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brandon/outlook-email/internal/config"
	"github.com/brandon/outlook-email/internal/email"
	"github.com/brandon/outlook-email/internal/journal"
	"github.com/brandon/outlook-email/internal/storage"
)

type rootFlags struct {
	configPath string
	logLevel   string
	version    string
}

// app holds what a command needs once configuration is loaded
type app struct {
	config  *config.Config
	logger  *logrus.Logger
	manager *email.Manager
	journal *journal.Journal
}

// Execute runs the command tree against os.Args
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// NewRootCmd builds the full command tree
func NewRootCmd(version string) *cobra.Command {
	flags := &rootFlags{version: version}

	cmd := &cobra.Command{
		Use:           "outlook-email",
		Short:         "Offline mail cache with queued sync",
		Long:          "Pull mail into a local cache, triage it offline, then apply the queued changes to the mailbox in one batch.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/outlook-email/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	for _, sub := range inboxCommands(flags) {
		cmd.AddCommand(sub)
	}
	cmd.AddCommand(newInboxCmd(flags))
	cmd.AddCommand(newPullCmd(flags))
	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newFoldersCmd(flags))
	cmd.AddCommand(newFolderCmd(flags))
	cmd.AddCommand(newPlanCmd(flags))
	cmd.AddCommand(newApplyCmd(flags))
	cmd.AddCommand(newCleanCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newVersionCmd(flags))

	return cmd
}

// newInboxCmd groups the cache commands under "inbox"
func newInboxCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Work with cached emails",
	}
	for _, sub := range inboxCommands(flags) {
		cmd.AddCommand(sub)
	}
	return cmd
}

func inboxCommands(flags *rootFlags) []*cobra.Command {
	return []*cobra.Command{
		newListCmd(flags),
		newViewCmd(flags),
		newReadCmd(flags, true),
		newReadCmd(flags, false),
		newDeleteCmd(flags),
		newProcessedCmd(flags),
		newMoveCmd(flags),
		newSummaryCmd(flags),
	}
}

// load reads configuration and wires the mailbox manager. The remote
// account is opened only by commands that reach the mailbox.
func (f *rootFlags) load(logOut io.Writer) (*app, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Log, f.logLevel, logOut)
	if err != nil {
		return nil, err
	}

	store := storage.NewStore(cfg.Storage.Dir, logger)
	manager := email.NewManager(cfg, store, email.OpenAccount(cfg, logger), logger)

	return &app{
		config:  cfg,
		logger:  logger,
		manager: manager,
	}, nil
}

// openJournal attaches the apply journal to the manager
func (a *app) openJournal() error {
	if a.journal != nil {
		return nil
	}
	j, err := journal.Open(a.config.Journal.Path, a.logger)
	if err != nil {
		return err
	}
	a.journal = j
	a.manager.SetJournal(j)
	return nil
}

func (a *app) close() {
	if err := a.manager.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close account")
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close journal")
		}
	}
}

// run adapts a command body that needs a loaded app
func (f *rootFlags) run(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := f.load(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args, a)
	}
}

func newLogger(cfg config.LogConfig, override string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}

	levelName := cfg.Level
	if override != "" {
		levelName = override
	}
	level, err := logrus.ParseLevel(strings.TrimSpace(levelName))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	logger.SetLevel(level)
	return logger, nil
}
