package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tiliavir/tracktime/internal/config"
	"github.com/Tiliavir/tracktime/internal/logging"
	"github.com/Tiliavir/tracktime/internal/model"
	"github.com/Tiliavir/tracktime/internal/storage"
	"github.com/Tiliavir/tracktime/internal/timecalc"
)

// Exit codes.
const (
	exitOK         = 0
	exitValidation = 1
	exitStorage    = 2
)

// skipConfig marks commands that run without a loaded configuration.
const skipConfig = "skip-config"

var (
	cfgFile string
	verbose bool
)

// now is the clock used by every command.
var now = time.Now

// env is the loaded configuration and its derived collaborators, set up
// before any command that needs them runs.
var env struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *storage.Store
}

var rootCmd = &cobra.Command{
	Use:   "tracktime",
	Short: "tracktime – track worked time and sync it to issue trackers",
	Long: `tracktime records worked time intervals per day as CSV files in
~/.tracktime/YYYY/MM/ and pushes the time spent on each task to GitLab,
GitHub, Jira, Linear, Sourcehut or your own webhooks.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute is the entry point called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, model.ErrNoActiveEntry):
		return exitOK
	case storage.IsStorage(err):
		return exitStorage
	default:
		return exitValidation
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.config/tracktime/tracktimerc)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(totalsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads the configuration and builds the logger and store.
func setup(cmd *cobra.Command, _ []string) error {
	env.log = logging.New(cmd.ErrOrStderr(), verbose)
	if cmd.Annotations[skipConfig] != "" {
		return nil
	}

	v, err := config.Read(cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	env.cfg = cfg
	env.store = storage.New(cfg.Directory)
	env.log.Debug().Str("directory", cfg.Directory).Str("config", v.ConfigFileUsed()).Msg("configuration loaded")
	return nil
}

// today returns the start of the current day.
func today() time.Time {
	return timecalc.StartOfDay(now())
}
