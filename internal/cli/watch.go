package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardgate/wardgate/internal/daemon"
)

var (
	watchActor    string
	watchDebounce time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchActor, "actor", defaultActor, "Actor recorded in decision records")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before a write is processed (default 500ms)")
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Watch directories and enforce content rules on every write",
	Long: `Recursively watches the given directories. Every create or write of a
monitored file is validated against the content rules and recorded in the
ledger. Blocked writes are reverted: new files are deleted, existing files
are restored from their pre-write snapshot.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := openComponents()
	if err != nil {
		return err
	}
	defer c.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	d, err := daemon.New(daemon.Config{
		WatchPaths: args,
		Extensions: c.pack.Watcher.Extensions,
		Ignore:     c.pack.Watcher.Ignore,
		Actor:      watchActor,
		Debounce:   watchDebounce,
		StateDir:   c.home,
		Logger:     logger,
	}, c.checker, c.ledger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	return d.Run(ctx)
}
