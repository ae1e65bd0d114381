package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/qtosh1/botlyhub/internal/apiapp"
	"github.com/qtosh1/botlyhub/internal/auth"
	"github.com/qtosh1/botlyhub/internal/config"
	"github.com/qtosh1/botlyhub/internal/outbox"
)

var rootCmd = &cobra.Command{
	Use:           "botlyctl",
	Short:         "Operator tools for the BotlyHub backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := apiapp.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema is up to date (%s)\n", cfg.StoreDriver)
		return nil
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH (reads stdin when no argument is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}
		if password == "" {
			return errors.New("password must not be empty")
		}
		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect or flush the activity log spool",
}

var outboxProcess string

// spoolDirs returns the existing spool directories selected by --process.
func spoolDirs(cfg config.Config) ([]string, error) {
	processes := config.Processes
	if outboxProcess != "" {
		if !slices.Contains(config.Processes, outboxProcess) {
			return nil, fmt.Errorf("unknown process %q, want one of %s", outboxProcess, strings.Join(config.Processes, ", "))
		}
		processes = []string{outboxProcess}
	}
	var dirs []string
	for _, p := range processes {
		dir := cfg.OutboxDir(p)
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many log entries are waiting in each spool",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dirs, err := spoolDirs(cfg)
		if err != nil {
			return err
		}
		for _, dir := range dirs {
			queue, err := outbox.Open(outbox.OpenOptions{Path: dir, ReadOnly: true})
			if err != nil {
				return fmt.Errorf("%s is held by a running process or unreadable: %w", dir, err)
			}
			n, err := queue.Len()
			queue.Close()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pending entries in %s\n", n, dir)
		}
		if len(dirs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no spools under %s\n", cfg.OutboxPath)
		}
		return nil
	},
}

var outboxDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Write spooled log entries to the database now (stop the owning process first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.StoreDriver != config.DriverPostgres {
			return fmt.Errorf("drain needs the postgres store, got %q", cfg.StoreDriver)
		}
		dirs, err := spoolDirs(cfg)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, err := apiapp.OpenStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		log := apiapp.NewLogger(cfg)
		for _, dir := range dirs {
			n, err := drainDir(ctx, dir, store, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drained %d entries from %s\n", n, dir)
		}
		return nil
	},
}

func drainDir(ctx context.Context, dir string, sink outbox.Sink, log *logrus.Logger) (int, error) {
	queue, err := outbox.Open(outbox.OpenOptions{Path: dir})
	if err != nil {
		return 0, fmt.Errorf("%s is held by a running process or unreadable: %w", dir, err)
	}
	defer queue.Close()

	drainer := outbox.NewDrainer(outbox.DrainerOptions{Queue: queue, Sink: sink, Logger: log})
	total := 0
	for {
		n, err := drainer.DrainOnce(ctx)
		total += n
		if err != nil {
			return total, fmt.Errorf("drained %d entries from %s before failing: %w", total, dir, err)
		}
		if n == 0 {
			return total, nil
		}
	}
}

func init() {
	outboxCmd.PersistentFlags().StringVar(&outboxProcess, "process", "", "only the spool of this process (api or bot)")
	outboxCmd.AddCommand(outboxStatsCmd)
	outboxCmd.AddCommand(outboxDrainCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(outboxCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("botlyctl failed")
		os.Exit(1)
	}
}
