package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
	"github.com/rcliao/momentum/internal/service"
	"github.com/rcliao/momentum/internal/storage"
)

var (
	dataFlag string
	dbFlag   string
	userFlag string

	engine *service.Engine
	logger *slog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "momentum",
		Short: "Task tracker with XP, levels and achievements",
		Long: `Momentum tracks tasks, dependencies and recurring work, and keeps a
gamified score per member. Without --user it runs against a local JSON
store; with --user it binds to the sqlite store of record.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if engine != nil {
				engine.Settle()
				engine.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataFlag, "data", envOrDefault("MOMENTUM_DATA", "."), "base directory for the local store")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", envOrDefault("MOMENTUM_DB", ""), "path to the sqlite store of record")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", envOrDefault("MOMENTUM_USER", ""), "account id; binds the remote store when set")

	rootCmd.AddCommand(
		addCmd(),
		listCmd(),
		showCmd(),
		completeCmd(),
		rmCmd(),
		depCmd(),
		blockCmd(),
		subtaskCmd(),
		memberCmd(),
		xpCmd(),
		achievementsCmd(),
		templateCmd(),
		reconcileCmd(),
		overdueCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup() error {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	local, err := storage.NewLocalStore(dataFlag, logger)
	if err != nil {
		return err
	}

	var remote service.Store
	if dbFlag != "" {
		sqlite, err := storage.OpenSQLite(dbFlag, logger)
		if err != nil {
			return err
		}
		remote = sqlite
	}

	engine = service.NewEngine(local, remote, consoleNotifier{}, logger)

	if userFlag != "" {
		if remote == nil {
			return fmt.Errorf("--user requires --db (or MOMENTUM_DB)")
		}
		return engine.Rebind(contextForCmd(), &domain.Session{UserID: userFlag})
	}
	return engine.Refresh(contextForCmd())
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// consoleNotifier prints notification-worthy events to stdout; delivery
// beyond that is someone else's job.
type consoleNotifier struct{}

func (consoleNotifier) AchievementUnlocked(member *domain.Member, a gamify.Achievement) {
	fmt.Printf("🏆 %s unlocked %q: %s\n", member.Name, a.Name, a.Description)
}

func (consoleNotifier) TaskOverdue(task *domain.Task) {
	fmt.Printf("⏰ overdue: %s (due %s)\n", task.Title, task.DueDate.Format("2006-01-02"))
}
