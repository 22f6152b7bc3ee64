package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dosada05/dinor-predictions/app"
	"github.com/Dosada05/dinor-predictions/config"
	"github.com/Dosada05/dinor-predictions/db"
	"github.com/Dosada05/dinor-predictions/services"
	_ "github.com/lib/pq"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cliApp := &cli.App{
		Name:  "predictions",
		Usage: "batch jobs of the predictions service",
		Commands: []*cli.Command{
			calculatePointsCommand(),
			scheduleClosuresCommand(),
			updateStatusesCommand(),
			rankLeaderboardCommand(),
			migrateCommand(),
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// withApp собирает приложение на время одной команды.
func withApp(fn func(c *cli.Context, a *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		a, err := app.New(c.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(c, a)
	}
}

// exclusive оборачивает команду в advisory lock с её именем.
func exclusive(name string, fn func(c *cli.Context, a *app.App) error) cli.ActionFunc {
	return withApp(func(c *cli.Context, a *app.App) error {
		return services.RunExclusive(c.Context, a.Locker, name, func(ctx context.Context) error {
			return fn(c, a)
		})
	})
}

func calculatePointsCommand() *cli.Command {
	return &cli.Command{
		Name:  services.LockCalculatePoints,
		Usage: "score finished matches and recompute leaderboards",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "match-id", Usage: "score only this match"},
		},
		Action: exclusive(services.LockCalculatePoints, func(c *cli.Context, a *app.App) error {
			if matchID := c.Int("match-id"); matchID > 0 {
				result, err := a.Scoring.CalculateForMatch(c.Context, matchID)
				if err != nil {
					return err
				}
				return printScoringReport(c.App.Writer, &services.ScoringReport{Matches: []*services.MatchScoringResult{result}})
			}
			report, err := a.Scoring.CalculateAllPending(c.Context)
			if err != nil {
				return err
			}
			return printScoringReport(c.App.Writer, report)
		}),
	}
}

func scheduleClosuresCommand() *cli.Command {
	return &cli.Command{
		Name:  services.LockScheduleClosures,
		Usage: "set predictions_close_at for upcoming matches",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: services.DefaultClosureWindowDays, Usage: "look-ahead window in days"},
			&cli.BoolFlag{Name: "force", Usage: "recompute closures that are already set"},
		},
		Action: exclusive(services.LockScheduleClosures, func(c *cli.Context, a *app.App) error {
			if c.Int("days") <= 0 {
				return fmt.Errorf("--days must be positive, got %d", c.Int("days"))
			}
			report, err := a.Closures.ScheduleClosures(c.Context, c.Int("days"), c.Bool("force"))
			if report != nil {
				if printErr := printClosureReport(c.App.Writer, report); printErr != nil && err == nil {
					err = printErr
				}
			}
			return err
		}),
	}
}

func updateStatusesCommand() *cli.Command {
	return &cli.Command{
		Name:  services.LockUpdateStatuses,
		Usage: "move tournaments to the status implied by their dates",
		Action: exclusive(services.LockUpdateStatuses, func(c *cli.Context, a *app.App) error {
			updated, err := a.Tournaments.AutoUpdateStatuses(c.Context)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "tournaments updated: %d\n", updated)
			return err
		}),
	}
}

func rankLeaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  services.LockRankLeaderboard,
		Usage: "recompute every leaderboard entry and rerank the global board",
		Action: exclusive(services.LockRankLeaderboard, func(c *cli.Context, a *app.App) error {
			recomputed, err := a.Leaderboard.RecomputeAll(c.Context)
			if err != nil {
				return err
			}
			ranked, err := a.Leaderboard.UpdateRankings(c.Context)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.App.Writer, "users recomputed: %d\nusers ranked: %d\n", recomputed, ranked)
			return err
		}),
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply the database schema",
		Action: withApp(func(c *cli.Context, a *app.App) error {
			if err := db.Migrate(c.Context, a.DB); err != nil {
				return err
			}
			_, err := fmt.Fprintln(c.App.Writer, "schema is up to date")
			return err
		}),
	}
}
