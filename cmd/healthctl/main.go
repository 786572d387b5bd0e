package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"healthspan/internal/app"
	"healthspan/internal/config"
	"healthspan/internal/db"
	"healthspan/internal/habits"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newCLIApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(out io.Writer) *cli.App {
	a := &cli.App{
		Name:  "healthctl",
		Usage: "Operate the healthspan backend",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Usage: "Extra .env files to load"},
		},
		Commands: []*cli.Command{
			migrateCmd(),
			analyzeCmd(out),
			syncCmd(out),
		},
	}
	a.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return a
}

func loadConfig(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func withApp(c *cli.Context, fn func(*app.Application) error) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()
	a, err := app.New(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer logger.Sync()
			conn, err := app.OpenDB(c.Context, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.RunMigrations(c.Context, conn); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

// analyzeCmd runs the daily pass once, for everyone or a single user.
func analyzeCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Run the daily habit analysis now",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Usage: "Analysis day YYYY-MM-DD (default today, UTC)"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Only analyze this user id"},
		},
		Action: func(c *cli.Context) error {
			target, day, err := analyzeArgs(c)
			if err != nil {
				return err
			}
			return withApp(c, func(a *app.Application) error {
				today := a.Engine.Today()
				if day != nil {
					today = *day
				}
				if target != uuid.Nil {
					summary, err := a.Engine.AnalyzeUser(c.Context, target, today)
					if summary != nil {
						if encErr := outputJSON(out, summary); encErr != nil {
							return encErr
						}
					}
					return err
				}
				report, err := a.Engine.RunDailyPass(c.Context, today)
				if err != nil {
					return err
				}
				if err := outputJSON(out, report); err != nil {
					return err
				}
				if len(report.Failures) > 0 {
					return cli.Exit(fmt.Sprintf("%d of %d users failed", len(report.Failures), report.Users), 2)
				}
				return nil
			})
		},
	}
}

func analyzeArgs(c *cli.Context) (uuid.UUID, *time.Time, error) {
	var target uuid.UUID
	if raw := c.String("user"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("invalid --user: %w", err)
		}
		target = id
	}
	if raw := c.String("date"); raw != "" {
		d, err := habits.ParseDate(raw)
		if err != nil {
			return uuid.Nil, nil, errors.New("invalid --date; expected YYYY-MM-DD")
		}
		return target, &d, nil
	}
	return target, nil, nil
}

func syncCmd(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Pull wearable data for one user",
		ArgsUsage: "<user-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("exactly one user id is required")
			}
			userID, err := uuid.Parse(c.Args().First())
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return withApp(c, func(a *app.Application) error {
				if a.Syncer == nil {
					return errors.New("wearable sync is disabled; set ENCRYPTION_KEY")
				}
				res, err := a.Syncer.Sync(c.Context, userID)
				if err != nil {
					return err
				}
				return outputJSON(out, res)
			})
		},
	}
}
