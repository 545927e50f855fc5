// Command announcer dispatches community announcements to external channels
// while their activation window is open.
//
// Usage:
//
//	announcer serve
//	announcer scan
//	announcer disable 12
//	announcer create --title "Water outage" --body "..." --start 2025-03-10T08:00:00Z --end 2025-03-10T18:00:00Z
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"announcement_dispatcher/internal/app"
	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/infra/channels"
	"announcement_dispatcher/internal/infra/config"
	idb "announcement_dispatcher/internal/infra/database"
	"announcement_dispatcher/internal/infra/httpserver"
	"announcement_dispatcher/internal/infra/logger"
	"announcement_dispatcher/internal/infra/scheduler"
	"announcement_dispatcher/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"
)

func main() {
	root := &cobra.Command{
		Use:           "announcer",
		Short:         "Community announcement dispatcher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(scanCmd())
	root.AddCommand(housekeepCmd())
	root.AddCommand(purgeCmd())
	root.AddCommand(createCmd())
	root.AddCommand(updateCmd())
	root.AddCommand(setEnabledCmd("enable", true))
	root.AddCommand(setEnabledCmd("disable", false))
	root.AddCommand(deleteCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		logger.Log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// application holds the wired collaborators shared by every command.
type application struct {
	cfg           *config.AppConfig
	db            *sql.DB
	bot           *telebot.Bot
	tracker       *app.ActivationTracker
	announcements *app.AnnouncementService
	operator      *app.OperatorService
}

func (a *application) Close() {
	if err := a.db.Close(); err != nil {
		logger.Log.WithError(err).Warn("Error closing database connection")
	}
}

func bootstrap(ctx context.Context, withBot bool) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	mainLogger.Info("Database connection established successfully.")

	notificationRepo := idb.NewPostgresNotificationRepository(db)
	deliveryLog := idb.NewPostgresDeliveryLog(db)
	subscriberRepo := idb.NewPostgresSubscriberRepository(db)

	var bot *telebot.Bot
	if withBot && cfg.TelegramToken != "" {
		bot, err = newBot(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
	}

	dispatchers := buildDispatchers(cfg, subscriberRepo, bot)
	if len(dispatchers) == 0 {
		mainLogger.Warn("No delivery channel is configured; notifications will only be tracked")
	}
	enabled := make([]delivery.Channel, 0, len(dispatchers))
	for _, d := range dispatchers {
		enabled = append(enabled, d.Channel())
	}
	mainLogger.WithField("channels", enabled).Info("Delivery channels configured")

	tracker := app.NewActivationTracker(notificationRepo, deliveryLog, dispatchers, logger.Component("activation_tracker"), app.TrackerConfig{
		DispatchTimeout: cfg.DispatchTimeout,
		Concurrency:     cfg.ScanConcurrency,
		Retention:       cfg.DeliveryLogRetention,
		RatePerSecond:   cfg.DispatchRatePerSecond,
	})

	return &application{
		cfg:           cfg,
		db:            db,
		bot:           bot,
		tracker:       tracker,
		announcements: app.NewAnnouncementService(notificationRepo, deliveryLog, tracker, enabled, logger.Component("announcements")),
		operator:      app.NewOperatorService(tracker, cfg.AdminTelegramID),
	}, nil
}

func newBot(cfg *config.AppConfig) (*telebot.Bot, error) {
	botLogger := logger.Component("telebot")
	return telebot.NewBot(telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telegram handler error")
		},
	})
}

func buildDispatchers(cfg *config.AppConfig, subscribers *idb.PostgresSubscriberRepository, bot *telebot.Bot) []delivery.Dispatcher {
	httpClient := &http.Client{Timeout: cfg.DispatchTimeout}
	dispatchers := make([]delivery.Dispatcher, 0, 4)

	if cfg.WhatsAppAPIURL != "" {
		dispatchers = append(dispatchers, channels.NewWhatsAppGroupDispatcher(cfg.WhatsAppAPIURL, cfg.WhatsAppSecretKey, httpClient))
	}
	if cfg.PushEnabled {
		dispatchers = append(dispatchers, channels.NewPushFanoutDispatcher(cfg.PushGatewayURL, cfg.PushSecretKey, subscribers, httpClient))
	}
	if cfg.SMTPHost != "" {
		dialer := channels.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.DispatchTimeout)
		dispatchers = append(dispatchers, channels.NewEmailFanoutDispatcher(dialer, cfg.SMTPFrom, subscribers, logger.Component("email")))
	}
	if bot != nil && cfg.TelegramGroupChatID != 0 {
		dispatchers = append(dispatchers, channels.NewTelegramGroupDispatcher(telegram.NewTelebotAdapter(bot), cfg.TelegramGroupChatID))
	}
	return dispatchers
}

// runOnce bootstraps, runs fn and waits for any detached dispatch it started.
func runOnce(withBot bool, fn func(ctx context.Context, a *application) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx, withBot)
	if err != nil {
		return err
	}
	defer a.Close()

	err = fn(ctx, a)
	a.tracker.Wait()
	return err
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the operator bot and the ops HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()
			mainLogger := logger.Component("main")

			notifScheduler := scheduler.NewNotificationScheduler(
				a.tracker,
				logger.Component("scheduler"),
				a.cfg.CronSpecActivationScan,
				a.cfg.CronSpecHousekeeping,
				a.cfg.CronSpecLogRetention,
			)
			if err := notifScheduler.Start(); err != nil {
				return err
			}

			srv := httpserver.NewServer(a.cfg.HTTPAddr, httpserver.NewRouter(a.db, a.announcements, logger.Component("http")))
			go func() {
				mainLogger.WithField("addr", a.cfg.HTTPAddr).Info("Ops HTTP endpoint listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					mainLogger.WithError(err).Error("Ops HTTP endpoint stopped")
				}
			}()

			if a.bot != nil {
				botLogger := logger.Component("bot")
				telegram.RegisterBotCommands(a.bot, a.operator, botLogger)
				telegram.RegisterOperatorHandlers(ctx, a.bot, a.announcements, a.operator, botLogger)
				// Start bot in a goroutine so it doesn't block graceful shutdown handling
				go a.bot.Start()
				mainLogger.Info("Operator bot started")
			}

			mainLogger.Info("Application setup complete. Scheduler is running.")
			<-ctx.Done()

			mainLogger.Info("Shutting down application...")
			if a.bot != nil {
				a.bot.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				mainLogger.WithError(err).Warn("Ops HTTP endpoint did not shut down cleanly")
			}
			notifScheduler.Stop()
			mainLogger.Info("Application shut down gracefully.")
			return nil
		},
	}
}

func scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one activation scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(true, func(ctx context.Context, a *application) error {
				result, err := a.tracker.Scan(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scan %s: %d active, %d sent, %d failed, %d skipped, %d already sent, %d errors\n",
					result.ScanID, result.Candidates, result.Sent, result.Failed, result.Skipped, result.AlreadySent, result.Errors)
				return nil
			})
		},
	}
}

func housekeepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "housekeep",
		Short: "Disable notifications whose window has closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(false, func(ctx context.Context, a *application) error {
				count, err := a.tracker.Housekeep(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deactivated %d notifications\n", count)
				return nil
			})
		},
	}
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete delivery records older than the retention age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(false, func(ctx context.Context, a *application) error {
				count, err := a.tracker.PurgeDeliveryLog(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d delivery records\n", count)
				return nil
			})
		},
	}
}

func createCmd() *cobra.Command {
	var (
		title, body, start, end string
		disabled                bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a notification; it is dispatched at once if its window is open",
		RunE: func(cmd *cobra.Command, args []string) error {
			startAt, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			endAt, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			return runOnce(true, func(ctx context.Context, a *application) error {
				n, err := a.announcements.Create(ctx, app.NewAnnouncement{
					Title:   title,
					Body:    body,
					StartAt: startAt,
					EndAt:   endAt,
					Enabled: !disabled,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created notification %d\n", n.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Notification title (1-255 characters)")
	cmd.Flags().StringVar(&body, "body", "", "Notification body (1-2000 characters)")
	cmd.Flags().StringVar(&start, "start", "", "Window start, RFC3339")
	cmd.Flags().StringVar(&end, "end", "", "Window end, RFC3339")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the notification disabled")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("body")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid notification id %q", arg)
	}
	return id, nil
}

func updateCmd() *cobra.Command {
	var (
		title, body, start, end string
		enabled                 bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a notification; only the flags given are changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var changes app.AnnouncementChanges
			flags := cmd.Flags()
			if flags.Changed("title") {
				changes.Title = &title
			}
			if flags.Changed("body") {
				changes.Body = &body
			}
			if flags.Changed("start") {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				changes.StartAt = &t
			}
			if flags.Changed("end") {
				t, err := time.Parse(time.RFC3339, end)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				changes.EndAt = &t
			}
			if flags.Changed("enabled") {
				changes.Enabled = &enabled
			}

			return runOnce(true, func(ctx context.Context, a *application) error {
				n, err := a.announcements.Update(ctx, id, changes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated notification %d (enabled=%t)\n", n.ID, n.Enabled)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&body, "body", "", "New body")
	cmd.Flags().StringVar(&start, "start", "", "New window start, RFC3339")
	cmd.Flags().StringVar(&end, "end", "", "New window end, RFC3339")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable or disable the notification")
	return cmd
}

func setEnabledCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("Set the enabled flag of a notification to %t", enabled),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOnce(enabled, func(ctx context.Context, a *application) error {
				if _, err := a.announcements.SetEnabled(ctx, id, enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "notification %d %sd\n", id, use)
				return nil
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification and its delivery records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runOnce(false, func(ctx context.Context, a *application) error {
				if err := a.announcements.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted notification %d\n", id)
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(false, func(ctx context.Context, a *application) error {
				if err := idb.ApplySchema(ctx, a.db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}
