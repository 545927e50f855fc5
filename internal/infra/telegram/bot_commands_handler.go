// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"strings"

	"announcement_dispatcher/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func RegisterBotCommands(
	b *telebot.Bot,
	operator *app.OperatorService,
	baseLogger *logrus.Entry, // For contextual logging
) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID)
		logCtx.Info("Processing /start command")

		if operator.IsAdmin(senderID) {
			return c.Send("Hello, operator! Announcements are being dispatched. Use /help for the command list.")
		}
		return c.Send("Hello! This bot posts community announcements. Operator commands are restricted.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		logCtx := startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID)
		logCtx.Info("Processing /help command")

		if !operator.IsAdmin(senderID) {
			return c.Send("Announcements are posted here automatically while they are active.")
		}
		return c.Send(operatorHelp(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	})
}

func operatorHelp() string {
	var helpText strings.Builder
	helpText.WriteString("Operator commands:\n\n")
	helpText.WriteString("`/active`\n - Latest active notifications.\n\n")
	helpText.WriteString("`/stats <id>`\n - Window, channel states and delivery counts of a notification.\n\n")
	helpText.WriteString("`/scan`\n - Run an activation scan now.\n\n")
	helpText.WriteString("`/housekeep`\n - Disable notifications whose window has closed.\n\n")
	helpText.WriteString("`/help`\n - Show this message.")
	return helpText.String()
}
