package channels

import (
	"context"
	"fmt"
	"html"

	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	domainTelegram "announcement_dispatcher/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// TelegramGroupDispatcher posts the announcement into the community Telegram chat.
type TelegramGroupDispatcher struct {
	client domainTelegram.Client
	chatID int64
}

func NewTelegramGroupDispatcher(client domainTelegram.Client, chatID int64) *TelegramGroupDispatcher {
	return &TelegramGroupDispatcher{client: client, chatID: chatID}
}

func (d *TelegramGroupDispatcher) Channel() delivery.Channel {
	return delivery.ChannelTelegramGroup
}

func (d *TelegramGroupDispatcher) Dispatch(ctx context.Context, n *notification.Notification) delivery.Result {
	text := fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(n.Title), html.EscapeString(n.Body))

	done := make(chan error, 1)
	go func() {
		done <- d.client.SendMessage(d.chatID, text, &telebot.SendOptions{
			ParseMode:             telebot.ModeHTML,
			DisableWebPagePreview: true,
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return delivery.Failed(fmt.Sprintf("telegram: %v", err))
		}
		return delivery.Sent(fmt.Sprintf("posted to chat %d", d.chatID))
	case <-ctx.Done():
		return delivery.Failed(fmt.Sprintf("telegram: %v", ctx.Err()))
	}
}
