package telegram

import (
	"errors"
	"fmt"

	"gopkg.in/telebot.v3"
)

var errNoChat = errors.New("telegram chat id is not set")

// TelebotAdapter sends announcements and operator replies through a telebot.Bot.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage posts text to a user or group chat; group ids are negative.
// Link previews are off unless the caller passes its own options.
func (a *TelebotAdapter) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	if chatID == 0 {
		return errNoChat
	}
	if options == nil {
		options = &telebot.SendOptions{DisableWebPagePreview: true}
	}

	if _, err := a.bot.Send(telebot.ChatID(chatID), text, options); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}
