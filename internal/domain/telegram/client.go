package telegram

import "gopkg.in/telebot.v3"

// Client posts a message to a Telegram chat. The group dispatcher depends on
// it instead of on *telebot.Bot.
type Client interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
}
