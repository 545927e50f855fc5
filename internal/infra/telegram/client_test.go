package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendMessageRequiresChat(t *testing.T) {
	adapter := NewTelebotAdapter(nil)
	assert.ErrorIs(t, adapter.SendMessage(0, "hello", nil), errNoChat)
}
