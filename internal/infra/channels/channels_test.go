package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"announcement_dispatcher/internal/domain/notification"
	"announcement_dispatcher/internal/domain/subscriber"
	"announcement_dispatcher/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/mail.v2"
	"gopkg.in/telebot.v3"
)

var channelNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func activeNotification() *notification.Notification {
	return &notification.Notification{
		ID:      21,
		Title:   "Gas inspection",
		Body:    "Technicians visit every unit on Monday",
		StartAt: channelNow.Add(-time.Hour),
		EndAt:   channelNow.Add(time.Hour),
		Enabled: true,
	}
}

type fakeSubscribers struct {
	subs []*subscriber.Subscriber
	err  error
}

func (f *fakeSubscribers) ListActive(context.Context) ([]*subscriber.Subscriber, error) {
	return f.subs, f.err
}

func TestWhatsAppGroupDispatcherSendsMessage(t *testing.T) {
	var got whatsAppRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewWhatsAppGroupDispatcher(server.URL, "s3cret", server.Client())
	d.now = func() time.Time { return channelNow }

	result := d.Dispatch(context.Background(), activeNotification())
	assert.True(t, result.Success)
	assert.Equal(t, "Gas inspection - Technicians visit every unit on Monday", got.Message)
	assert.Equal(t, "s3cret", got.SecretKey)
}

func TestWhatsAppGroupDispatcherNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid secret", http.StatusUnauthorized)
	}))
	defer server.Close()

	d := NewWhatsAppGroupDispatcher(server.URL, "wrong", server.Client())
	d.now = func() time.Time { return channelNow }

	result := d.Dispatch(context.Background(), activeNotification())
	assert.False(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Contains(t, result.Detail, "status 401")
	assert.Contains(t, result.Detail, "invalid secret")
}

func TestWhatsAppGroupDispatcherRechecksWindow(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	d := NewWhatsAppGroupDispatcher(server.URL, "s3cret", server.Client())
	d.now = func() time.Time { return channelNow.Add(2 * time.Hour) }

	result := d.Dispatch(context.Background(), activeNotification())
	assert.True(t, result.Skipped)

	d.now = func() time.Time { return channelNow }
	disabled := activeNotification()
	disabled.Enabled = false
	result = d.Dispatch(context.Background(), disabled)
	assert.True(t, result.Skipped)
	assert.Zero(t, calls)
}

func TestWhatsAppGroupDispatcherHonoursContext(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	d := NewWhatsAppGroupDispatcher(server.URL, "s3cret", server.Client())
	d.now = func() time.Time { return channelNow }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := d.Dispatch(ctx, activeNotification())
	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "request failed")
}

func TestPushFanoutDispatcherTargetsPushEnabledSubscribers(t *testing.T) {
	var got pushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	subs := &fakeSubscribers{subs: []*subscriber.Subscriber{
		{UserID: 1, PushEnabled: true},
		{UserID: 2, PushEnabled: false},
		{UserID: 3, PushEnabled: true},
	}}
	d := NewPushFanoutDispatcher(server.URL, "push-key", subs, server.Client())

	result := d.Dispatch(context.Background(), activeNotification())
	assert.True(t, result.Success)
	assert.Equal(t, []int64{1, 3}, got.Recipients)
	assert.Equal(t, int64(21), got.NotificationID)
	assert.Equal(t, "Gas inspection", got.Title)
	assert.Equal(t, "push-key", got.SecretKey)
}

func TestPushFanoutDispatcherWithoutRecipientsSkips(t *testing.T) {
	d := NewPushFanoutDispatcher("http://127.0.0.1:1", "k", &fakeSubscribers{subs: []*subscriber.Subscriber{{UserID: 1}}}, nil)

	result := d.Dispatch(context.Background(), activeNotification())
	assert.True(t, result.Skipped)
}

func TestPushFanoutDispatcherSubscriberErrorFails(t *testing.T) {
	d := NewPushFanoutDispatcher("http://127.0.0.1:1", "k", &fakeSubscribers{err: errors.New("db down")}, nil)

	result := d.Dispatch(context.Background(), activeNotification())
	assert.False(t, result.Success)
	assert.False(t, result.Skipped)
	assert.Contains(t, result.Detail, "db down")
}

type fakeMailSender struct {
	mu   sync.Mutex
	sent []*mail.Message
	err  error
}

func (f *fakeMailSender) DialAndSend(m ...*mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailFanoutDispatcherBccsValidAddresses(t *testing.T) {
	sender := &fakeMailSender{}
	subs := &fakeSubscribers{subs: []*subscriber.Subscriber{
		{UserID: 1, Email: "ana@example.com", EmailEnabled: true},
		{UserID: 2, Email: "not-an-address", EmailEnabled: true},
		{UserID: 3, Email: "bo@example.com", EmailEnabled: false},
		{UserID: 4, Email: " cy@example.org ", EmailEnabled: true},
	}}
	d := NewEmailFanoutDispatcher(sender, "board@condo.example", subs, logger.Discard())

	result := d.Dispatch(context.Background(), activeNotification())
	require.True(t, result.Success, result.Detail)
	require.Len(t, sender.sent, 1)

	m := sender.sent[0]
	assert.Equal(t, []string{"ana@example.com", "cy@example.org"}, m.GetHeader("Bcc"))
	assert.Equal(t, []string{"Gas inspection"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{"board@condo.example"}, m.GetHeader("From"))
}

func TestEmailFanoutDispatcherSMTPFailure(t *testing.T) {
	sender := &fakeMailSender{err: errors.New("535 authentication failed")}
	subs := &fakeSubscribers{subs: []*subscriber.Subscriber{{UserID: 1, Email: "ana@example.com", EmailEnabled: true}}}
	d := NewEmailFanoutDispatcher(sender, "board@condo.example", subs, logger.Discard())

	result := d.Dispatch(context.Background(), activeNotification())
	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "535")
}

func TestEmailFanoutDispatcherWithoutRecipientsSkips(t *testing.T) {
	sender := &fakeMailSender{}
	d := NewEmailFanoutDispatcher(sender, "board@condo.example", &fakeSubscribers{}, logger.Discard())

	result := d.Dispatch(context.Background(), activeNotification())
	assert.True(t, result.Skipped)
	assert.Empty(t, sender.sent)
}

type fakeTelegramClient struct {
	chatID  int64
	text    string
	options *telebot.SendOptions
	err     error
}

func (f *fakeTelegramClient) SendMessage(chatID int64, text string, options *telebot.SendOptions) error {
	f.chatID, f.text, f.options = chatID, text, options
	return f.err
}

func TestTelegramGroupDispatcher(t *testing.T) {
	client := &fakeTelegramClient{}
	d := NewTelegramGroupDispatcher(client, -100123)

	n := activeNotification()
	n.Title = "Lobby <closed>"

	result := d.Dispatch(context.Background(), n)
	assert.True(t, result.Success)
	assert.Equal(t, int64(-100123), client.chatID)
	assert.Equal(t, "<b>Lobby &lt;closed&gt;</b>\n\nTechnicians visit every unit on Monday", client.text)
	assert.Equal(t, telebot.ModeHTML, client.options.ParseMode)

	client.err = errors.New("chat not found")
	result = d.Dispatch(context.Background(), n)
	assert.False(t, result.Success)
	assert.Contains(t, result.Detail, "chat not found")
}
