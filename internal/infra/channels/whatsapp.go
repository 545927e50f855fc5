package channels

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
)

type whatsAppRequest struct {
	Message   string `json:"message"`
	SecretKey string `json:"secretKey"`
}

// WhatsAppGroupDispatcher posts the rendered message to the community group
// through the WhatsApp bridge API.
type WhatsAppGroupDispatcher struct {
	httpClient *http.Client
	apiURL     string
	secretKey  string
	now        func() time.Time
}

func NewWhatsAppGroupDispatcher(apiURL, secretKey string, httpClient *http.Client) *WhatsAppGroupDispatcher {
	return &WhatsAppGroupDispatcher{
		httpClient: newHTTPClient(httpClient),
		apiURL:     apiURL,
		secretKey:  secretKey,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (d *WhatsAppGroupDispatcher) Channel() delivery.Channel {
	return delivery.ChannelGroupMessage
}

func (d *WhatsAppGroupDispatcher) Dispatch(ctx context.Context, n *notification.Notification) delivery.Result {
	// Both trigger paths reach this channel, so the window is checked again here.
	if !n.Enabled || !n.IsActiveAt(d.now()) {
		return delivery.Skipped("notification not active")
	}

	status, err := postJSON(ctx, d.httpClient, d.apiURL, whatsAppRequest{
		Message:   n.Message(),
		SecretKey: d.secretKey,
	})
	if err != nil {
		return delivery.Failed(fmt.Sprintf("whatsapp api: %v", err))
	}
	return delivery.Sent(fmt.Sprintf("whatsapp api status %d", status))
}
