package channels

import (
	"context"
	"fmt"
	"net/http"

	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	"announcement_dispatcher/internal/domain/subscriber"
)

type pushRequest struct {
	NotificationID int64   `json:"notificationId"`
	Title          string  `json:"title"`
	Body           string  `json:"body"`
	Message        string  `json:"message"`
	Recipients     []int64 `json:"recipients"`
	SecretKey      string  `json:"secretKey"`
}

// PushFanoutDispatcher hands one notification and every push-enabled resident
// to the push gateway in a single request. The gateway owns per-device delivery.
type PushFanoutDispatcher struct {
	httpClient  *http.Client
	gatewayURL  string
	secretKey   string
	subscribers subscriber.Repository
}

func NewPushFanoutDispatcher(gatewayURL, secretKey string, subscribers subscriber.Repository, httpClient *http.Client) *PushFanoutDispatcher {
	return &PushFanoutDispatcher{
		httpClient:  newHTTPClient(httpClient),
		gatewayURL:  gatewayURL,
		secretKey:   secretKey,
		subscribers: subscribers,
	}
}

func (d *PushFanoutDispatcher) Channel() delivery.Channel {
	return delivery.ChannelPushFanout
}

func (d *PushFanoutDispatcher) Dispatch(ctx context.Context, n *notification.Notification) delivery.Result {
	subs, err := d.subscribers.ListActive(ctx)
	if err != nil {
		return delivery.Failed(fmt.Sprintf("unable to load push recipients: %v", err))
	}

	recipients := make([]int64, 0, len(subs))
	for _, s := range subs {
		if s.PushEnabled {
			recipients = append(recipients, s.UserID)
		}
	}
	if len(recipients) == 0 {
		return delivery.Skipped("no push-enabled subscribers")
	}

	status, err := postJSON(ctx, d.httpClient, d.gatewayURL, pushRequest{
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
		Message:        n.Message(),
		Recipients:     recipients,
		SecretKey:      d.secretKey,
	})
	if err != nil {
		return delivery.Failed(fmt.Sprintf("push gateway: %v", err))
	}
	return delivery.Sent(fmt.Sprintf("push gateway status %d, %d recipients", status, len(recipients)))
}
