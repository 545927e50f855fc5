package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"announcement_dispatcher/internal/app"
	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
)

const timeLayout = "2006-01-02 15:04 MST"

var errUsageStats = errors.New("usage: /stats <notification id>")

func parseNotificationID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errUsageStats
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("notification id must be a positive number, got %q", args[0])
	}
	return id, nil
}

func formatActiveList(list []*notification.Notification) string {
	if len(list) == 0 {
		return "No active notifications."
	}
	var b strings.Builder
	b.WriteString("Active notifications:\n")
	for _, n := range list {
		fmt.Fprintf(&b, "\n#%d %s\n  until %s\n", n.ID, n.Title, n.EndAt.UTC().Format(timeLayout))
	}
	return b.String()
}

func formatState(state *app.ActivationState, stats []*delivery.ChannelStats) string {
	n := state.Notification
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n", n.ID, n.Title)
	fmt.Fprintf(&b, "Window: %s to %s\n", n.StartAt.UTC().Format(timeLayout), n.EndAt.UTC().Format(timeLayout))

	status := "inactive"
	switch {
	case state.Active:
		status = "active"
	case !n.Enabled:
		status = "disabled"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)

	byChannel := make(map[delivery.Channel]*delivery.ChannelStats, len(stats))
	for _, s := range stats {
		byChannel[s.Channel] = s
	}
	for _, pair := range state.Channels {
		s, ok := byChannel[pair.Channel]
		if !ok {
			s = &delivery.ChannelStats{Channel: pair.Channel}
		}
		fmt.Fprintf(&b, "\n%s: %s (attempts %d, sent %d, failed %d)", pair.Channel, pair.State, s.Attempts, s.Sent, s.Failed)
	}
	return b.String()
}

func formatScanResult(r *app.ScanResult, took time.Duration) string {
	return fmt.Sprintf(
		"Scan %s finished in %s\nactive: %d\nsent: %d\nfailed: %d\nskipped: %d\nalready sent: %d\nerrors: %d",
		r.ScanID, took.Round(time.Millisecond), r.Candidates, r.Sent, r.Failed, r.Skipped, r.AlreadySent, r.Errors,
	)
}
