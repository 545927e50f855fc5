package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"announcement_dispatcher/internal/app"
	"announcement_dispatcher/internal/domain/delivery"
	"announcement_dispatcher/internal/domain/notification"
	idb "announcement_dispatcher/internal/infra/database"
	"announcement_dispatcher/internal/infra/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakeAnnouncements struct {
	list  []*notification.Notification
	state *app.ActivationState
	err   error
}

func (f *fakeAnnouncements) ListRecentActive(context.Context) ([]*notification.Notification, error) {
	return f.list, f.err
}

func (f *fakeAnnouncements) ActivationState(_ context.Context, id int64) (*app.ActivationState, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.state == nil || f.state.Notification.ID != id {
		return nil, idb.ErrNotificationNotFound
	}
	return f.state, nil
}

func serve(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	router := NewRouter(fakePinger{}, &fakeAnnouncements{}, logger.Discard())
	assert.Equal(t, http.StatusOK, serve(t, router, "/health/").Code)
	assert.Equal(t, http.StatusOK, serve(t, router, "/health/db").Code)

	down := NewRouter(fakePinger{err: errors.New("connection refused")}, &fakeAnnouncements{}, logger.Discard())
	rec := serve(t, down, "/health/db")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(fakePinger{}, &fakeAnnouncements{}, logger.Discard())
	rec := serve(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestListActiveEndpoint(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	router := NewRouter(fakePinger{}, &fakeAnnouncements{list: []*notification.Notification{
		{ID: 3, Title: "Elevator", Body: "Out of service", StartAt: start, EndAt: start.Add(time.Hour), Enabled: true},
	}}, logger.Discard())

	rec := serve(t, router, "/api/v1/notifications/active")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data  []notificationResponse `json:"data"`
		Count int                    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Elevator - Out of service", body.Data[0].Message)
}

func TestActivationStateEndpoint(t *testing.T) {
	state := &app.ActivationState{
		Notification: &notification.Notification{ID: 8, Title: "t", Body: "b", Enabled: true},
		Active:       true,
		Channels:     []app.PairStatus{{Channel: delivery.ChannelGroupMessage, State: delivery.StateSent}},
	}
	router := NewRouter(fakePinger{}, &fakeAnnouncements{state: state}, logger.Discard())

	rec := serve(t, router, "/api/v1/notifications/8/state")
	require.Equal(t, http.StatusOK, rec.Code)
	var body activationStateResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Active)
	assert.Equal(t, delivery.StateSent, body.Channels[0].State)

	assert.Equal(t, http.StatusNotFound, serve(t, router, "/api/v1/notifications/9/state").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, router, "/api/v1/notifications/abc/state").Code)
}
