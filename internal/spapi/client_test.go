package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogJSON = `{
	"business": {"url": "glow-spa", "name": "Glow Spa", "timezone": "Asia/Tokyo", "utc_offset": 540},
	"services": [
		{"id": 1, "name": "Haircut", "duration": 30, "price": 20, "category_id": 10},
		{"id": 2, "name": "Color", "duration": 60, "price": 30, "category_id": 10, "available_days": [1, 3]},
		{"id": 3, "name": "Gift card", "duration": 15, "price": 5, "category_id": 99}
	],
	"categories": [{"id": 10, "name": "Hair"}, {"id": 11, "name": "Nails"}],
	"policy": {"min_notice_days": 1, "max_notice_days": 30}
}`

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{WithRetries(2, time.Millisecond)}, opts...)
	return NewClient(srv.URL, "test-key", opts...)
}

func TestGetCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sp/glow-spa/data", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(catalogJSON))
	}))
	defer srv.Close()

	catalog, err := newTestClient(srv).GetCatalog(context.Background(), "glow-spa")
	require.NoError(t, err)

	assert.Equal(t, "Glow Spa", catalog.Business.Name)
	assert.Equal(t, 540, catalog.ProviderOffset())
	assert.Equal(t, 1, catalog.Policy.MinNoticeDays)
	assert.Equal(t, 30, catalog.Policy.MaxNoticeDays)
	require.Len(t, catalog.Services, 3)
	assert.Equal(t, 30, catalog.Services[0].DurationMinutes)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, catalog.Services[1].AvailableDays)

	groups := catalog.ServicesByCategory()
	require.Len(t, groups, 2)
	assert.Equal(t, "Hair", groups[0].Category.Name)
	assert.Len(t, groups[0].Services, 2)
	assert.Empty(t, groups[1].Category.Name)
	assert.Equal(t, int64(3), groups[1].Services[0].ID)

	svc, ok := catalog.Service(2)
	assert.True(t, ok)
	assert.Equal(t, "Color", svc.Name)
}

func TestGetCatalogMissingOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"business": {"name": "No Offset"}, "policy": {"min_notice_days": 0, "max_notice_days": 7}}`))
	}))
	defer srv.Close()

	catalog, err := newTestClient(srv).GetCatalog(context.Background(), "no-offset")
	require.ErrorIs(t, err, ErrBadProviderData)
	require.NotNil(t, catalog)
	assert.Equal(t, "No Offset", catalog.Business.Name)
}

func TestGetCatalogInvertedWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"business": {"utc_offset": 0}, "policy": {"min_notice_days": 9, "max_notice_days": 2}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetCatalog(context.Background(), "x")
	assert.ErrorIs(t, err, ErrBadProviderData)
}

func TestGetCatalogRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(catalogJSON))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	client.UseRedisCache(rdb, time.Minute)

	ctx := context.Background()
	_, err := client.GetCatalog(ctx, "glow-spa")
	require.NoError(t, err)
	cached, err := client.GetCatalog(ctx, "glow-spa")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "Glow Spa", cached.Business.Name)
	assert.True(t, mr.Exists("catalog:glow-spa"))

	mr.FastForward(2 * time.Minute)
	_, err = client.GetCatalog(ctx, "glow-spa")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAvailableTimeSlotsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sp/glow-spa/available-time-slots", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2026-10-21", q.Get("date"))
		assert.Equal(t, "Europe/Berlin", q.Get("clientTz"))
		assert.Equal(t, []string{"1", "2"}, q["service_ids[]"])
		assert.Equal(t, "90", q.Get("duration"))
		_, _ = w.Write([]byte(`{"slots": [540, 600, 630], "utc_offset": 0}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).AvailableTimeSlots(context.Background(), "glow-spa", SlotQuery{
		Date:       "2026-10-21",
		ClientTZ:   "Europe/Berlin",
		ServiceIDs: []int64{1, 2},
		Duration:   90,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{540, 600, 630}, resp.Slots)
	require.NotNil(t, resp.UTCOffset)
	assert.Equal(t, 0, *resp.UTCOffset)
}

func TestAvailableTimeSlotsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(` [570, 600]`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).AvailableTimeSlots(context.Background(), "x", SlotQuery{Date: "2026-10-21"})
	require.NoError(t, err)
	assert.Equal(t, []int{570, 600}, resp.Slots)
	assert.Nil(t, resp.UTCOffset)
}

func TestAvailableTimeSlotsRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"slots": [600]}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).AvailableTimeSlots(context.Background(), "x", SlotQuery{Date: "2026-10-21"})
	require.NoError(t, err)
	assert.Equal(t, []int{600}, resp.Slots)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAvailableTimeSlotsGivesUpAfterBoundedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).AvailableTimeSlots(context.Background(), "x", SlotQuery{Date: "2026-10-21"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAvailableTimeSlotsClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "Date is outside the booking window"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).AvailableTimeSlots(context.Background(), "x", SlotQuery{Date: "2026-10-21"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Date is outside the booking window", apiErr.Message)
	assert.True(t, apiErr.IsClientError())
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Equal(t, int32(1), calls.Load())
}

func TestAvailableTimeSlotsRateLimitedNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message": "slow down"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).AvailableTimeSlots(context.Background(), "x", SlotQuery{Date: "2026-10-21"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "slow down", apiErr.Message)
	assert.True(t, apiErr.IsClientError())
	assert.False(t, errors.Is(err, ErrTransient))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateBooking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sp/glow-spa/booking", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ann Lee", body["name"])
		assert.Equal(t, "2026-10-21", body["event_date"])
		assert.EqualValues(t, 600, body["event_time"])
		assert.EqualValues(t, 90, body["event_duration"])
		assert.Equal(t, []any{1.0, 2.0}, body["service_ids"])
		assert.Equal(t, "Europe/Berlin", body["client_tz"])

		_, _ = w.Write([]byte(`{"redirect_url": "https://pay.example.com/s/abc"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv).CreateBooking(context.Background(), "glow-spa", BookingRequest{
		Name:          "Ann Lee",
		Email:         "ann@example.com",
		EventDate:     "2026-10-21",
		EventTime:     600,
		EventDuration: 90,
		ServiceIDs:    []int64{1, 2},
		ClientTZ:      "Europe/Berlin",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/s/abc", resp.RedirectURL)
}

func TestCreateBookingNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreateBooking(context.Background(), "x", BookingRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateBookingValidationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors": [
			{"field": "event_time", "message": "This time was just booked", "code": "slot_taken"},
			{"field": "email", "message": "Email is invalid"}
		]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreateBooking(context.Background(), "x", BookingRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAvailable)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "This time was just booked", apiErr.Message)
	assert.Equal(t, "This time was just booked\nEmail is invalid", apiErr.UserMessage())
}

func TestCreateBookingConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("slot already reserved"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreateBooking(context.Background(), "x", BookingRequest{})
	assert.ErrorIs(t, err, ErrNotAvailable)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "slot already reserved", apiErr.Message)
}

func TestCreateBookingMissingRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).CreateBooking(context.Background(), "x", BookingRequest{})
	assert.Error(t, err)
}

func TestCancelReservation(t *testing.T) {
	var got CancelRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cancel-reservation", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestClient(srv).CancelReservation(context.Background(), CancelRequest{ProductID: "42", ProductType: "booking"})
	require.NoError(t, err)
	assert.Equal(t, CancelRequest{ProductID: "42", ProductType: "booking"}, got)
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, "", WithRetries(0, 0))
	_, err := client.AvailableTimeSlots(context.Background(), "x", SlotQuery{Date: "2026-10-21"})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestCanceledContextIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(srv).AvailableTimeSlots(ctx, "x", SlotQuery{Date: "2026-10-21"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTransient))
}

func TestRateLimitOption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := newTestClient(srv, WithRateLimit(1000, 5))
	require.NotNil(t, client.limiter)
	for i := 0; i < 3; i++ {
		_, err := client.AvailableTimeSlots(context.Background(), "x", SlotQuery{Date: "2026-10-21"})
		require.NoError(t, err)
	}

	assert.Nil(t, NewClient(srv.URL, "", WithRateLimit(0, 0)).limiter)
}
