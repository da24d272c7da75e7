// Package slots fetches bookable start times for a date and converts them
// into the viewer's wall-clock time.
package slots

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bookflow/internal/calendar"
	"bookflow/internal/metrics"
	"bookflow/internal/spapi"
	"bookflow/internal/timeslot"
)

// ErrSuperseded is returned to a caller whose response arrived after a newer
// query replaced it. The displayed view was not touched.
var ErrSuperseded = errors.New("slot response superseded")

const (
	defaultTTL            = 2 * time.Minute
	transientFetchMessage = "Could not load available times. Please try again."
	unavailableMessage    = "Online booking is currently unavailable for this business."
)

// Source is the availability endpoint.
type Source interface {
	AvailableTimeSlots(ctx context.Context, businessURL string, q spapi.SlotQuery) (*spapi.SlotsResponse, error)
}

// Status of the displayed slot list.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusEmpty       Status = "empty"
	StatusFailed      Status = "failed"
	StatusUnavailable Status = "unavailable"
)

// Slot is one bookable start time in both frames.
type Slot struct {
	// ProviderMinutes is what the backend sent and what a reservation must carry.
	ProviderMinutes int
	// LocalMinutes is ProviderMinutes translated to the viewer's zone, in [0, 1440).
	LocalMinutes int
	// DayShift is -1/0/+1 when the viewer's date differs from the provider's.
	DayShift   int
	Label      string
	ClockLabel string
}

// Query selects the slots to fetch.
type Query struct {
	Date       string
	ServiceIDs []int64
	Duration   int
	ViewerTZ   string
}

// Key identifies queries that return the same slots.
type Key struct {
	Date     string
	Services string
	Duration int
}

// Key derives the cache and dedupe key of q; service order does not matter.
func (q Query) Key() Key {
	ids := slices.Clone(q.ServiceIDs)
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return Key{Date: q.Date, Services: strings.Join(parts, ","), Duration: q.Duration}
}

// View is what the UI renders under the calendar.
type View struct {
	Key            Key
	Status         Status
	Slots          []Slot
	Message        string
	Err            error
	ProviderOffset int
	ViewerOffset   int
}

// Find returns the slot with the given provider-local minutes.
func (v View) Find(providerMinutes int) (Slot, bool) {
	for _, s := range v.Slots {
		if s.ProviderMinutes == providerMinutes {
			return s, true
		}
	}
	return Slot{}, false
}

// Options tune a Fetcher.
type Options struct {
	// TTL is how long a successful result may be shown without refetching.
	TTL time.Duration
	// DefaultLocation is used when the viewer zone is empty or unknown.
	DefaultLocation *time.Location
	Now             func() time.Time
	Logger          *zerolog.Logger
}

type call struct {
	token  uint64
	done   chan struct{}
	cancel context.CancelFunc
	resp   *spapi.SlotsResponse
	err    error
}

type entry struct {
	view      View
	fetchedAt time.Time
}

// Fetcher loads slots for one booking session. Only the response to the most
// recently issued request for the current key may change the displayed view.
type Fetcher struct {
	source         Source
	businessURL    string
	providerOffset *int
	ttl            time.Duration
	defaultLoc     *time.Location
	now            func() time.Time
	logger         zerolog.Logger

	mu       sync.Mutex
	token    uint64
	current  Key
	query    Query
	view     View
	inflight map[Key]*call
	cache    map[Key]entry
}

// NewFetcher creates a fetcher for businessURL. providerOffset is the catalog
// offset used when the endpoint does not report one; nil means unknown.
func NewFetcher(source Source, businessURL string, providerOffset *int, opts Options) *Fetcher {
	f := &Fetcher{
		source:         source,
		businessURL:    businessURL,
		providerOffset: providerOffset,
		ttl:            opts.TTL,
		defaultLoc:     opts.DefaultLocation,
		now:            opts.Now,
		logger:         zerolog.Nop(),
		view:           View{Status: StatusIdle},
		inflight:       make(map[Key]*call),
		cache:          make(map[Key]entry),
	}
	if f.ttl <= 0 {
		f.ttl = defaultTTL
	}
	if f.now == nil {
		f.now = time.Now
	}
	if opts.Logger != nil {
		f.logger = *opts.Logger
	}
	return f
}

// Load shows the slots for q, fetching them unless a fresh cached result exists.
// A request already in flight for the same key is joined rather than repeated.
// When a newer Load changes the key before this one resolves, ErrSuperseded is
// returned together with the current view.
func (f *Fetcher) Load(ctx context.Context, q Query) (View, error) {
	key := q.Key()

	f.mu.Lock()
	if key != f.current {
		f.switchKeyLocked(key)
	}
	f.query = q
	if e, ok := f.cache[key]; ok && f.now().Sub(e.fetchedAt) < f.ttl {
		f.view = e.view
		f.mu.Unlock()
		return e.view, nil
	}
	delete(f.cache, key)

	c, joined := f.inflight[key]
	var callCtx context.Context
	if !joined {
		f.token++
		callCtx, c = f.newCall(ctx)
		f.inflight[key] = c
	}
	f.view = View{Key: key, Status: StatusLoading}
	f.mu.Unlock()

	if joined {
		select {
		case <-c.done:
		case <-ctx.Done():
			return View{}, ctx.Err()
		}
	} else {
		f.run(callCtx, key, q, c)
	}

	view := f.buildView(key, q, c.resp, c.err)

	f.mu.Lock()
	defer f.mu.Unlock()
	if c.token != f.token || f.current != key {
		metrics.IncStaleSlotResponse()
		f.logger.Debug().Str("date", key.Date).Msg("discarding superseded slot response")
		return f.view, ErrSuperseded
	}
	f.view = view
	if view.Status == StatusReady || view.Status == StatusEmpty {
		f.cache[key] = entry{view: view, fetchedAt: f.now()}
	}
	return view, nil
}

// Refocus drops the cached result of the current query and loads it again.
func (f *Fetcher) Refocus(ctx context.Context) (View, error) {
	f.mu.Lock()
	q := f.query
	if f.current == (Key{}) {
		v := f.view
		f.mu.Unlock()
		return v, nil
	}
	delete(f.cache, f.current)
	if c, ok := f.inflight[f.current]; ok {
		c.cancel()
		delete(f.inflight, f.current)
	}
	f.token++
	f.mu.Unlock()
	return f.Load(ctx, q)
}

// Forget evicts every cached result for date.
func (f *Fetcher) Forget(date string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evictDateLocked(date)
}

// Reset abandons in-flight requests and clears the view and cache. Responses
// still on the way are discarded when they arrive.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switchKeyLocked(Key{})
	f.cache = make(map[Key]entry)
	f.query = Query{}
	f.view = View{Status: StatusIdle}
}

// Current returns the displayed view.
func (f *Fetcher) Current() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

// SetProviderOffset updates the catalog offset, e.g. after the catalog is reloaded.
func (f *Fetcher) SetProviderOffset(offset *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providerOffset = offset
	f.cache = make(map[Key]entry)
}

func (f *Fetcher) switchKeyLocked(key Key) {
	f.token++
	for k, c := range f.inflight {
		c.cancel()
		delete(f.inflight, k)
	}
	if f.current.Date != "" && f.current.Date != key.Date {
		f.evictDateLocked(f.current.Date)
	}
	f.current = key
}

func (f *Fetcher) evictDateLocked(date string) {
	for k := range f.cache {
		if k.Date == date {
			delete(f.cache, k)
		}
	}
}

func (f *Fetcher) newCall(ctx context.Context) (context.Context, *call) {
	callCtx, cancel := context.WithCancel(ctx)
	return callCtx, &call{token: f.token, done: make(chan struct{}), cancel: cancel}
}

func (f *Fetcher) run(ctx context.Context, key Key, q Query, c *call) {
	start := time.Now()
	c.resp, c.err = f.source.AvailableTimeSlots(ctx, f.businessURL, spapi.SlotQuery{
		Date:       q.Date,
		ClientTZ:   q.ViewerTZ,
		ServiceIDs: q.ServiceIDs,
		Duration:   q.Duration,
	})
	metrics.ObserveSlotFetch(fetchOutcome(c.resp, c.err), time.Since(start).Seconds())

	f.mu.Lock()
	if f.inflight[key] == c {
		delete(f.inflight, key)
	}
	f.mu.Unlock()
	c.cancel()
	close(c.done)
}

func (f *Fetcher) buildView(key Key, q Query, resp *spapi.SlotsResponse, err error) View {
	view := View{Key: key}
	if err != nil {
		view.Status = StatusFailed
		view.Err = err
		var apiErr *spapi.APIError
		if errors.As(err, &apiErr) && apiErr.IsClientError() {
			view.Message = apiErr.Message
		} else {
			view.Message = transientFetchMessage
		}
		if !errors.Is(err, context.Canceled) {
			f.logger.Warn().Err(err).Str("date", q.Date).Msg("slot fetch failed")
		}
		return view
	}

	providerOffset := f.providerOffset
	if resp.UTCOffset != nil {
		providerOffset = resp.UTCOffset
	}
	if providerOffset == nil {
		view.Status = StatusUnavailable
		view.Err = spapi.ErrBadProviderData
		view.Message = unavailableMessage
		f.logger.Error().Str("business", f.businessURL).Msg("provider utc offset unknown")
		return view
	}

	date, err := calendar.ParseDate(q.Date)
	if err != nil {
		view.Status = StatusFailed
		view.Err = err
		view.Message = "Invalid date."
		return view
	}
	loc := timeslot.LoadLocation(q.ViewerTZ, f.defaultLoc)
	view.ProviderOffset = *providerOffset
	view.ViewerOffset = timeslot.OffsetMinutes(loc, date.Year(), date.Month(), date.Day())

	if len(resp.Slots) == 0 {
		view.Status = StatusEmpty
		view.Message = "No available times on this date."
		return view
	}

	view.Status = StatusReady
	view.Slots = make([]Slot, len(resp.Slots))
	locals := timeslot.ConvertSlotsToLocal(resp.Slots, view.ViewerOffset, view.ProviderOffset)
	for i, m := range resp.Slots {
		local := locals[i]
		view.Slots[i] = Slot{
			ProviderMinutes: m,
			LocalMinutes:    local,
			DayShift:        timeslot.DayShift(m, view.ViewerOffset, view.ProviderOffset),
			Label:           timeslot.MinutesToTimeString(local),
			ClockLabel:      timeslot.MinutesToClockLabel(local),
		}
	}
	return view
}

func fetchOutcome(resp *spapi.SlotsResponse, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, spapi.ErrTransient):
		return "transient_error"
	case err != nil:
		return "error"
	case len(resp.Slots) == 0:
		return "empty"
	default:
		return "ok"
	}
}
