package booking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bookflow/internal/calendar"
	"bookflow/internal/cart"
	"bookflow/internal/journal"
	"bookflow/internal/metrics"
	"bookflow/internal/slots"
	"bookflow/internal/spapi"
)

var (
	// ErrPreconditionFailed rejects a transition or action whose step
	// requirements are not met. The UI disables the control instead.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrSubmissionInProgress rejects a second submit while one is pending.
	ErrSubmissionInProgress = errors.New("submission in progress")
	// ErrUnavailable means the provider cannot be booked online.
	ErrUnavailable = errors.New("booking unavailable")
)

const (
	cleanupTimeout    = 10 * time.Second
	submitFailMessage = "We could not complete your reservation. Please try again."
	takenMessage      = "This time is no longer available. Please pick another slot."
)

// Backend is the booking API used by the wizard.
type Backend interface {
	slots.Source
	GetCatalog(ctx context.Context, businessURL string) (*spapi.Catalog, error)
	CreateBooking(ctx context.Context, businessURL string, req spapi.BookingRequest) (*spapi.BookingResponse, error)
	CancelReservation(ctx context.Context, req spapi.CancelRequest) error
}

// Recorder keeps an audit trail of submissions and cleanups.
type Recorder interface {
	RecordSubmission(ctx context.Context, s journal.Submission) error
	RecordCancellation(ctx context.Context, c journal.Cancellation) error
}

// Options configure a Wizard.
type Options struct {
	UserID          int64
	ViewerTZ        string
	DefaultLocation *time.Location
	SlotCacheTTL    time.Duration
	Recorder        Recorder
	Logger          *zerolog.Logger
	Now             func() time.Time
}

// Wizard is one visitor's booking session. It owns the cart, the calendar and
// the slot fetcher; nothing is shared between wizards.
type Wizard struct {
	backend    Backend
	recorder   Recorder
	fsm        *FSM
	logger     zerolog.Logger
	now        func() time.Time
	userID     int64
	defaultLoc *time.Location
	slotTTL    time.Duration

	mu            sync.Mutex
	businessURL   string
	catalog       *spapi.Catalog
	unavailable   error
	step          Step
	cart          *cart.Cart
	cal           *calendar.Calendar
	fetcher       *slots.Fetcher
	viewerTZ      string
	slot          *slots.Slot
	slotSignature string
	dialogOpen    bool
	contact       Contact
	submitting    bool
	message       string
	redirectURL   string
	reference     string
}

// NewWizard creates an unmounted wizard.
func NewWizard(backend Backend, opts Options) *Wizard {
	w := &Wizard{
		backend:    backend,
		recorder:   opts.Recorder,
		fsm:        NewFSM(),
		logger:     zerolog.Nop(),
		now:        opts.Now,
		userID:     opts.UserID,
		defaultLoc: opts.DefaultLocation,
		slotTTL:    opts.SlotCacheTTL,
		step:       StepLanding,
		cart:       cart.New(),
		viewerTZ:   opts.ViewerTZ,
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.defaultLoc == nil {
		w.defaultLoc = time.UTC
	}
	if w.viewerTZ == "" {
		w.viewerTZ = w.defaultLoc.String()
	}
	if opts.Logger != nil {
		w.logger = *opts.Logger
	}
	return w
}

// Mount loads the provider catalog and handles a payment cancellation
// callback carried by query. A malformed catalog leaves the wizard in an
// unavailable state and the error is returned wrapped in ErrBadProviderData.
func (w *Wizard) Mount(ctx context.Context, businessURL string, query url.Values) error {
	if req, ok := cancellationFromQuery(query); ok {
		go w.cleanupCancellation(context.WithoutCancel(ctx), businessURL, req)
	}

	catalog, err := w.backend.GetCatalog(ctx, businessURL)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInProgress
	}
	w.businessURL = businessURL
	w.step = StepLanding
	w.cart.Reset()
	w.clearDateTimeLocked()
	w.redirectURL = ""
	w.message = ""

	if err != nil {
		w.catalog = catalog
		w.cal = nil
		w.fetcher = nil
		w.unavailable = nil
		if errors.Is(err, spapi.ErrBadProviderData) {
			w.unavailable = err
			w.logger.Error().Err(err).Str("business", businessURL).Msg("provider data unusable")
		}
		return err
	}
	w.unavailable = nil
	w.catalog = catalog

	today := calendar.TodayAt(w.now(), catalog.ProviderOffset())
	w.cal = calendar.New(catalog.Policy.NoticeWindow, today, w.onDateSelected)
	w.fetcher = slots.NewFetcher(w.backend, businessURL, catalog.Business.UTCOffset, slots.Options{
		TTL:             w.slotTTL,
		DefaultLocation: w.defaultLoc,
		Now:             w.now,
		Logger:          &w.logger,
	})
	return nil
}

// StartBooking leaves the landing page.
func (w *Wizard) StartBooking() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unavailable != nil || w.catalog == nil {
		return ErrUnavailable
	}
	return w.moveLocked(StepServiceSelection)
}

// ToggleService adds or removes a catalog service from the cart and reports
// whether it is selected afterwards.
func (w *Wizard) ToggleService(serviceID int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return false, ErrSubmissionInProgress
	}
	if w.step != StepServiceSelection {
		return false, fmt.Errorf("%w: services are chosen on the service step", ErrPreconditionFailed)
	}
	svc, ok := w.catalog.Service(serviceID)
	if !ok {
		return false, fmt.Errorf("unknown service %d", serviceID)
	}
	w.cart.Toggle(svc)
	return w.cart.Contains(serviceID), nil
}

// CanContinue reports whether the service step's continue control is enabled.
func (w *Wizard) CanContinue() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step == StepServiceSelection && !w.cart.IsEmpty()
}

// ContinueToDateTime enters date and time selection. A slot chosen earlier
// survives unless the service set changed since.
func (w *Wizard) ContinueToDateTime() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step != StepServiceSelection || w.cart.IsEmpty() {
		return fmt.Errorf("%w: select at least one service", ErrPreconditionFailed)
	}
	if err := w.moveLocked(StepDateTimeSelection); err != nil {
		return err
	}

	if sig := w.cart.Signature(); sig != w.slotSignature {
		w.slot = nil
		w.dialogOpen = false
		w.fetcher.Reset()
		w.slotSignature = sig
	}
	w.cal.Refresh(calendar.TodayAt(w.now(), w.catalog.ProviderOffset()))
	w.cal.SetWeekdayFilter(w.cart.AvailableOn)
	if w.cal.Selected() == "" {
		w.slot = nil
	}
	return nil
}

// BackToServices returns to the service step keeping every selection.
func (w *Wizard) BackToServices() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.moveLocked(StepServiceSelection); err != nil {
		return err
	}
	w.dialogOpen = false
	return nil
}

// BackToLanding leaves the service step and empties the cart.
func (w *Wizard) BackToLanding() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.moveLocked(StepLanding); err != nil {
		return err
	}
	w.cart.Reset()
	return nil
}

// SelectDate picks a calendar date and loads its slots. Dates outside the
// notice window or on days the services are not offered are rejected.
func (w *Wizard) SelectDate(ctx context.Context, date string) (slots.View, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return slots.View{}, ErrSubmissionInProgress
	}
	if w.step != StepDateTimeSelection {
		w.mu.Unlock()
		return slots.View{}, fmt.Errorf("%w: not on the date step", ErrPreconditionFailed)
	}
	if date != w.cal.Selected() && !w.cal.Select(date) {
		w.mu.Unlock()
		return slots.View{}, fmt.Errorf("%w: %s is not bookable", ErrPreconditionFailed, date)
	}
	w.mu.Unlock()
	return w.LoadSlots(ctx)
}

// LoadSlots fetches slots for the selected date and drops a chosen slot the
// provider no longer offers.
func (w *Wizard) LoadSlots(ctx context.Context) (slots.View, error) {
	w.mu.Lock()
	q, ok := w.slotQueryLocked()
	fetcher := w.fetcher
	w.mu.Unlock()
	if !ok {
		return slots.View{Status: slots.StatusIdle}, nil
	}

	view, err := fetcher.Load(ctx, q)
	if err != nil {
		return view, err
	}
	w.reconcileSlot(view)
	return view, nil
}

// Refocus refetches the slots of the selected date, ignoring the cache.
func (w *Wizard) Refocus(ctx context.Context) (slots.View, error) {
	w.mu.Lock()
	_, ok := w.slotQueryLocked()
	fetcher := w.fetcher
	w.mu.Unlock()
	if !ok {
		return slots.View{Status: slots.StatusIdle}, nil
	}
	view, err := fetcher.Refocus(ctx)
	if err != nil {
		return view, err
	}
	w.reconcileSlot(view)
	return view, nil
}

// SelectSlot picks one of the displayed slots by its provider-local minutes.
func (w *Wizard) SelectSlot(providerMinutes int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInProgress
	}
	if w.step != StepDateTimeSelection || w.cal.Selected() == "" {
		return fmt.Errorf("%w: pick a date first", ErrPreconditionFailed)
	}
	view := w.fetcher.Current()
	if view.Key.Date != w.cal.Selected() || view.Status != slots.StatusReady {
		return fmt.Errorf("%w: slots are not loaded", ErrPreconditionFailed)
	}
	s, ok := view.Find(providerMinutes)
	if !ok {
		return fmt.Errorf("%w: slot %d is not offered", ErrPreconditionFailed, providerMinutes)
	}
	w.slot = &s
	w.message = ""
	return nil
}

// CanOpenDialog reports whether the reservation dialog may be opened.
func (w *Wizard) CanOpenDialog() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canOpenDialogLocked()
}

// OpenReservationDialog overlays the contact form on the date step.
func (w *Wizard) OpenReservationDialog() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.canOpenDialogLocked() {
		return fmt.Errorf("%w: pick a date and a time", ErrPreconditionFailed)
	}
	w.dialogOpen = true
	return nil
}

// CloseDialog hides the contact form; entered contact data is kept.
func (w *Wizard) CloseDialog() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.submitting {
		w.dialogOpen = false
	}
}

// Submit sends the reservation. On success the wizard moves to Confirmation,
// exposes the redirect URL and tears the session state down. On failure it
// stays on the date step with the dialog open and the draft intact; when the
// slot was taken meanwhile the slot is cleared and the date is refetched.
// Submissions are never retried.
func (w *Wizard) Submit(ctx context.Context, contact Contact) (string, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return "", ErrSubmissionInProgress
	}
	if w.step != StepDateTimeSelection || !w.dialogOpen || !w.canOpenDialogLocked() {
		w.mu.Unlock()
		return "", fmt.Errorf("%w: reservation dialog is not open", ErrPreconditionFailed)
	}
	w.contact = contact
	if err := contact.Validate(); err != nil {
		w.message = err.Error()
		w.mu.Unlock()
		return "", err
	}
	if w.reference == "" {
		w.reference = uuid.NewString()
	}
	draft := Draft{
		Services: w.cart.Services(),
		Date:     w.cal.Selected(),
		Slot:     *w.slot,
		Contact:  contact,
		ViewerTZ: w.viewerTZ,
	}
	req := draft.Request(w.reference)
	businessURL := w.businessURL
	w.submitting = true
	w.message = ""
	w.mu.Unlock()

	resp, err := w.backend.CreateBooking(ctx, businessURL, req)

	w.mu.Lock()
	w.submitting = false
	record := journal.Submission{
		Reference:  req.Reference,
		Business:   businessURL,
		UserID:     w.userID,
		Name:       req.Name,
		Email:      req.Email,
		EventDate:  req.EventDate,
		EventTime:  req.EventTime,
		Duration:   req.EventDuration,
		ServiceIDs: req.ServiceIDs,
		ClientTZ:   req.ClientTZ,
		CreatedAt:  w.now(),
	}

	if err != nil {
		record.Error = err.Error()
		notAvailable := errors.Is(err, spapi.ErrNotAvailable)
		if notAvailable {
			record.Status = journal.StatusNotAvailable
			w.slot = nil
			w.dialogOpen = false
			w.message = takenMessage
			if msg := userMessage(err); msg != "" {
				w.message = msg
			}
		} else {
			record.Status = journal.StatusFailed
			w.message = userMessage(err)
			if w.message == "" {
				w.message = submitFailMessage
			}
		}
		fetcher := w.fetcher
		date := draft.Date
		w.mu.Unlock()

		metrics.IncBookingSubmitted(record.Status)
		w.logger.Warn().Err(err).Str("business", businessURL).Str("reference", req.Reference).
			Msg("reservation failed")
		w.record(ctx, record)
		if notAvailable {
			fetcher.Forget(date)
			if _, ferr := w.Refocus(ctx); ferr != nil && !errors.Is(ferr, slots.ErrSuperseded) {
				w.logger.Warn().Err(ferr).Msg("refetch after taken slot failed")
			}
		}
		return "", err
	}

	record.Status = journal.StatusSubmitted
	record.RedirectURL = resp.RedirectURL
	// The server accepted the booking, so its answer wins over local state.
	from := w.step
	w.step = StepConfirmation
	metrics.IncWizardTransition(string(from), string(StepConfirmation))
	w.redirectURL = resp.RedirectURL
	w.teardownLocked()
	w.mu.Unlock()

	metrics.IncBookingSubmitted(record.Status)
	w.logger.Info().Str("business", businessURL).Str("reference", req.Reference).Msg("reservation submitted")
	w.record(ctx, record)
	return resp.RedirectURL, nil
}

// SetViewerTimezone changes the zone slots are displayed in and drops the
// chosen slot.
func (w *Wizard) SetViewerTimezone(name string) error {
	if _, err := time.LoadLocation(name); err != nil || name == "" {
		return fmt.Errorf("%w: unknown timezone %q", ErrPreconditionFailed, name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return ErrSubmissionInProgress
	}
	if name == w.viewerTZ {
		return nil
	}
	w.viewerTZ = name
	// The chosen slot is labelled in the old zone; it is picked again from the reloaded list.
	w.slot = nil
	w.dialogOpen = false
	if w.fetcher != nil {
		w.fetcher.Reset()
	}
	return nil
}

// PrevMonth shows the previous calendar month when it has bookable days.
func (w *Wizard) PrevMonth() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cal != nil {
		w.cal.PrevMonth()
	}
}

// NextMonth shows the next calendar month when it has bookable days.
func (w *Wizard) NextMonth() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cal != nil {
		w.cal.NextMonth()
	}
}

func (w *Wizard) moveLocked(to Step) error {
	if w.submitting {
		return ErrSubmissionInProgress
	}
	from := w.step
	if !w.fsm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrPreconditionFailed, from, to)
	}
	w.step = to
	metrics.IncWizardTransition(string(from), string(to))
	return nil
}

func (w *Wizard) canOpenDialogLocked() bool {
	return w.step == StepDateTimeSelection && w.unavailable == nil &&
		!w.cart.IsEmpty() && w.cal.Selected() != "" && w.slot != nil
}

func (w *Wizard) slotQueryLocked() (slots.Query, bool) {
	if w.step != StepDateTimeSelection || w.cal == nil || w.cal.Selected() == "" {
		return slots.Query{}, false
	}
	return slots.Query{
		Date:       w.cal.Selected(),
		ServiceIDs: w.cart.IDs(),
		Duration:   w.cart.TotalDuration(),
		ViewerTZ:   w.viewerTZ,
	}, true
}

func (w *Wizard) reconcileSlot(view slots.View) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.slot == nil || view.Key.Date != w.cal.Selected() {
		return
	}
	if view.Status == slots.StatusFailed {
		return
	}
	if s, ok := view.Find(w.slot.ProviderMinutes); ok {
		w.slot = &s
		return
	}
	w.slot = nil
	w.dialogOpen = false
}

// onDateSelected runs inside calendar.Select with w.mu held.
func (w *Wizard) onDateSelected(string) {
	w.slot = nil
	w.dialogOpen = false
}

func (w *Wizard) clearDateTimeLocked() {
	w.slot = nil
	w.slotSignature = ""
	w.dialogOpen = false
	w.contact = Contact{}
	w.reference = ""
	if w.cal != nil {
		w.cal.ClearSelection()
	}
	if w.fetcher != nil {
		w.fetcher.Reset()
	}
}

func (w *Wizard) teardownLocked() {
	w.cart.Reset()
	w.clearDateTimeLocked()
	w.message = ""
}

func (w *Wizard) record(ctx context.Context, s journal.Submission) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.RecordSubmission(context.WithoutCancel(ctx), s); err != nil {
		w.logger.Error().Err(err).Str("reference", s.Reference).Msg("journal write failed")
	}
}

func (w *Wizard) cleanupCancellation(ctx context.Context, businessURL string, req spapi.CancelRequest) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	rec := journal.Cancellation{
		Business:    businessURL,
		ProductID:   req.ProductID,
		ProductType: req.ProductType,
		Status:      "ok",
	}
	if err := w.backend.CancelReservation(ctx, req); err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
		w.logger.Warn().Err(err).Str("product_id", req.ProductID).Msg("cancellation cleanup failed")
	}
	rec.CreatedAt = w.now()
	metrics.IncCancellationCleanup(rec.Status)

	if w.recorder != nil {
		if err := w.recorder.RecordCancellation(ctx, rec); err != nil {
			w.logger.Error().Err(err).Msg("journal write failed")
		}
	}
}

func cancellationFromQuery(q url.Values) (spapi.CancelRequest, bool) {
	if q.Get("status") != "canceled" {
		return spapi.CancelRequest{}, false
	}
	req := spapi.CancelRequest{ProductID: q.Get("product_id"), ProductType: q.Get("product_type")}
	if req.ProductID == "" || req.ProductType == "" {
		return spapi.CancelRequest{}, false
	}
	return req, true
}

func userMessage(err error) string {
	var apiErr *spapi.APIError
	if errors.As(err, &apiErr) && apiErr.IsClientError() {
		return apiErr.UserMessage()
	}
	return ""
}
