package booking

import (
	"time"

	"bookflow/internal/calendar"
	"bookflow/internal/cart"
	"bookflow/internal/slots"
	"bookflow/internal/spapi"
)

// CalendarView is the month grid as currently displayed.
type CalendarView struct {
	Year    int
	Month   time.Month
	Grid    [][]calendar.Cell
	CanPrev bool
	CanNext bool
}

// State is a read-only copy of the wizard for rendering.
type State struct {
	Step               Step
	Business           spapi.Business
	Groups             []spapi.CategoryGroup
	CancellationPolicy string
	Unavailable        bool

	Selected      []cart.Service
	TotalDuration int
	TotalPrice    float64
	CanContinue   bool

	Calendar      *CalendarView
	Date          string
	Slots         slots.View
	Slot          *slots.Slot
	ViewerTZ      string
	DialogOpen    bool
	CanOpenDialog bool
	Contact       Contact
	Submitting    bool

	Message     string
	RedirectURL string
}

// Snapshot returns the current wizard state.
func (w *Wizard) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := State{
		Step:          w.step,
		Unavailable:   w.unavailable != nil,
		Selected:      w.cart.Services(),
		TotalDuration: w.cart.TotalDuration(),
		TotalPrice:    w.cart.TotalPrice(),
		CanContinue:   w.step == StepServiceSelection && !w.cart.IsEmpty(),
		ViewerTZ:      w.viewerTZ,
		DialogOpen:    w.dialogOpen,
		Contact:       w.contact,
		Submitting:    w.submitting,
		Message:       w.message,
		RedirectURL:   w.redirectURL,
	}
	if w.catalog != nil {
		st.Business = w.catalog.Business
		st.Groups = w.catalog.ServicesByCategory()
		st.CancellationPolicy = w.catalog.Policy.CancellationPolicy
	}
	if w.cal != nil {
		year, month := w.cal.Month()
		st.Calendar = &CalendarView{
			Year:    year,
			Month:   month,
			Grid:    w.cal.Grid(),
			CanPrev: w.cal.CanPrevMonth(),
			CanNext: w.cal.CanNextMonth(),
		}
		st.Date = w.cal.Selected()
		st.CanOpenDialog = w.canOpenDialogLocked()
	}
	if w.fetcher != nil {
		st.Slots = w.fetcher.Current()
	}
	if w.slot != nil {
		s := *w.slot
		st.Slot = &s
	}
	return st
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// BusinessURL returns the mounted provider.
func (w *Wizard) BusinessURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.businessURL
}
