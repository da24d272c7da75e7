package booking

import (
	"net/mail"
	"strings"

	"bookflow/internal/cart"
	"bookflow/internal/slots"
	"bookflow/internal/spapi"
)

// Contact is what the visitor enters in the reservation dialog.
type Contact struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// ContactError names the dialog field that failed validation.
type ContactError struct {
	Field   string
	Message string
}

func (e *ContactError) Error() string { return e.Message }

func (e *ContactError) Unwrap() error { return ErrPreconditionFailed }

// Validate checks the required dialog fields.
func (c Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ContactError{Field: "name", Message: "Please enter your name."}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return &ContactError{Field: "email", Message: "Please enter a valid email address."}
	}
	return nil
}

// Draft is assembled at submission only and never persisted by the wizard.
type Draft struct {
	Services []cart.Service
	Date     string
	Slot     slots.Slot
	Contact  Contact
	ViewerTZ string
}

// TotalDuration of the selected services in minutes.
func (d Draft) TotalDuration() int {
	total := 0
	for _, s := range d.Services {
		total += s.DurationMinutes
	}
	return total
}

// Request converts the draft into the booking payload. The event time stays
// in the provider's frame.
func (d Draft) Request(reference string) spapi.BookingRequest {
	ids := make([]int64, len(d.Services))
	for i, s := range d.Services {
		ids[i] = s.ID
	}
	return spapi.BookingRequest{
		Name:          strings.TrimSpace(d.Contact.Name),
		Email:         strings.TrimSpace(d.Contact.Email),
		Phone:         strings.TrimSpace(d.Contact.Phone),
		Notes:         strings.TrimSpace(d.Contact.Notes),
		EventDate:     d.Date,
		EventTime:     d.Slot.ProviderMinutes,
		EventDuration: d.TotalDuration(),
		ServiceIDs:    ids,
		ClientTZ:      d.ViewerTZ,
		Reference:     reference,
	}
}
