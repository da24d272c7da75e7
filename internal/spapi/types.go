package spapi

import (
	"fmt"

	"bookflow/internal/calendar"
	"bookflow/internal/cart"
)

// Business describes the provider being booked.
type Business struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Timezone string `json:"timezone,omitempty"`
	// UTCOffset is minutes east of UTC; nil means the provider never configured it.
	UTCOffset *int   `json:"utc_offset"`
	Currency  string `json:"currency,omitempty"`
}

// Category groups services for display.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Policy carries the booking rules of the provider.
type Policy struct {
	calendar.NoticeWindow
	CancellationPolicy string `json:"cancellation_policy,omitempty"`
}

// Catalog is the payload of GET /sp/{businessUrl}/data.
type Catalog struct {
	Business   Business       `json:"business"`
	Services   []cart.Service `json:"services"`
	Categories []Category     `json:"categories"`
	Policy     Policy         `json:"policy"`
}

// CategoryGroup is a category with its services in catalog order.
type CategoryGroup struct {
	Category Category
	Services []cart.Service
}

// Validate rejects catalogs the scheduling flow cannot use.
func (c *Catalog) Validate() error {
	if c.Business.UTCOffset == nil {
		return fmt.Errorf("%w: missing utc_offset", ErrBadProviderData)
	}
	if off := *c.Business.UTCOffset; off < -14*60 || off > 14*60 {
		return fmt.Errorf("%w: utc_offset %d out of range", ErrBadProviderData, off)
	}
	if err := c.Policy.NoticeWindow.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadProviderData, err)
	}
	return nil
}

// ProviderOffset returns the provider's UTC offset in minutes. Call Validate first.
func (c *Catalog) ProviderOffset() int {
	if c.Business.UTCOffset == nil {
		return 0
	}
	return *c.Business.UTCOffset
}

// Service looks a service up by id.
func (c *Catalog) Service(id int64) (cart.Service, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return cart.Service{}, false
}

// ServicesByCategory groups services by category, keeping catalog order.
// Services whose category is unknown land in a trailing unnamed group.
func (c *Catalog) ServicesByCategory() []CategoryGroup {
	groups := make([]CategoryGroup, 0, len(c.Categories)+1)
	index := make(map[int64]int, len(c.Categories))
	for _, cat := range c.Categories {
		index[cat.ID] = len(groups)
		groups = append(groups, CategoryGroup{Category: cat})
	}
	var other []cart.Service
	for _, s := range c.Services {
		if i, ok := index[s.CategoryID]; ok {
			groups[i].Services = append(groups[i].Services, s)
			continue
		}
		other = append(other, s)
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g.Services) > 0 {
			out = append(out, g)
		}
	}
	if len(other) > 0 {
		out = append(out, CategoryGroup{Services: other})
	}
	return out
}

// SlotQuery parameters of GET /sp/{businessUrl}/available-time-slots.
type SlotQuery struct {
	Date       string // YYYY-MM-DD
	ClientTZ   string // IANA zone name of the viewer
	ServiceIDs []int64
	Duration   int // minutes
}

// SlotsResponse holds provider-local slot minutes. UTCOffset is set when the
// endpoint reports the provider offset alongside the slots.
type SlotsResponse struct {
	Slots     []int `json:"slots"`
	UTCOffset *int  `json:"utc_offset,omitempty"`
}

// BookingRequest is the body of POST /sp/{businessUrl}/booking.
// EventTime is provider-local minutes since midnight.
type BookingRequest struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	EventDate     string  `json:"event_date"`
	EventTime     int     `json:"event_time"`
	EventDuration int     `json:"event_duration"`
	ServiceIDs    []int64 `json:"service_ids"`
	ClientTZ      string  `json:"client_tz"`
	Reference     string  `json:"reference,omitempty"`
}

// BookingResponse carries the external destination the visitor continues to.
type BookingResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// CancelRequest is the body of POST /cancel-reservation.
type CancelRequest struct {
	ProductID   string `json:"product_id"`
	ProductType string `json:"product_type"`
}
