// Package cart holds the services a visitor intends to book in one appointment.
package cart

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Service is one bookable offering from a provider's catalog.
type Service struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	DurationMinutes int            `json:"duration"`
	Price           float64        `json:"price"`
	CategoryID      int64          `json:"category_id"`
	AvailableDays   []time.Weekday `json:"available_days,omitempty"`
}

// AvailableOn reports whether the service can be booked on the weekday.
// A service without explicit days is available every day.
func (s Service) AvailableOn(day time.Weekday) bool {
	if len(s.AvailableDays) == 0 {
		return true
	}
	return slices.Contains(s.AvailableDays, day)
}

// Cart is the ordered, duplicate-free selection of services.
// It is owned by a single booking session and is not safe for concurrent use.
type Cart struct {
	services []Service
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Add appends the service unless one with the same id is already selected.
// It reports whether the cart changed.
func (c *Cart) Add(s Service) bool {
	if c.Contains(s.ID) {
		return false
	}
	c.services = append(c.services, s)
	return true
}

// Remove drops the service with the given id; unknown ids are ignored.
// It reports whether the cart changed.
func (c *Cart) Remove(serviceID int64) bool {
	idx := c.index(serviceID)
	if idx < 0 {
		return false
	}
	c.services = slices.Delete(c.services, idx, idx+1)
	return true
}

// Toggle removes a selected service or adds an unselected one.
func (c *Cart) Toggle(s Service) {
	if !c.Remove(s.ID) {
		c.Add(s)
	}
}

// Contains reports whether the service id is selected.
func (c *Cart) Contains(serviceID int64) bool {
	return c.index(serviceID) >= 0
}

// Services returns a copy of the selection in insertion order.
func (c *Cart) Services() []Service {
	return slices.Clone(c.services)
}

// IDs returns the selected service ids in insertion order.
func (c *Cart) IDs() []int64 {
	ids := make([]int64, len(c.services))
	for i, s := range c.services {
		ids[i] = s.ID
	}
	return ids
}

// Len returns the number of selected services.
func (c *Cart) Len() int {
	return len(c.services)
}

// IsEmpty reports whether nothing is selected.
func (c *Cart) IsEmpty() bool {
	return len(c.services) == 0
}

// TotalDuration sums the durations of the current selection.
func (c *Cart) TotalDuration() int {
	total := 0
	for _, s := range c.services {
		total += s.DurationMinutes
	}
	return total
}

// TotalPrice sums the prices of the current selection.
func (c *Cart) TotalPrice() float64 {
	var total float64
	for _, s := range c.services {
		total += s.Price
	}
	return total
}

// AvailableOn reports whether every selected service is offered on the weekday.
func (c *Cart) AvailableOn(day time.Weekday) bool {
	for _, s := range c.services {
		if !s.AvailableOn(day) {
			return false
		}
	}
	return true
}

// Signature identifies the selection independent of insertion order.
// Two carts with equal signatures yield the same slot query.
func (c *Cart) Signature() string {
	ids := c.IDs()
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",") + "/" + strconv.Itoa(c.TotalDuration())
}

// Reset clears the selection.
func (c *Cart) Reset() {
	c.services = nil
}

func (c *Cart) index(serviceID int64) int {
	return slices.IndexFunc(c.services, func(s Service) bool { return s.ID == serviceID })
}
