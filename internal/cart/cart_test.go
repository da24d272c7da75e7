package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	haircut = Service{ID: 1, Name: "Haircut", DurationMinutes: 30, Price: 20}
	color   = Service{ID: 2, Name: "Color", DurationMinutes: 60, Price: 30}
	massage = Service{ID: 3, Name: "Massage", DurationMinutes: 45, Price: 55.5,
		AvailableDays: []time.Weekday{time.Monday, time.Wednesday}}
)

func TestAddIsIdempotent(t *testing.T) {
	c := New()
	assert.True(t, c.Add(haircut))
	assert.False(t, c.Add(haircut))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 30, c.TotalDuration())
	assert.Equal(t, 20.0, c.TotalPrice())
}

func TestTotals(t *testing.T) {
	c := New()
	c.Add(haircut)
	c.Add(color)

	assert.Equal(t, 90, c.TotalDuration())
	assert.Equal(t, 50.0, c.TotalPrice())

	c.Add(massage)
	assert.Equal(t, 135, c.TotalDuration())
	assert.InDelta(t, 105.5, c.TotalPrice(), 1e-9)

	c.Remove(color.ID)
	assert.Equal(t, 75, c.TotalDuration())
	assert.InDelta(t, 75.5, c.TotalPrice(), 1e-9)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	c := New()
	c.Add(haircut)

	assert.False(t, c.Remove(99))
	assert.Equal(t, []int64{1}, c.IDs())

	empty := New()
	assert.False(t, empty.Remove(1))
	assert.True(t, empty.IsEmpty())
}

func TestInsertionOrderAndCopies(t *testing.T) {
	c := New()
	c.Add(color)
	c.Add(haircut)
	assert.Equal(t, []int64{2, 1}, c.IDs())

	services := c.Services()
	services[0].Price = 1000
	assert.Equal(t, 50.0, c.TotalPrice(), "Services must return a copy")
}

func TestToggle(t *testing.T) {
	c := New()
	c.Toggle(haircut)
	assert.True(t, c.Contains(haircut.ID))
	c.Toggle(haircut)
	assert.False(t, c.Contains(haircut.ID))
}

func TestSignatureIgnoresOrder(t *testing.T) {
	a := New()
	a.Add(haircut)
	a.Add(color)

	b := New()
	b.Add(color)
	b.Add(haircut)

	assert.Equal(t, a.Signature(), b.Signature())
	assert.Equal(t, "1,2/90", a.Signature())

	b.Remove(haircut.ID)
	assert.NotEqual(t, a.Signature(), b.Signature())
}

func TestAvailableOn(t *testing.T) {
	c := New()
	c.Add(haircut)
	assert.True(t, c.AvailableOn(time.Sunday))

	c.Add(massage)
	assert.True(t, c.AvailableOn(time.Monday))
	assert.False(t, c.AvailableOn(time.Tuesday))
}

func TestReset(t *testing.T) {
	c := New()
	c.Add(haircut)
	c.Add(color)
	c.Reset()

	assert.True(t, c.IsEmpty())
	assert.Equal(t, 0, c.TotalDuration())
	assert.Equal(t, 0.0, c.TotalPrice())
}
