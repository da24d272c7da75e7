package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bookflow/internal/booking"
	"bookflow/internal/slots"
	"bookflow/internal/timeslot"
)

const (
	cbNoop        = "noop"
	cbStart       = "start"
	cbService     = "svc:"
	cbContinue    = "next:dt"
	cbBackLanding = "back:landing"
	cbBackService = "back:svc"
	cbPrevMonth   = "cal:prev"
	cbNextMonth   = "cal:next"
	cbDate        = "date:"
	cbSlot        = "slot:"
	cbRefresh     = "refresh"
	cbDialogOpen  = "dialog:open"
	cbDialogClose = "dialog:close"
	cbSubmit      = "submit"
	cbSkipPhone   = "skip:phone"
)

var weekdayHeader = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

func noopButton(text string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, cbNoop)
}

func landingKeyboard(st booking.State) *tgbotapi.InlineKeyboardMarkup {
	if st.Unavailable {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🗓 Book an appointment", cbStart)),
	)
	return &kb
}

// servicesKeyboard lists services grouped by category. The continue button
// is rendered inert until at least one service is selected.
func servicesKeyboard(st booking.State) tgbotapi.InlineKeyboardMarkup {
	selected := make(map[int64]bool, len(st.Selected))
	for _, s := range st.Selected {
		selected[s.ID] = true
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	for _, g := range st.Groups {
		if g.Category.Name != "" {
			rows = append(rows, []tgbotapi.InlineKeyboardButton{noopButton("— " + g.Category.Name + " —")})
		}
		for _, s := range g.Services {
			mark := "▫️"
			if selected[s.ID] {
				mark = "✅"
			}
			label := fmt.Sprintf("%s %s · %s · %s", mark, s.Name,
				timeslot.FormatDuration(s.DurationMinutes), formatPrice(s.Price, st.Business.Currency))
			rows = append(rows, []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData(label, cbService+strconv.FormatInt(s.ID, 10)),
			})
		}
	}

	next := noopButton("Select a service to continue")
	if st.CanContinue {
		next = tgbotapi.NewInlineKeyboardButtonData("Continue ➡️", cbContinue)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBackLanding),
		next,
	})
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// calendarRows renders the month grid. Days outside the notice window or not
// offered by the selected services are inert.
func calendarRows(cal *booking.CalendarView) [][]tgbotapi.InlineKeyboardButton {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cal.Grid)+2)

	prev, next := noopButton(" "), noopButton(" ")
	if cal.CanPrev {
		prev = tgbotapi.NewInlineKeyboardButtonData("◀️", cbPrevMonth)
	}
	if cal.CanNext {
		next = tgbotapi.NewInlineKeyboardButtonData("▶️", cbNextMonth)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		prev, noopButton(fmt.Sprintf("%s %d", cal.Month, cal.Year)), next,
	})

	header := make([]tgbotapi.InlineKeyboardButton, len(weekdayHeader))
	for i, d := range weekdayHeader {
		header[i] = noopButton(d)
	}
	rows = append(rows, header)

	for _, week := range cal.Grid {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for _, cell := range week {
			switch {
			case cell.Day == 0:
				row = append(row, noopButton(" "))
			case !cell.Selectable:
				row = append(row, noopButton("·"))
			case cell.Selected:
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("[%d]", cell.Day), cbDate+cell.Date))
			default:
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(cell.Day), cbDate+cell.Date))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// slotRows renders the displayed slots three per row in the viewer's time.
func slotRows(view slots.View, selected *slots.Slot) [][]tgbotapi.InlineKeyboardButton {
	if view.Status != slots.StatusReady {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	var current []tgbotapi.InlineKeyboardButton
	for _, s := range view.Slots {
		text := slotLabel(s)
		if selected != nil && selected.ProviderMinutes == s.ProviderMinutes {
			text = "✅ " + text
		}
		current = append(current, tgbotapi.NewInlineKeyboardButtonData(text, cbSlot+strconv.Itoa(s.ProviderMinutes)))
		if len(current) == 3 {
			rows = append(rows, current)
			current = nil
		}
	}
	if len(current) > 0 {
		rows = append(rows, current)
	}
	return rows
}

func dateTimeKeyboard(st booking.State) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	if st.Calendar != nil {
		rows = append(rows, calendarRows(st.Calendar)...)
	}
	rows = append(rows, slotRows(st.Slots, st.Slot)...)

	reserve := noopButton("Pick a date and time")
	if st.CanOpenDialog {
		reserve = tgbotapi.NewInlineKeyboardButtonData("📝 Reserve", cbDialogOpen)
	}
	actions := []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("⬅️ Services", cbBackService)}
	if st.Date != "" {
		actions = append(actions, tgbotapi.NewInlineKeyboardButtonData("🔄", cbRefresh))
	}
	rows = append(rows, actions, []tgbotapi.InlineKeyboardButton{reserve})
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func dialogKeyboard(st booking.State, input inputStep) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 2)
	switch {
	case st.Submitting:
		rows = append(rows, []tgbotapi.InlineKeyboardButton{noopButton("⏳ Submitting…")})
	case input == inputPhone:
		rows = append(rows, []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("Skip", cbSkipPhone)})
	case input == inputReady:
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm reservation", cbSubmit),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", cbDialogOpen),
		})
	}
	if !st.Submitting {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("✖️ Close", cbDialogClose)})
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func confirmationKeyboard(st booking.State) *tgbotapi.InlineKeyboardMarkup {
	if st.RedirectURL == "" {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Continue to payment", st.RedirectURL)),
	)
	return &kb
}

func slotLabel(s slots.Slot) string {
	switch s.DayShift {
	case -1:
		return s.Label + " (−1d)"
	case 1:
		return s.Label + " (+1d)"
	default:
		return s.Label
	}
}

func formatPrice(price float64, currency string) string {
	out := strconv.FormatFloat(price, 'f', 2, 64)
	out = strings.TrimSuffix(out, ".00")
	if currency != "" {
		out += " " + currency
	}
	return out
}
