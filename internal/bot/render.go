package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bookflow/internal/booking"
	"bookflow/internal/slots"
	"bookflow/internal/timeslot"
)

// renderState turns a wizard snapshot plus the dialog input progress into
// message text and buttons.
func renderState(st booking.State, input inputStep, contact booking.Contact) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch st.Step {
	case booking.StepServiceSelection:
		kb := servicesKeyboard(st)
		return servicesText(st), &kb
	case booking.StepDateTimeSelection:
		if st.DialogOpen {
			kb := dialogKeyboard(st, input)
			return dialogText(st, input, contact), &kb
		}
		kb := dateTimeKeyboard(st)
		return dateTimeText(st), &kb
	case booking.StepConfirmation:
		return confirmationText(st), confirmationKeyboard(st)
	default:
		return landingText(st), landingKeyboard(st)
	}
}

func landingText(st booking.State) string {
	var sb strings.Builder
	name := st.Business.Name
	if name == "" {
		name = st.Business.URL
	}
	sb.WriteString(name + "\n\n")
	if st.Unavailable {
		sb.WriteString("Online booking is currently unavailable for this business.")
		return sb.String()
	}
	sb.WriteString("Book your appointment online in a few steps.")
	if st.CancellationPolicy != "" {
		sb.WriteString("\n\nCancellation policy: " + st.CancellationPolicy)
	}
	if st.Message != "" {
		sb.WriteString("\n\n⚠️ " + st.Message)
	}
	return sb.String()
}

func servicesText(st booking.State) string {
	var sb strings.Builder
	sb.WriteString("Choose one or more services.")
	if len(st.Selected) > 0 {
		fmt.Fprintf(&sb, "\n\nSelected: %d · %s · %s",
			len(st.Selected),
			timeslot.FormatDuration(st.TotalDuration),
			formatPrice(st.TotalPrice, st.Business.Currency))
	}
	return sb.String()
}

func selectionSummary(st booking.State) string {
	names := make([]string, 0, len(st.Selected))
	for _, s := range st.Selected {
		names = append(names, s.Name)
	}
	return fmt.Sprintf("Services: %s (%s)", strings.Join(names, ", "), timeslot.FormatDuration(st.TotalDuration))
}

func dateTimeText(st booking.State) string {
	var sb strings.Builder
	sb.WriteString(selectionSummary(st) + "\n")
	sb.WriteString("Times are shown in " + st.ViewerTZ + ". Use /tz to change.\n\n")

	if st.Date == "" {
		sb.WriteString("Pick a date.")
	} else {
		sb.WriteString("Date: " + st.Date + "\n")
		switch st.Slots.Status {
		case slots.StatusLoading, slots.StatusIdle:
			sb.WriteString("Loading available times…")
		case slots.StatusReady:
			if st.Slot != nil {
				sb.WriteString("Time: " + slotLabel(*st.Slot))
			} else {
				sb.WriteString("Pick a time.")
			}
		default:
			sb.WriteString(st.Slots.Message)
		}
	}
	if st.Message != "" {
		sb.WriteString("\n\n⚠️ " + st.Message)
	}
	return sb.String()
}

func dialogText(st booking.State, input inputStep, contact booking.Contact) string {
	var sb strings.Builder
	sb.WriteString("Reservation\n")
	sb.WriteString(selectionSummary(st) + "\n")
	if st.Slot != nil {
		fmt.Fprintf(&sb, "When: %s at %s (%s)\n", st.Date, slotLabel(*st.Slot), st.ViewerTZ)
	}
	sb.WriteString("\n")

	switch input {
	case inputName:
		sb.WriteString("Please enter your name:")
	case inputEmail:
		sb.WriteString("Please enter your email:")
	case inputPhone:
		sb.WriteString("Please enter your phone number, or tap Skip:")
	default:
		sb.WriteString("Name: " + contact.Name + "\n")
		sb.WriteString("Email: " + contact.Email)
		if contact.Phone != "" {
			sb.WriteString("\nPhone: " + contact.Phone)
		}
	}
	if st.Submitting {
		sb.WriteString("\n\nSubmitting your reservation…")
	}
	if st.Message != "" {
		sb.WriteString("\n\n⚠️ " + st.Message)
	}
	return sb.String()
}

func confirmationText(st booking.State) string {
	if st.RedirectURL == "" {
		return "✅ Your reservation has been created."
	}
	return "✅ Your reservation has been created.\nComplete the payment to confirm your appointment."
}
