package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"bookflow/internal/booking"
	"bookflow/internal/slots"
	"bookflow/internal/spapi"
)

const sessionExpiredText = "Your booking session has expired. Send /start to begin again."

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	l := zerolog.Ctx(ctx)
	data := cq.Data
	if data == cbNoop || cq.Message == nil {
		b.answerCallback(cq.ID, "")
		return
	}

	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	session := b.sessions.Get(userID)
	if session == nil {
		b.answerCallback(cq.ID, "")
		b.reply(chatID, sessionExpiredText)
		return
	}
	w := session.Wizard
	st := b.state.get(userID)
	st.MessageID = cq.Message.MessageID

	if data == cbSubmit {
		b.answerCallback(cq.ID, "")
		b.submit(ctx, chatID, userID, w, st)
		return
	}

	err := b.dispatch(ctx, w, st, data)
	switch {
	case err == nil:
		b.answerCallback(cq.ID, "")
	case errors.Is(err, slots.ErrSuperseded):
		// A newer load owns the view; render what is current.
		b.answerCallback(cq.ID, "")
	case errors.Is(err, booking.ErrSubmissionInProgress):
		b.answerCallback(cq.ID, "Your reservation is being submitted.")
		return
	case errors.Is(err, booking.ErrPreconditionFailed):
		l.Debug().Err(err).Str("data", data).Msg("action rejected")
		b.answerCallback(cq.ID, "This action is not available right now.")
		return
	default:
		l.Debug().Err(err).Str("data", data).Msg("action failed")
		b.answerCallback(cq.ID, "")
	}
	st.MessageID = b.render(chatID, st.MessageID, w, st)
}

// dispatch applies one button press to the wizard.
func (b *Bot) dispatch(ctx context.Context, w *booking.Wizard, st *userState, data string) error {
	switch {
	case data == cbStart:
		return w.StartBooking()
	case strings.HasPrefix(data, cbService):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, cbService), 10, 64)
		if err != nil {
			return booking.ErrPreconditionFailed
		}
		_, err = w.ToggleService(id)
		return err
	case data == cbContinue:
		if err := w.ContinueToDateTime(); err != nil {
			return err
		}
		_, err := w.LoadSlots(ctx)
		return err
	case data == cbBackLanding:
		st.Step = inputNone
		return w.BackToLanding()
	case data == cbBackService:
		st.Step = inputNone
		return w.BackToServices()
	case data == cbPrevMonth:
		w.PrevMonth()
	case data == cbNextMonth:
		w.NextMonth()
	case strings.HasPrefix(data, cbDate):
		_, err := w.SelectDate(ctx, strings.TrimPrefix(data, cbDate))
		return err
	case strings.HasPrefix(data, cbSlot):
		minutes, err := strconv.Atoi(strings.TrimPrefix(data, cbSlot))
		if err != nil {
			return booking.ErrPreconditionFailed
		}
		return w.SelectSlot(minutes)
	case data == cbRefresh:
		_, err := w.Refocus(ctx)
		return err
	case data == cbDialogOpen:
		if err := w.OpenReservationDialog(); err != nil {
			return err
		}
		st.Step = inputName
	case data == cbDialogClose:
		w.CloseDialog()
		st.Step = inputNone
	case data == cbSkipPhone:
		if st.Step == inputPhone {
			st.Contact.Phone = ""
			st.Step = inputReady
		}
	default:
		return booking.ErrPreconditionFailed
	}
	return nil
}

func (b *Bot) submit(ctx context.Context, chatID, userID int64, w *booking.Wizard, st *userState) {
	l := zerolog.Ctx(ctx)
	if st.Step != inputReady {
		st.MessageID = b.render(chatID, st.MessageID, w, st)
		return
	}
	if _, err := b.tg.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		l.Debug().Err(err).Msg("chat action failed")
	}

	submitCtx, cancel := context.WithTimeout(ctx, b.opts.SubmitTimeout)
	defer cancel()
	_, err := w.Submit(submitCtx, st.Contact)

	switch {
	case err == nil:
		b.render(chatID, st.MessageID, w, st)
		b.sessions.Delete(userID)
		b.state.reset(userID)
		return
	case errors.Is(err, booking.ErrSubmissionInProgress):
		return
	case errors.Is(err, spapi.ErrNotAvailable):
		st.Step = inputNone
	case errors.Is(err, booking.ErrPreconditionFailed):
		st.Step = inputName
	}
	st.MessageID = b.render(chatID, st.MessageID, w, st)
}
