// Package bot is the Telegram front end of the booking flow. Each chat user
// owns one booking.Wizard; the bot translates button presses and typed
// dialog fields into wizard transitions and renders the resulting state.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bookflow/internal/booking"
	"bookflow/internal/config"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	SelfUser() tgbotapi.User
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

func (c *realTelegramClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return c.api.Request(msg)
}

func (c *realTelegramClient) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return c.api.GetUpdatesChan(cfg)
}

func (c *realTelegramClient) SelfUser() tgbotapi.User {
	return c.api.Self
}

// Options tune the booking sessions the bot creates.
type Options struct {
	DefaultLocation *time.Location
	SlotCacheTTL    time.Duration
	SubmitTimeout   time.Duration
	SessionTimeout  time.Duration
}

// Bot serves the booking wizard over Telegram.
type Bot struct {
	tg       telegramClient
	backend  booking.Backend
	recorder booking.Recorder
	sessions *booking.SessionStore
	state    *stateStore
	tenants  atomic.Pointer[config.TenantsConfig]
	opts     Options
	logger   *zerolog.Logger
}

func New(
	token string,
	backend booking.Backend,
	recorder booking.Recorder,
	tenants *config.TenantsConfig,
	opts Options,
	logger *zerolog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newBot(&realTelegramClient{api: api}, backend, recorder, tenants, opts, logger)
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(
	tg telegramClient,
	backend booking.Backend,
	recorder booking.Recorder,
	tenants *config.TenantsConfig,
	opts Options,
	logger *zerolog.Logger,
) (*Bot, error) {
	return newBot(tg, backend, recorder, tenants, opts, logger)
}

func newBot(
	tg telegramClient,
	backend booking.Backend,
	recorder booking.Recorder,
	tenants *config.TenantsConfig,
	opts Options,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil {
		return nil, fmt.Errorf("telegram client is nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("booking backend is nil")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.DefaultLocation == nil {
		opts.DefaultLocation = time.UTC
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	b := &Bot{
		tg:       tg,
		backend:  backend,
		recorder: recorder,
		sessions: booking.NewSessionStore(opts.SessionTimeout),
		state:    newStateStore(),
		opts:     opts,
		logger:   logger,
	}
	if tenants != nil {
		b.tenants.Store(tenants)
	}
	return b, nil
}

// SetTenants swaps the tenant directory; used by the config watcher.
func (b *Bot) SetTenants(cfg *config.TenantsConfig) {
	b.tenants.Store(cfg)
}

// Start begins polling updates and handles them one at a time.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.GetUpdatesChan(u)
	b.logger.Info().Str("username", b.tg.SelfUser().UserName).Msg("Booking bot authorized")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			requestID := uuid.New().String()
			l := b.logger.With().Str("request_id", requestID).Logger()
			updateCtx := l.WithContext(ctx)
			b.handleUpdate(updateCtx, &update)
		}
	}
}

// StartSessionSweeper drops expired booking sessions every interval.
func (b *Bot) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := b.sessions.Cleanup(); n > 0 {
					b.logger.Debug().Int("removed", n).Msg("expired booking sessions removed")
				}
			}
		}
	}()
}

func (b *Bot) handleUpdate(ctx context.Context, update *tgbotapi.Update) {
	l := zerolog.Ctx(ctx)
	if update.CallbackQuery != nil {
		l.Debug().
			Int64("user_id", update.CallbackQuery.From.ID).
			Str("data", update.CallbackQuery.Data).
			Msg("Handling callback query")
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message != nil && update.Message.From != nil {
		l.Debug().
			Int64("user_id", update.Message.From.ID).
			Msg("Handling message")
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, msg.Chat.ID, msg.From.ID, msg.CommandArguments())
		case "tz":
			b.handleTimezone(ctx, msg.Chat.ID, msg.From.ID, msg.CommandArguments())
		case "cancel":
			b.sessions.Delete(msg.From.ID)
			b.state.reset(msg.From.ID)
			b.reply(msg.Chat.ID, "Booking canceled. Send /start to begin again.")
		case "help":
			b.reply(msg.Chat.ID, "Commands:\n/start <business> opens the booking page\n/tz <Area/City> sets your timezone\n/cancel abandons the current booking")
		default:
			b.reply(msg.Chat.ID, "Unknown command. Send /help for the list of commands.")
		}
		return
	}

	session := b.sessions.Get(msg.From.ID)
	st := b.state.get(msg.From.ID)
	if session == nil || st.Step == inputNone || st.Step == inputReady {
		return
	}
	b.handleDialogInput(msg.Chat.ID, session.Wizard, st, strings.TrimSpace(msg.Text))
}

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64, args string) {
	l := zerolog.Ctx(ctx)
	slug, query, err := parseStartPayload(args)
	if err != nil {
		l.Warn().Err(err).Msg("bad start payload")
		query = nil
	}

	tenants := b.tenants.Load()
	if tenants == nil {
		b.reply(chatID, "Booking is not configured yet.")
		return
	}
	if slug == "" {
		slug = tenants.Default
	}
	tenant, ok := tenants.Get(slug)
	if !ok {
		b.reply(chatID, "Unknown business. Please use the booking link provided by the business.")
		return
	}

	b.state.reset(userID)
	st := b.state.get(userID)
	viewerTZ := st.Timezone
	if viewerTZ == "" {
		viewerTZ = tenant.Timezone
	}

	w := booking.NewWizard(b.backend, booking.Options{
		UserID:          userID,
		ViewerTZ:        viewerTZ,
		DefaultLocation: b.opts.DefaultLocation,
		SlotCacheTTL:    b.opts.SlotCacheTTL,
		Recorder:        b.recorder,
		Logger:          l,
	})
	b.sessions.Start(userID, tenant.Slug, w)

	if err := w.Mount(ctx, tenant.Slug, query); err != nil && !w.Snapshot().Unavailable {
		l.Error().Err(err).Str("business", tenant.Slug).Msg("catalog load failed")
		b.reply(chatID, "Could not load the booking page. Please try again later.")
		return
	}
	st.MessageID = b.render(chatID, 0, w, st)
}

func (b *Bot) handleTimezone(ctx context.Context, chatID, userID int64, name string) {
	name = strings.TrimSpace(name)
	if _, err := time.LoadLocation(name); err != nil || name == "" {
		b.reply(chatID, "Unknown timezone. Example: /tz Europe/Paris")
		return
	}
	st := b.state.get(userID)
	st.Timezone = name

	session := b.sessions.Get(userID)
	if session == nil {
		b.reply(chatID, "Timezone set to "+name+".")
		return
	}
	if err := session.Wizard.SetViewerTimezone(name); err != nil {
		if errors.Is(err, booking.ErrSubmissionInProgress) {
			b.reply(chatID, "Your reservation is being submitted. Try again in a moment.")
			return
		}
		b.reply(chatID, "Unknown timezone. Example: /tz Europe/Paris")
		return
	}
	st.Step = inputNone
	if _, err := session.Wizard.LoadSlots(ctx); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("slot reload after timezone change")
	}
	st.MessageID = b.render(chatID, 0, session.Wizard, st)
}

func (b *Bot) handleDialogInput(chatID int64, w *booking.Wizard, st *userState, text string) {
	switch st.Step {
	case inputName:
		if text == "" {
			b.reply(chatID, "Please enter your name.")
			return
		}
		st.Contact.Name = text
		st.Step = inputEmail
	case inputEmail:
		contact := st.Contact
		contact.Email = text
		if err := contact.Validate(); err != nil {
			b.reply(chatID, err.Error())
			return
		}
		st.Contact.Email = text
		st.Step = inputPhone
	case inputPhone:
		st.Contact.Phone = text
		st.Step = inputReady
	}
	st.MessageID = b.render(chatID, 0, w, st)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.tg.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Debug().Err(err).Msg("answer callback failed")
	}
}

// render shows the wizard state, editing messageID when set, and returns the
// id of the message holding the view.
func (b *Bot) render(chatID int64, messageID int, w *booking.Wizard, st *userState) int {
	text, markup := renderState(w.Snapshot(), st.Step, st.Contact)

	if messageID != 0 {
		var edit tgbotapi.EditMessageTextConfig
		if markup != nil {
			edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, *markup)
		} else {
			edit = tgbotapi.NewEditMessageText(chatID, messageID, text)
		}
		if _, err := b.tg.Send(edit); err == nil {
			return messageID
		} else if strings.Contains(err.Error(), "message is not modified") {
			return messageID
		}
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := b.tg.Send(msg)
	if err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
		return 0
	}
	return sent.MessageID
}
