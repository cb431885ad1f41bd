package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"

	"kitchenbot/config"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/tracker"
	"kitchenbot/service"
)

type BotType string

const (
	BotTypeCustomer BotType = "customer"
	BotTypeKitchen  BotType = "kitchen"
)

const (
	StateIdle            = "idle"
	StateAwaitingContact = "awaiting_contact"
	StateAwaitingAddress = "awaiting_address"
	StateAwaitingPayment = "awaiting_payment"
	StateNavigating      = "navigating"
)

type UserSession struct {
	DBID     int64
	State    string
	Cart     []models.CartLine
	Delivery models.DeliveryInfo
	// NavOrderID is the order whose live location the operator shares.
	NavOrderID string
}

type Bot struct {
	Type    BotType
	Bot     *tele.Bot
	Log     logger.ILogger
	Cfg     *config.Config
	Svc     service.IServiceManager
	Tracker *tracker.Tracker
	Board   *tracker.Board

	mu       sync.Mutex
	sessions map[int64]*UserSession
}

func New(botType BotType, cfg *config.Config, svc service.IServiceManager, tr *tracker.Tracker, board *tracker.Board, log logger.ILogger) (*Bot, error) {
	token := cfg.TelegramBotToken
	if botType == BotTypeKitchen {
		token = cfg.KitchenBotToken
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error("telegram handler failed", logger.String("bot", string(botType)), logger.Error(err))
		},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		Type:     botType,
		Bot:      b,
		Log:      log.With(logger.String("bot", string(botType))),
		Cfg:      cfg,
		Svc:      svc,
		Tracker:  tr,
		Board:    board,
		sessions: make(map[int64]*UserSession),
	}
	bot.registerHandlers()
	return bot, nil
}

// Run polls Telegram until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.Bot.Stop()
	}()
	b.Log.Info(fmt.Sprintf("🤖 %s bot started", b.Type))
	b.Bot.Start()
	return nil
}

func (b *Bot) registerHandlers() {
	b.Bot.Handle("/start", b.handleStart)

	if b.Type == BotTypeCustomer {
		b.registerCustomerHandlers()
	} else {
		b.registerKitchenHandlers()
	}
}

var messages = map[string]map[string]string{
	"en": {
		"welcome":        "👋 Welcome to the kitchen!",
		"contact_msg":    "Please share your phone number to continue:",
		"share_contact":  "📱 Share phone number",
		"own_contact":    "Please share your own phone number.",
		"registered":     "🎉 You are registered!",
		"no_entry":       "🚫 This bot is for kitchen operators only.",
		"menu_customer":  "👤 Main menu:",
		"menu_kitchen":   "🧑‍🍳 Kitchen panel:",
		"menu_empty":     "📭 The menu is empty right now.",
		"cart_empty":     "🛒 Your cart is empty.",
		"cart_added":     "➕ %s added to cart",
		"cart_cleared":   "🗑 Cart cleared.",
		"ask_location":   "📍 Send the delivery location (Telegram location), then we will ask for payment.",
		"share_location": "📍 Send location",
		"ask_payment":    "💳 How would you like to pay?\nYou can also send a note for the courier.",
		"note_saved":     "📝 Note saved.",
		"cancel_late":    "The kitchen already accepted this order, it can no longer be cancelled.",
		"order_created":  "✅ Order #%s placed!\nTotal: %s\nWe will notify you about every step.",
		"order_failed":   "⚠️ %s",
		"try_again":      "⚠️ Something went wrong, please try again.",
		"no_orders":      "📭 No orders yet.",
		"no_active":      "📭 No active orders.",
		"address_saved":  "📍 Delivery address saved.",
		"kitchen_open":   "🟢 The kitchen is open and accepting orders.",
		"kitchen_closed": "🔴 The kitchen is closed.",
		"nav_start":      "🧭 Navigation for order #%s started.\nShare your live location (📎 → Location → Share My Live Location).",
		"nav_stopped":    "⏹ Navigation stopped.",
		"nav_none":       "🧭 No navigation is running.",
		"tracking_off":   "🚚 Live tracking is not available for this order yet.",
		"notif_new":      "🔔 NEW ORDER #%s\n%s",
		"notif_status":   "📦 Order #%s: %s",
	},
}

func msg(key string) string {
	return messages["en"][key]
}

func (b *Bot) handleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	user, err := b.Svc.User().Register(ctx, sender.ID, sender.Username, fullName(sender))
	if err != nil {
		b.Log.Error("failed to register user", logger.Int64("telegram_id", sender.ID), logger.Error(err))
		return c.Send(msg("try_again"))
	}

	if b.isAdmin(sender) && user.Role != models.RoleOperator {
		if err := b.Svc.User().PromoteOperator(ctx, sender.ID); err != nil {
			b.Log.Error("failed to promote admin", logger.Error(err))
		}
		user.Role = models.RoleOperator
	}

	s := b.session(sender.ID)
	b.mu.Lock()
	s.DBID = user.ID
	s.State = StateIdle
	b.mu.Unlock()

	if b.Type == BotTypeKitchen {
		if user.Role != models.RoleOperator {
			return c.Send(msg("no_entry"))
		}
		return b.showKitchenMenu(c)
	}

	if user.Phone == nil {
		b.setState(sender.ID, StateAwaitingContact)
		menu := &tele.ReplyMarkup{ResizeKeyboard: true}
		menu.Reply(menu.Row(menu.Contact(msg("share_contact"))))
		return c.Send(msg("welcome")+"\n"+msg("contact_msg"), menu)
	}
	return b.showCustomerMenu(c)
}

func (b *Bot) isAdmin(u *tele.User) bool {
	return (b.Cfg.AdminID != 0 && u.ID == b.Cfg.AdminID) ||
		(b.Cfg.AdminUsername != "" && u.Username == b.Cfg.AdminUsername)
}

// session returns the sender's session, creating an idle one.
func (b *Bot) session(teleID int64) *UserSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[teleID]
	if !ok {
		s = &UserSession{State: StateIdle}
		b.sessions[teleID] = s
	}
	return s
}

func (b *Bot) setState(teleID int64, state string) {
	s := b.session(teleID)
	b.mu.Lock()
	s.State = state
	b.mu.Unlock()
}

func (b *Bot) state(teleID int64) string {
	s := b.session(teleID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return s.State
}

// currentUser resolves the sender to a registered user, registering on
// the fly when the bot was restarted and the session is gone.
func (b *Bot) currentUser(c tele.Context) (*models.User, error) {
	sender := c.Sender()
	return b.Svc.User().Register(context.Background(), sender.ID, sender.Username, fullName(sender))
}

func (b *Bot) send(to int64, text string, opts ...interface{}) {
	if to == 0 {
		return
	}
	if _, err := b.Bot.Send(&tele.User{ID: to}, text, opts...); err != nil {
		b.Log.Warning("failed to send telegram message", logger.Int64("telegram_id", to), logger.Error(err))
	}
}

func fullName(u *tele.User) string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
