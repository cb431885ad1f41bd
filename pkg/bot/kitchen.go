package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
)

const (
	txtActive  = "📦 Active orders"
	txtToggle  = "🔁 Open / close kitchen"
	txtNavStop = "⏹ Stop navigation"
)

var (
	btnAdvance       = tele.Btn{Unique: "adv"}
	btnKitchenCancel = tele.Btn{Unique: "kcancel"}
	btnPaid          = tele.Btn{Unique: "paid"}
	btnNavigate      = tele.Btn{Unique: "nav"}
)

func (b *Bot) registerKitchenHandlers() {
	b.Bot.Handle(&tele.Btn{Text: txtActive}, b.showActiveOrders, b.operatorOnly)
	b.Bot.Handle(&tele.Btn{Text: txtToggle}, b.toggleKitchen, b.operatorOnly)
	b.Bot.Handle(&tele.Btn{Text: txtNavStop}, b.stopNavigation, b.operatorOnly)

	b.Bot.Handle(&btnAdvance, b.handleAdvance, b.operatorOnly)
	b.Bot.Handle(&btnKitchenCancel, b.handleKitchenCancel, b.operatorOnly)
	b.Bot.Handle(&btnPaid, b.handlePaid, b.operatorOnly)
	b.Bot.Handle(&btnNavigate, b.handleNavigate, b.operatorOnly)

	// Live location arrives first as a location message and then as edits.
	b.Bot.Handle(tele.OnLocation, b.handleDriverLocation, b.operatorOnly)
	b.Bot.Handle(tele.OnEdited, b.handleDriverLocation, b.operatorOnly)
}

func (b *Bot) operatorOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		user, err := b.Svc.User().Get(context.Background(), c.Sender().ID)
		if err != nil || user.Role != models.RoleOperator {
			if c.Callback() != nil {
				return c.Respond(&tele.CallbackResponse{Text: msg("no_entry"), ShowAlert: true})
			}
			if c.Message() != nil && c.Message().Location != nil {
				return nil
			}
			return c.Send(msg("no_entry"))
		}
		return next(c)
	}
}

func (b *Bot) showKitchenMenu(c tele.Context) error {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menu.Text(txtActive)),
		menu.Row(menu.Text(txtToggle), menu.Text(txtNavStop)),
	)

	text := msg("menu_kitchen")
	if settings, err := b.Svc.Settings().Get(context.Background()); err == nil {
		text += "\n" + kitchenState(settings.AcceptingOrders)
	}
	return c.Send(text, menu)
}

func kitchenState(open bool) string {
	if open {
		return msg("kitchen_open")
	}
	return msg("kitchen_closed")
}

func kitchenOrderKeyboard(o *models.Order) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	var rows []tele.Row

	var first []tele.Btn
	if next, ok := o.Status.Next(); ok {
		first = append(first, menu.Data("➡️ "+statusLabel(next), btnAdvance.Unique, o.ID))
	}
	if o.Status.CanTransitionTo(models.StatusCancelled) {
		first = append(first, menu.Data("❌ Cancel", btnKitchenCancel.Unique, o.ID))
	}
	if len(first) > 0 {
		rows = append(rows, menu.Row(first...))
	}

	var second []tele.Btn
	if o.PaymentStatus != models.PaymentPaid && !o.Status.IsTerminal() {
		second = append(second, menu.Data("💵 Mark paid", btnPaid.Unique, o.ID))
	}
	if o.Status.Tracked() {
		second = append(second, menu.Data("🧭 Navigate", btnNavigate.Unique, o.ID))
	}
	if len(second) > 0 {
		rows = append(rows, menu.Row(second...))
	}

	menu.Inline(rows...)
	return menu
}

func (b *Bot) showActiveOrders(c tele.Context) error {
	orders, err := b.Svc.Order().ListOrders(context.Background(), models.OrderFilter{})
	if err != nil {
		b.Log.Error("failed to list orders for kitchen", logger.Error(err))
		return c.Send(msg("try_again"))
	}

	active := 0
	// Oldest first, so the order cooked next is on top.
	for i := len(orders) - 1; i >= 0; i-- {
		o := orders[i]
		if o.Status.IsTerminal() {
			continue
		}
		active++
		if err := c.Send(formatOrder(o), kitchenOrderKeyboard(o)); err != nil {
			return err
		}
	}
	if active == 0 {
		return c.Send(msg("no_active"))
	}
	return nil
}

func (b *Bot) toggleKitchen(c tele.Context) error {
	ctx := context.Background()
	settings, err := b.Svc.Settings().Get(ctx)
	if err != nil {
		return c.Send(msg("try_again"))
	}

	open := !settings.AcceptingOrders
	if err := b.Svc.Settings().SetAcceptingOrders(ctx, open); err != nil {
		b.Log.Error("failed to toggle kitchen", logger.Error(err))
		return c.Send(msg("try_again"))
	}
	return c.Send(kitchenState(open))
}

// refresh re-renders the order message the callback came from.
func (b *Bot) refresh(c tele.Context, id string) error {
	order, err := b.Svc.Order().GetOrder(context.Background(), id)
	if err != nil {
		return err
	}
	return c.Edit(formatOrder(order), kitchenOrderKeyboard(order))
}

func (b *Bot) respondError(c tele.Context, err error) error {
	if errs.IsInvalidTransition(err) {
		_ = c.Respond(&tele.CallbackResponse{Text: "⚠️ " + err.Error(), ShowAlert: true})
		return b.refresh(c, c.Data())
	}
	b.Log.Error("kitchen action failed", logger.String("order_id", c.Data()), logger.Error(err))
	return c.Respond(&tele.CallbackResponse{Text: msg("try_again")})
}

func (b *Bot) handleAdvance(c tele.Context) error {
	next, err := b.Svc.Order().Advance(context.Background(), c.Data())
	if err != nil {
		return b.respondError(c, err)
	}
	_ = c.Respond(&tele.CallbackResponse{Text: statusLabel(next)})
	return b.refresh(c, c.Data())
}

func (b *Bot) handleKitchenCancel(c tele.Context) error {
	if err := b.Svc.Order().Cancel(context.Background(), c.Data()); err != nil {
		return b.respondError(c, err)
	}
	_ = c.Respond()
	return b.refresh(c, c.Data())
}

func (b *Bot) handlePaid(c tele.Context) error {
	if err := b.Svc.Order().MarkPaid(context.Background(), c.Data()); err != nil {
		return b.respondError(c, err)
	}
	_ = c.Respond()
	return b.refresh(c, c.Data())
}

// handleNavigate ties the operator's live location to one delivering order.
func (b *Bot) handleNavigate(c tele.Context) error {
	id := c.Data()
	if _, err := b.Tracker.Start(context.Background(), id); err != nil {
		if errs.IsTrackingUnavailable(err) {
			return c.Respond(&tele.CallbackResponse{Text: msg("tracking_off"), ShowAlert: true})
		}
		return c.Respond(&tele.CallbackResponse{Text: msg("try_again")})
	}
	_ = c.Respond()

	order, err := b.Svc.Order().GetOrder(context.Background(), id)
	if err != nil {
		return err
	}

	s := b.session(c.Sender().ID)
	b.mu.Lock()
	previous := s.NavOrderID
	s.NavOrderID = id
	s.State = StateNavigating
	b.mu.Unlock()

	if previous != "" && previous != id {
		b.Tracker.Stop(previous)
	}

	if err := c.Send(fmt.Sprintf(msg("nav_start"), order.OrderNumber)); err != nil {
		return err
	}
	if dest, ok := order.DeliveryPosition(); ok {
		return c.Send(&tele.Location{Lat: float32(dest.Lat), Lng: float32(dest.Lng)})
	}
	return nil
}

func (b *Bot) navOrder(teleID int64) string {
	s := b.session(teleID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return s.NavOrderID
}

func (b *Bot) endNavigation(teleID int64) {
	s := b.session(teleID)
	b.mu.Lock()
	s.NavOrderID = ""
	s.State = StateIdle
	b.mu.Unlock()
}

// handleDriverLocation feeds live location updates into the tracking
// session. A session that ended because the order left delivering ends
// the operator's navigation too.
func (b *Bot) handleDriverLocation(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Location == nil {
		return nil
	}
	id := b.navOrder(c.Sender().ID)
	if id == "" {
		if c.Update().EditedMessage == nil {
			return c.Send(msg("nav_none"))
		}
		return nil
	}

	session, ok := b.Tracker.Session(id)
	if !ok {
		b.endNavigation(c.Sender().ID)
		return c.Send(msg("nav_stopped"))
	}

	at := models.Coordinates{Lat: float64(m.Location.Lat), Lng: float64(m.Location.Lng)}
	if err := session.Push(at); err != nil {
		b.Log.Warning("rejected driver location", logger.String("order_id", id), logger.Error(err))
	}
	return nil
}

func (b *Bot) stopNavigation(c tele.Context) error {
	id := b.navOrder(c.Sender().ID)
	if id == "" {
		return c.Send(msg("nav_none"))
	}
	b.Tracker.Stop(id)
	b.endNavigation(c.Sender().ID)
	return c.Send(msg("nav_stopped"))
}
