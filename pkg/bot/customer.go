package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"kitchenbot/pkg/api"
	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/service"
)

const (
	txtMenu         = "🍽 Menu"
	txtCart         = "🛒 Cart"
	txtMyOrders     = "📋 My orders"
	txtAddress      = "📍 Address"
	txtSavedAddress = "🏠 Use saved address"
	txtWebApp       = "🌐 Open app"

	recentOrders = 5
)

var (
	btnAdd      = tele.Btn{Unique: "add"}
	btnCheckout = tele.Btn{Unique: "checkout"}
	btnClear    = tele.Btn{Unique: "clear"}
	btnPay      = tele.Btn{Unique: "pay"}
	btnTrack    = tele.Btn{Unique: "track"}
	btnCancel   = tele.Btn{Unique: "cancel"}
)

func (b *Bot) registerCustomerHandlers() {
	b.Bot.Handle(tele.OnContact, b.handleContact)
	b.Bot.Handle(tele.OnLocation, b.handleCustomerLocation)
	b.Bot.Handle(tele.OnText, b.handleCustomerText)

	b.Bot.Handle(&tele.Btn{Text: txtMenu}, b.showFoodMenu)
	b.Bot.Handle(&tele.Btn{Text: txtCart}, b.showCart)
	b.Bot.Handle(&tele.Btn{Text: txtMyOrders}, b.showMyOrders)
	b.Bot.Handle(&tele.Btn{Text: txtAddress}, b.showAddress)

	b.Bot.Handle(&btnAdd, b.handleAdd)
	b.Bot.Handle(&btnCheckout, b.handleCheckout)
	b.Bot.Handle(&btnClear, b.handleClear)
	b.Bot.Handle(&btnPay, b.handlePay)
	b.Bot.Handle(&btnTrack, b.handleTrack)
	b.Bot.Handle(&btnCancel, b.handleCustomerCancel)
}

func (b *Bot) pricing() service.Pricing {
	return service.Pricing{
		DeliveryFee:           b.Cfg.DeliveryFee,
		FreeDeliveryThreshold: b.Cfg.FreeDeliveryThreshold,
	}
}

func (b *Bot) showCustomerMenu(c tele.Context) error {
	menu := &tele.ReplyMarkup{ResizeKeyboard: true}
	rows := []tele.Row{
		menu.Row(menu.Text(txtMenu), menu.Text(txtCart)),
		menu.Row(menu.Text(txtMyOrders), menu.Text(txtAddress)),
	}
	if link := b.webAppLink(c); link != "" {
		rows = append(rows, menu.Row(menu.WebApp(txtWebApp, &tele.WebApp{URL: link})))
	}
	menu.Reply(rows...)
	return c.Send(msg("menu_customer"), menu)
}

// webAppLink signs a token for the web client so it can call the HTTP API
// as this user.
func (b *Bot) webAppLink(c tele.Context) string {
	if b.Cfg.WebAppURL == "" || b.Cfg.JWTSecret == "" {
		return ""
	}
	user, err := b.currentUser(c)
	if err != nil {
		return ""
	}
	token, err := api.IssueToken(b.Cfg.JWTSecret, user, b.Cfg.TokenTTL)
	if err != nil {
		b.Log.Error("failed to issue web app token", logger.Error(err))
		return ""
	}
	u, err := url.Parse(b.Cfg.WebAppURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Bot) handleContact(c tele.Context) error {
	contact := c.Message().Contact
	if contact == nil || contact.UserID != c.Sender().ID {
		return c.Send(msg("own_contact"))
	}
	if err := b.Svc.User().SetPhone(context.Background(), c.Sender().ID, contact.PhoneNumber); err != nil {
		b.Log.Error("failed to save phone", logger.Int64("telegram_id", c.Sender().ID), logger.Error(err))
		return c.Send(msg("try_again"))
	}
	b.setState(c.Sender().ID, StateIdle)
	if err := c.Send(msg("registered")); err != nil {
		return err
	}
	return b.showCustomerMenu(c)
}

func (b *Bot) showFoodMenu(c tele.Context) error {
	items, err := b.Svc.Menu().List(context.Background())
	if err != nil {
		b.Log.Error("failed to list menu", logger.Error(err))
		return c.Send(msg("try_again"))
	}

	menu := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, m := range items {
		if !m.IsAvailable {
			continue
		}
		label := fmt.Sprintf("➕ %s · %s", m.Name, formatMoney(m.Price))
		rows = append(rows, menu.Row(menu.Data(label, btnAdd.Unique, strconv.FormatInt(m.ID, 10))))
	}
	if len(rows) == 0 {
		return c.Send(msg("menu_empty"))
	}
	menu.Inline(rows...)
	return c.Send("🍽 Today's menu. Tap a dish to add it to your cart:", menu)
}

func (b *Bot) handleAdd(c tele.Context) error {
	id, err := strconv.ParseInt(c.Data(), 10, 64)
	if err != nil {
		return c.Respond()
	}

	items, err := b.Svc.Menu().List(context.Background())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: msg("try_again")})
	}
	var item *models.MenuItem
	for _, m := range items {
		if m.ID == id && m.IsAvailable {
			item = m
		}
	}
	if item == nil {
		return c.Respond(&tele.CallbackResponse{Text: msg("menu_empty"), ShowAlert: true})
	}

	s := b.session(c.Sender().ID)
	b.mu.Lock()
	s.Cart = addToCart(s.Cart, id)
	b.mu.Unlock()

	return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf(msg("cart_added"), item.Name)})
}

func (b *Bot) cart(teleID int64) []models.CartLine {
	s := b.session(teleID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.CartLine(nil), s.Cart...)
}

func (b *Bot) showCart(c tele.Context) error {
	cart := b.cart(c.Sender().ID)
	if len(cart) == 0 {
		return c.Send(msg("cart_empty"))
	}

	items, err := b.Svc.Menu().List(context.Background())
	if err != nil {
		return c.Send(msg("try_again"))
	}

	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("✅ Checkout", btnCheckout.Unique),
		menu.Data("🗑 Clear", btnClear.Unique),
	))
	return c.Send(formatCart(cart, items, b.pricing()), menu)
}

func (b *Bot) handleClear(c tele.Context) error {
	s := b.session(c.Sender().ID)
	b.mu.Lock()
	s.Cart = nil
	s.State = StateIdle
	b.mu.Unlock()

	_ = c.Respond()
	return c.Edit(msg("cart_cleared"))
}

func (b *Bot) handleCheckout(c tele.Context) error {
	_ = c.Respond()
	if len(b.cart(c.Sender().ID)) == 0 {
		return c.Send(msg("cart_empty"))
	}

	user, err := b.currentUser(c)
	if err != nil {
		return c.Send(msg("try_again"))
	}

	s := b.session(c.Sender().ID)
	b.mu.Lock()
	s.State = StateAwaitingAddress
	s.Delivery = models.DeliveryInfo{}
	b.mu.Unlock()

	menu := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	rows := []tele.Row{menu.Row(menu.Location(msg("share_location")))}
	if user.Lat != nil && user.Lng != nil {
		rows = append(rows, menu.Row(menu.Text(txtSavedAddress)))
	}
	menu.Reply(rows...)
	return c.Send(msg("ask_location"), menu)
}

func (b *Bot) handleCustomerLocation(c tele.Context) error {
	loc := c.Message().Location
	if loc == nil {
		return nil
	}
	at := models.Coordinates{Lat: float64(loc.Lat), Lng: float64(loc.Lng)}
	address := fmt.Sprintf("%.5f, %.5f", at.Lat, at.Lng)

	if err := b.Svc.User().SetAddress(context.Background(), c.Sender().ID, address, at); err != nil {
		b.Log.Error("failed to save address", logger.Int64("telegram_id", c.Sender().ID), logger.Error(err))
		return c.Send(msg("try_again"))
	}

	if b.state(c.Sender().ID) != StateAwaitingAddress {
		if err := c.Send(msg("address_saved")); err != nil {
			return err
		}
		return b.showCustomerMenu(c)
	}
	return b.askPayment(c, address, at)
}

func (b *Bot) askPayment(c tele.Context, address string, at models.Coordinates) error {
	s := b.session(c.Sender().ID)
	b.mu.Lock()
	s.State = StateAwaitingPayment
	s.Delivery.Address = address
	s.Delivery.Lat, s.Delivery.Lng = models.Float(at.Lat), models.Float(at.Lng)
	b.mu.Unlock()

	menu := &tele.ReplyMarkup{}
	menu.Inline(menu.Row(
		menu.Data("💵 Cash", btnPay.Unique, string(models.PaymentCash)),
		menu.Data("💳 Card", btnPay.Unique, string(models.PaymentCard)),
	))
	return c.Send(msg("ask_payment"), menu)
}

// handleCustomerText covers free text: the saved address shortcut during
// checkout and a courier note while the payment choice is open.
func (b *Bot) handleCustomerText(c tele.Context) error {
	switch b.state(c.Sender().ID) {
	case StateAwaitingAddress:
		if c.Text() != txtSavedAddress {
			return c.Send(msg("ask_location"))
		}
		user, err := b.currentUser(c)
		if err != nil || user.Lat == nil || user.Lng == nil {
			return c.Send(msg("ask_location"))
		}
		address := ""
		if user.Address != nil {
			address = *user.Address
		}
		return b.askPayment(c, address, models.Coordinates{Lat: *user.Lat, Lng: *user.Lng})
	case StateAwaitingPayment:
		s := b.session(c.Sender().ID)
		b.mu.Lock()
		s.Delivery.Instructions = c.Text()
		b.mu.Unlock()
		return c.Send(msg("note_saved"))
	case StateAwaitingContact:
		return c.Send(msg("contact_msg"))
	}
	return b.showCustomerMenu(c)
}

func (b *Bot) handlePay(c tele.Context) error {
	_ = c.Respond()
	if b.state(c.Sender().ID) != StateAwaitingPayment {
		return nil
	}

	user, err := b.currentUser(c)
	if err != nil {
		return c.Send(msg("try_again"))
	}

	s := b.session(c.Sender().ID)
	b.mu.Lock()
	req := models.CreateOrderRequest{
		CustomerID:    user.ID,
		CustomerName:  user.FullName,
		Items:         append([]models.CartLine(nil), s.Cart...),
		Delivery:      s.Delivery,
		PaymentMethod: models.PaymentMethod(c.Data()),
	}
	b.mu.Unlock()

	order, err := b.Svc.Order().CreateOrder(context.Background(), req)
	if err != nil {
		var verr *errs.ValidationError
		if errors.As(err, &verr) {
			return c.Edit(fmt.Sprintf(msg("order_failed"), verr.Reason))
		}
		b.Log.Error("failed to create order from bot", logger.Int64("customer_id", user.ID), logger.Error(err))
		return c.Edit(msg("try_again"))
	}

	b.mu.Lock()
	s.Cart = nil
	s.Delivery = models.DeliveryInfo{}
	s.State = StateIdle
	b.mu.Unlock()

	if err := c.Edit(fmt.Sprintf(msg("order_created"), order.OrderNumber, formatMoney(order.Total))); err != nil {
		return err
	}
	return b.showCustomerMenu(c)
}

func (b *Bot) showMyOrders(c tele.Context) error {
	user, err := b.currentUser(c)
	if err != nil {
		return c.Send(msg("try_again"))
	}

	orders, err := b.Svc.Order().ListOrders(context.Background(), models.OrderFilter{CustomerID: &user.ID})
	if err != nil {
		return c.Send(msg("try_again"))
	}
	if len(orders) == 0 {
		return c.Send(msg("no_orders"))
	}
	if len(orders) > recentOrders {
		orders = orders[:recentOrders]
	}

	for _, o := range orders {
		if err := c.Send(formatOrder(o), customerOrderKeyboard(o)); err != nil {
			return err
		}
	}
	return nil
}

func customerOrderKeyboard(o *models.Order) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	var btns []tele.Btn
	if o.Status.Tracked() {
		btns = append(btns, menu.Data("📍 Track", btnTrack.Unique, o.ID))
	}
	if o.Status.CanTransitionTo(models.StatusCancelled) {
		btns = append(btns, menu.Data("❌ Cancel", btnCancel.Unique, o.ID))
	}
	if len(btns) > 0 {
		menu.Inline(menu.Row(btns...))
	}
	return menu
}

// ownOrder loads an order and checks it belongs to the sender.
func (b *Bot) ownOrder(c tele.Context, id string) (*models.Order, error) {
	user, err := b.currentUser(c)
	if err != nil {
		return nil, err
	}
	order, err := b.Svc.Order().GetOrder(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != user.ID {
		return nil, errs.ErrNotFound
	}
	return order, nil
}

func (b *Bot) handleTrack(c tele.Context) error {
	order, err := b.ownOrder(c, c.Data())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: msg("try_again")})
	}
	_ = c.Respond()

	if !order.Status.Tracked() {
		return c.Send(msg("tracking_off"))
	}
	t, ok := b.Board.Tracking(order.ID)
	if !ok || !t.HasMarker {
		return c.Send(msg("tracking_off"))
	}

	text := fmt.Sprintf("🚚 Order #%s is on the way.", order.OrderNumber)
	if t.Route != nil {
		text += fmt.Sprintf("\n⏱ ETA: %s\n📏 Distance: %s", formatETA(t.ETA), formatDistance(t.Distance))
		if t.Stale {
			text += "\n(route may be outdated)"
		}
	}
	if err := c.Send(text); err != nil {
		return err
	}
	return c.Send(&tele.Location{Lat: float32(t.Marker.Lat), Lng: float32(t.Marker.Lng)})
}

func (b *Bot) handleCustomerCancel(c tele.Context) error {
	order, err := b.ownOrder(c, c.Data())
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: msg("try_again")})
	}

	if err := b.Svc.Order().Cancel(context.Background(), order.ID); err != nil {
		if errs.IsInvalidTransition(err) {
			return c.Respond(&tele.CallbackResponse{Text: msg("cancel_late"), ShowAlert: true})
		}
		b.Log.Error("failed to cancel order", logger.String("order_id", order.ID), logger.Error(err))
		return c.Respond(&tele.CallbackResponse{Text: msg("try_again")})
	}

	_ = c.Respond()
	order.Status = models.StatusCancelled
	return c.Edit(formatOrder(order), customerOrderKeyboard(order))
}

func (b *Bot) showAddress(c tele.Context) error {
	user, err := b.currentUser(c)
	if err != nil {
		return c.Send(msg("try_again"))
	}

	text := "📍 No saved delivery address yet."
	if user.Address != nil {
		text = "📍 Saved address: " + *user.Address
	}
	menu := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	menu.Reply(menu.Row(menu.Location(msg("share_location"))))
	return c.Send(text+"\nSend a location to change it.", menu)
}
