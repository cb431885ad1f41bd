package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/tracker"
)

type createOrderRequest struct {
	CustomerName  string               `json:"customer_name"`
	Items         []models.CartLine    `json:"items" binding:"required"`
	Delivery      models.DeliveryInfo  `json:"delivery"`
	PaymentMethod models.PaymentMethod `json:"payment_method" binding:"required"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

type positionRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

type settingsRequest struct {
	AcceptingOrders *bool `json:"accepting_orders" binding:"required"`
}

type trackingResponse struct {
	OrderID  string             `json:"order_id"`
	Status   models.OrderStatus `json:"status"`
	Active   bool               `json:"active"`
	Tracking *tracker.Tracking  `json:"tracking,omitempty"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.svc.Settings().Get(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) GetMenu(c *gin.Context) {
	items, err := h.svc.Menu().List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	p := currentPrincipal(c)
	name := req.CustomerName
	if name == "" {
		if u, err := h.svc.User().GetByID(c.Request.Context(), p.UserID); err == nil {
			name = u.FullName
		}
	}

	order, err := h.svc.Order().CreateOrder(c.Request.Context(), models.CreateOrderRequest{
		CustomerID:    p.UserID,
		CustomerName:  name,
		Items:         req.Items,
		Delivery:      req.Delivery,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: req.PaymentStatus,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	p := currentPrincipal(c)

	var filter models.OrderFilter
	if !p.operator() {
		filter.CustomerID = &p.UserID
	}

	orders, err := h.svc.Order().ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.visibleOrder(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetTracking never fails because tracking is missing; it reports it
// inactive instead.
func (h *Handler) GetTracking(c *gin.Context) {
	order, err := h.visibleOrder(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := trackingResponse{OrderID: order.ID, Status: order.Status}
	if tr, ok := h.board.Tracking(order.ID); ok {
		resp.Active = true
		resp.Tracking = &tr
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if !req.Status.Valid() {
		h.respondError(c, errs.Validation("unknown status %q", req.Status))
		return
	}

	id := c.Param("id")
	if err := h.svc.Order().UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, id)
}

func (h *Handler) Advance(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Order().Advance(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, id)
}

func (h *Handler) MarkPaid(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Order().MarkPaid(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOrder(c, id)
}

// PushPosition feeds one device sample into the order's tracking session,
// opening it on first use.
func (h *Handler) PushPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	id := c.Param("id")
	s, ok := h.tracker.Session(id)
	if !ok {
		var err error
		if s, err = h.tracker.Start(c.Request.Context(), id); err != nil {
			h.respondError(c, err)
			return
		}
	}

	if err := s.Push(models.Coordinates{Lat: *req.Lat, Lng: *req.Lng}); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) StopTracking(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.tracker.Session(id); ok {
		h.tracker.Stop(id)
	} else if err := h.svc.Order().ClearDriverPosition(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := h.svc.Settings().SetAcceptingOrders(c.Request.Context(), *req.AcceptingOrders); err != nil {
		h.respondError(c, err)
		return
	}
	h.GetSettings(c)
}

// visibleOrder loads the :id order; customers only see their own and get
// not found for anyone else's.
func (h *Handler) visibleOrder(c *gin.Context) (*models.Order, error) {
	order, err := h.svc.Order().GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	p := currentPrincipal(c)
	if !p.operator() && order.CustomerID != p.UserID {
		return nil, errs.ErrNotFound
	}
	return order, nil
}

func (h *Handler) respondOrder(c *gin.Context, id string) {
	order, err := h.svc.Order().GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func fieldsOf(c *gin.Context, err error) []logger.Field {
	fields := []logger.Field{
		logger.String("method", c.Request.Method),
		logger.String("path", c.FullPath()),
		logger.Error(err),
	}
	var pe *errs.PersistenceError
	if errors.As(err, &pe) {
		fields = append(fields, logger.String("op", pe.Op))
	}
	return fields
}
