package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
)

// Stream pushes order changes as server-sent events. Customers receive
// only their own orders. Clients that miss events recover with a plain
// GET /api/orders.
func (h *Handler) Stream(c *gin.Context) {
	p := currentPrincipal(c)
	events, cancel := h.hub.Subscribe(0)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("ready", gin.H{"at": time.Now()})
	c.Writer.Flush()

	ping := time.NewTicker(h.heartbeat)
	defer ping.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !visibleTo(p, ev) {
				continue
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
			h.log.Debug("order event streamed", logger.Int64("user_id", p.UserID), logger.String("type", string(ev.Type)))
		}
	}
}

func visibleTo(p principal, ev models.ChangeEvent) bool {
	if p.operator() {
		return true
	}
	return ev.Order != nil && ev.Order.CustomerID == p.UserID
}
