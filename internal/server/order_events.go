package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storefront-ledger/internal/orderevents"
)

const maxOrderEventBytes = 64 << 10

// IngestOrderEvent is the synchronous hook the payment subsystem calls when an
// order changes payment state.
func (s *Server) IngestOrderEvent(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxOrderEventBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	evt, err := orderevents.DecodeEvent(raw)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outcome, err := s.orderEvents.Handle(c.Request.Context(), evt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{
		"order_id": evt.OrderID,
		"type":     evt.Type,
		"outcome":  outcome,
	}})
}
