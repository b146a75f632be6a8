package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetDiscountProgress(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.discountSvc.Progress(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDiscountMultiplier(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	percent, err := s.discountSvc.CurrentPercent(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	multiplier, err := s.discountSvc.Multiplier(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"percent":    percent,
		"multiplier": multiplier,
	}})
}
