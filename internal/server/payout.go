package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	payoutdomain "github.com/smallbiznis/storefront-ledger/internal/payout/domain"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

type listPayoutsQuery struct {
	pagination.Pagination
	ID          string `form:"id"`
	UserID      string `form:"user_id"`
	Status      string `form:"status"`
	CreatedFrom string `form:"created_from"`
	CreatedTo   string `form:"created_to"`
}

func (s *Server) CreatePayout(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req payoutdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		AbortWithError(c, payoutdomain.ErrInvalidAmount)
		return
	}

	resp, err := s.payoutSvc.Create(c.Request.Context(), userID, amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListMyPayouts(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listPayoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	filter, err := query.filter()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filter.UserID = &userID

	resp, err := s.payoutSvc.List(c.Request.Context(), filter, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayouts(c *gin.Context) {
	var query listPayoutsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	filter, err := query.filter()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	userID, err := parseOptionalUUID(query.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	filter.UserID = userID

	resp, err := s.payoutSvc.List(c.Request.Context(), filter, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayout(c *gin.Context) {
	id, err := pathUUID(c.Param("id"), "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.payoutSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApprovePayout(c *gin.Context) {
	s.transitionPayout(c, s.payoutSvc.Approve)
}

func (s *Server) RejectPayout(c *gin.Context) {
	s.transitionPayout(c, s.payoutSvc.Reject)
}

func (s *Server) transitionPayout(c *gin.Context, fn func(context.Context, uuid.UUID) (*payoutdomain.Request, error)) {
	id, err := pathUUID(c.Param("id"), "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// filter parses everything except user_id, whose source depends on the route.
func (q listPayoutsQuery) filter() (payoutdomain.ListFilter, error) {
	var filter payoutdomain.ListFilter

	id, err := parseOptionalUUID(q.ID)
	if err != nil {
		return filter, newValidationError("id", "invalid_id", "invalid id")
	}
	filter.ID = id

	if status := strings.ToUpper(strings.TrimSpace(q.Status)); status != "" {
		parsed, ok := payoutdomain.ParseStatus(status)
		if !ok {
			return filter, newValidationError("status", "invalid_status", "invalid status")
		}
		filter.Status = &parsed
	}

	createdFrom, err := parseOptionalTime(q.CreatedFrom, false)
	if err != nil {
		return filter, newValidationError("created_from", "invalid_created_from", "invalid created_from")
	}
	createdTo, err := parseOptionalTime(q.CreatedTo, true)
	if err != nil {
		return filter, newValidationError("created_to", "invalid_created_to", "invalid created_to")
	}
	filter.CreatedFrom = createdFrom
	filter.CreatedTo = createdTo
	return filter, nil
}
