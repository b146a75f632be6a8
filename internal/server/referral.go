package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	referraldomain "github.com/smallbiznis/storefront-ledger/internal/referral/domain"
	"github.com/smallbiznis/storefront-ledger/pkg/db/pagination"
)

type attachReferralRequest struct {
	ReferralCode string `json:"referral_code"`
}

func (s *Server) GetMyReferral(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.referralSvc.Summary(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReferralNode(c *gin.Context) {
	node, err := s.visibleNode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.referralSvc.SummaryByNode(c.Request.Context(), node.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMyChildren(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	node, err := s.myNode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.referralSvc.Children(c.Request.Context(), node.ID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListNodeChildren(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	node, err := s.visibleNode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.referralSvc.Children(c.Request.Context(), node.ID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SearchMyChildren(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name string `form:"name"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	node, err := s.myNode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.referralSvc.SearchChildren(c.Request.Context(), node.ID, strings.TrimSpace(query.Name), query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTopChildren(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	node, err := s.myNode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	n := 0
	if limit != nil {
		n = *limit
	}
	resp, err := s.referralSvc.TopChildrenByCommission(c.Request.Context(), node.ID, n)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMyBonuses(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	node, err := s.myNode(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bonusSvc.ListForReferrer(c.Request.Context(), node.ID, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SignConditions(c *gin.Context) {
	s.sign(c, s.referralSvc.SignConditions)
}

func (s *Server) SignUserTerms(c *gin.Context) {
	s.sign(c, s.referralSvc.SignUserTerms)
}

func (s *Server) sign(c *gin.Context, fn func(context.Context, uuid.UUID) (*referraldomain.Node, error)) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := fn(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AttachReferral(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req attachReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	code := strings.TrimSpace(req.ReferralCode)
	if code == "" {
		AbortWithError(c, newValidationError("referral_code", "required", "referral_code is required"))
		return
	}

	ctx := c.Request.Context()
	referrerID, err := s.referralSvc.ResolveReferralCode(ctx, code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.referralSvc.AttachReferral(ctx, referrerID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) myNode(c *gin.Context) (*referraldomain.Node, error) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.referralSvc.GetOrCreate(c.Request.Context(), userID, nil)
}

// visibleNode resolves the :id node, which must be the caller's own node or
// one of its direct referrals.
func (s *Server) visibleNode(c *gin.Context) (*referraldomain.Node, error) {
	nodeID, err := pathUUID(c.Param("id"), "id")
	if err != nil {
		return nil, err
	}
	userID, ok := userIDFromContext(c)
	if !ok {
		return nil, ErrUnauthorized
	}

	ctx := c.Request.Context()
	mine, err := s.referralSvc.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, referraldomain.ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	node, err := s.referralSvc.GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.ID == mine.ID || (node.ReferrerNodeID != nil && *node.ReferrerNodeID == mine.ID) {
		return node, nil
	}
	return nil, ErrForbidden
}
