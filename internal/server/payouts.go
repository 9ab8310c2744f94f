package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	payoutdomain "github.com/smallbiznis/boxoffice/internal/payout/domain"
)

func (s *Server) RegisterBankAccount(c *gin.Context) {
	var req payoutdomain.RegisterBankAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.payoutSvc.RegisterBankAccount(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListBankAccounts(c *gin.Context) {
	resp, err := s.payoutSvc.ListBankAccounts(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RequestPayout(c *gin.Context) {
	var req payoutdomain.RequestPayoutRequest
	if !bindJSON(c, &req) {
		return
	}
	req.EventID = eventFromContext(c).ID

	resp, err := s.payoutSvc.Request(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPayouts(c *gin.Context) {
	resp, err := s.payoutSvc.ListByEvent(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListPendingPayouts returns the requested and processing payouts with their total.
func (s *Server) ListPendingPayouts(c *gin.Context) {
	resp, err := s.payoutSvc.ListPending(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PayoutSummary(c *gin.Context) {
	resp, err := s.payoutSvc.Summary(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayout(c *gin.Context) {
	resp, ok := s.ownedPayout(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// AdvancePayout moves a payout one step; the body carries the bank outcome when
// the payout is already processing.
func (s *Server) AdvancePayout(c *gin.Context) {
	payout, ok := s.ownedPayout(c)
	if !ok {
		return
	}

	var req payoutdomain.AdvanceRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	req.ID = payout.ID

	resp, err := s.payoutSvc.Advance(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ownedPayout(c *gin.Context) (payoutdomain.PayoutRequest, bool) {
	payoutID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return payoutdomain.PayoutRequest{}, false
	}

	ctx := c.Request.Context()
	payout, err := s.payoutSvc.Get(ctx, payoutID)
	if err != nil {
		AbortWithError(c, err)
		return payoutdomain.PayoutRequest{}, false
	}
	if _, err := s.ownedEvent(ctx, payout.EventID); err != nil {
		if errors.Is(err, eventdomain.ErrNotFound) {
			err = payoutdomain.ErrNotFound
		}
		AbortWithError(c, err)
		return payoutdomain.PayoutRequest{}, false
	}
	return payout, true
}
