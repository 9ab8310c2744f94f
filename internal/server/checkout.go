package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/boxoffice/internal/checkout/domain"
)

func (s *Server) Sell(c *gin.Context) {
	var req checkoutdomain.SaleRequest
	if !bindJSON(c, &req) {
		return
	}
	req.EventID = eventFromContext(c).ID

	resp, err := s.checkoutSvc.Sell(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) Refund(c *gin.Context) {
	var req checkoutdomain.RefundRequest
	if !bindJSON(c, &req) {
		return
	}
	req.EventID = eventFromContext(c).ID

	resp, err := s.checkoutSvc.Refund(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}
