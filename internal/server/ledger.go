package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
)

func (s *Server) GetLedger(c *gin.Context) {
	resp, err := s.ledgerSvc.Get(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListLedgerTransactions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.Transactions(c.Request.Context(), eventFromContext(c).ID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// VerifyLedger replays the transaction log and compares it with the stored figures.
func (s *Server) VerifyLedger(c *gin.Context) {
	resp, err := s.ledgerSvc.Verify(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RetireLedger(c *gin.Context) {
	resp, err := s.ledgerSvc.Retire(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
