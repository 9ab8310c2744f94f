package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
)

func (s *Server) CreatePromoCode(c *gin.Context) {
	var req promodomain.CreatePromoCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	req.EventID = eventFromContext(c).ID

	resp, err := s.promoSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListPromoCodes(c *gin.Context) {
	resp, err := s.promoSvc.ListByEvent(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ValidatePromoCode quotes a discount without consuming a use.
func (s *Server) ValidatePromoCode(c *gin.Context) {
	var req promodomain.ValidateRequest
	if !bindJSON(c, &req) {
		return
	}
	req.EventID = eventFromContext(c).ID

	resp, err := s.promoSvc.Validate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePromoCode(c *gin.Context) {
	code, ok := s.ownedPromoCode(c)
	if !ok {
		return
	}

	var req promodomain.UpdatePromoCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ID = code.ID

	resp, err := s.promoSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PromoCodeStats(c *gin.Context) {
	code, ok := s.ownedPromoCode(c)
	if !ok {
		return
	}

	resp, err := s.promoSvc.UsageStats(c.Request.Context(), code.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivatePromoCode(c *gin.Context) {
	code, ok := s.ownedPromoCode(c)
	if !ok {
		return
	}

	resp, err := s.promoSvc.Deactivate(c.Request.Context(), code.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ownedPromoCode(c *gin.Context) (promodomain.PromoCode, bool) {
	codeID, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return promodomain.PromoCode{}, false
	}

	ctx := c.Request.Context()
	code, err := s.promoSvc.Get(ctx, codeID)
	if err != nil {
		AbortWithError(c, err)
		return promodomain.PromoCode{}, false
	}
	if _, err := s.ownedEvent(ctx, code.EventID); err != nil {
		if errors.Is(err, eventdomain.ErrNotFound) {
			err = promodomain.ErrCodeNotFound
		}
		AbortWithError(c, err)
		return promodomain.PromoCode{}, false
	}
	return code, true
}
