package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
)

type adjustQuantityRequest struct {
	Quantity *int64 `json:"quantity"`
}

type soldOutRequest struct {
	SoldOut *bool `json:"sold_out"`
}

func (s *Server) CreateCategory(c *gin.Context) {
	var req inventorydomain.CreateCategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	req.EventID = eventFromContext(c).ID

	resp, err := s.inventorySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCategories(c *gin.Context) {
	resp, err := s.inventorySvc.ListByEvent(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AdjustCategoryQuantity(c *gin.Context) {
	categoryID, err := s.ownedCategory(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req adjustQuantityRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == nil {
		AbortWithError(c, newValidationError("quantity", "invalid_quantity", "quantity is required"))
		return
	}

	resp, err := s.inventorySvc.AdjustQuantity(c.Request.Context(), categoryID, *req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetCategorySoldOut(c *gin.Context) {
	categoryID, err := s.ownedCategory(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req soldOutRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.SoldOut == nil {
		AbortWithError(c, newValidationError("sold_out", "invalid_sold_out", "sold_out is required"))
		return
	}

	resp, err := s.inventorySvc.ForceSoldOut(c.Request.Context(), categoryID, *req.SoldOut)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ownedCategory resolves :id to a category whose event belongs to the caller.
func (s *Server) ownedCategory(c *gin.Context) (snowflake.ID, error) {
	categoryID, err := parseID(c.Param("id"))
	if err != nil {
		return 0, err
	}
	return categoryID, s.checkCategoryOwner(c.Request.Context(), categoryID)
}

func (s *Server) checkCategoryOwner(ctx context.Context, categoryID snowflake.ID) error {
	category, err := s.inventorySvc.Get(ctx, categoryID)
	if err != nil {
		return err
	}
	if _, err := s.ownedEvent(ctx, category.EventID); err != nil {
		if errors.Is(err, eventdomain.ErrNotFound) {
			return inventorydomain.ErrNotFound
		}
		return err
	}
	return nil
}
