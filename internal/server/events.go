package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
)

type scheduleEventRequest struct {
	PublishAt *time.Time `json:"publish_at"`
}

type postponeEventRequest struct {
	StartsAt *time.Time `json:"starts_at"`
}

type cancelEventRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CreateEvent(c *gin.Context) {
	var req eventdomain.CreateEventRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.eventSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetEvent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": eventFromContext(c)})
}

func (s *Server) UpdateEvent(c *gin.Context) {
	var req eventdomain.UpdateEventRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ID = eventFromContext(c).ID

	resp, err := s.eventSvc.UpdateDetails(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ScheduleEvent(c *gin.Context) {
	var req scheduleEventRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PublishAt == nil {
		AbortWithError(c, newValidationError("publish_at", "invalid_date", "publish_at is required"))
		return
	}

	resp, err := s.eventSvc.Schedule(c.Request.Context(), eventFromContext(c).ID, req.PublishAt.UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PublishEvent(c *gin.Context) {
	resp, err := s.eventSvc.Publish(c.Request.Context(), eventFromContext(c).ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PostponeEvent(c *gin.Context) {
	var req postponeEventRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.StartsAt == nil {
		AbortWithError(c, newValidationError("starts_at", "invalid_date", "starts_at is required"))
		return
	}

	resp, err := s.eventSvc.Postpone(c.Request.Context(), eventFromContext(c).ID, req.StartsAt.UTC())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelEvent(c *gin.Context) {
	var req cancelEventRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := s.eventSvc.Cancel(c.Request.Context(), eventFromContext(c).ID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
