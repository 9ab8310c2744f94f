package server

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	"github.com/smallbiznis/boxoffice/internal/orgcontext"
)

const (
	HeaderOrganizer = "X-Organizer-Id"
	contextEventKey = "event"
)

// OrganizerContext resolves the acting organizer from the request header.
// Authentication happens in front of this service.
func OrganizerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrganizer))
		if raw == "" {
			AbortWithError(c, ErrOrganizerRequired)
			return
		}
		organizerID, err := snowflake.ParseString(raw)
		if err != nil || organizerID == 0 {
			AbortWithError(c, ErrOrganizerRequired)
			return
		}

		ctx := orgcontext.WithOrganizerID(c.Request.Context(), organizerID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireEventOwner loads the :id event and hides it from other organizers.
func (s *Server) RequireEventOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := parseID(c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		event, err := s.ownedEvent(c.Request.Context(), eventID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextEventKey, event)
		c.Next()
	}
}

func (s *Server) ownedEvent(ctx context.Context, eventID snowflake.ID) (eventdomain.Event, error) {
	organizerID, ok := orgcontext.OrganizerIDFromContext(ctx)
	if !ok {
		return eventdomain.Event{}, ErrOrganizerRequired
	}
	event, err := s.eventSvc.Get(ctx, eventID)
	if err != nil {
		return eventdomain.Event{}, err
	}
	if event.OrganizerID != organizerID {
		return eventdomain.Event{}, eventdomain.ErrNotFound
	}
	return event, nil
}

func eventFromContext(c *gin.Context) eventdomain.Event {
	if v, ok := c.Get(contextEventKey); ok {
		if event, ok := v.(eventdomain.Event); ok {
			return event
		}
	}
	return eventdomain.Event{}
}
