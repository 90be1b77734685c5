package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"notification-pipeline/internal/broadcast"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/service"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "INVALID_PARAMETER",
			"message": name + " must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": string(code), "message": err.Error()})
	case errors.Is(err, apperrors.ErrBroadcastUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": string(code), "message": err.Error()})
	default:
		s.logger.Error("request failed", map[string]interface{}{
			"path":  c.FullPath(),
			"error": err,
		})
		if code == "" {
			code = "INTERNAL_ERROR"
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": string(code), "message": "internal server error"})
	}
}

func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseIDParam(c, "userId")
		if !ok {
			return
		}
		var newestFirst bool
		switch c.DefaultQuery("order", "desc") {
		case "desc":
			newestFirst = true
		case "asc":
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "INVALID_PARAMETER",
				"message": "order must be asc or desc",
			})
			return
		}
		list, err := s.svc.ListForRecipient(c.Request.Context(), userID, newestFirst)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.ToDTOs(list))
	}
}

func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseIDParam(c, "userId")
		if !ok {
			return
		}
		list, err := s.svc.ListUnread(c.Request.Context(), userID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.ToDTOs(list))
	}
}

func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseIDParam(c, "userId")
		if !ok {
			return
		}
		count, err := s.svc.CountUnread(c.Request.Context(), userID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID, "unreadCount": count})
	}
}

func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c, "id")
		if !ok {
			return
		}
		n, err := s.svc.MarkAsRead(c.Request.Context(), id)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, service.ToDTO(n))
	}
}

// handleStream serves Server-Sent Events: "notification" frames carry the
// notification id and DTO, "heartbeat" frames keep idle connections open.
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseIDParam(c, "userId")
		if !ok {
			return
		}

		stream, err := s.bus.Stream(c.Request.Context(), userID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		defer stream.Close()

		log := s.logger.WithFields(map[string]interface{}{
			"userId":         userID,
			"subscriptionId": stream.ID(),
		})
		log.Info("stream opened", nil)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.Flush()

		c.Stream(func(_ io.Writer) bool {
			ev, ok := <-stream.Events()
			if !ok {
				return false
			}
			switch ev.Kind {
			case broadcast.KindNotification:
				c.Render(-1, sse.Event{
					Id:    strconv.FormatInt(ev.Notification.ID, 10),
					Event: "notification",
					Data:  service.ToDTO(ev.Notification),
				})
			case broadcast.KindKeepAlive:
				c.SSEvent("heartbeat", ev.At.UTC().Format(time.RFC3339))
			}
			return true
		})

		stream.Close()
		reason := stream.Reason()
		if reason == "" {
			reason = broadcast.ReasonClientClosed
		}
		log.Info("stream closed", map[string]interface{}{"reason": string(reason)})
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "UP",
			"service":     serviceName,
			"subscribers": s.bus.SubscriberCount(),
			"uptime":      time.Since(s.started).Round(time.Second).String(),
		})
	}
}

func (s *Server) handleReady() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		if err := s.svc.Ready(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results["store"] = err.Error()
		} else {
			results["store"] = "ok"
		}
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "READY"
		if status != http.StatusOK {
			state = "NOT_READY"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
