package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/service"
)

// handleRunScheduler triggers a tick on demand. It reports only
// success or failure plus a message; per-post detail is available via
// the upcoming and stats reads.
func (s *Server) handleRunScheduler(c *gin.Context) {
	// Detached from the request context so a dropped client does not
	// cancel in-flight submissions.
	processed, err := s.Scheduler.ProcessDuePosts(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, service.ErrTickInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "A tick is already running"})
		return
	}
	if err != nil {
		s.Logger.Error("Manual tick failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process due posts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Tick completed",
		"processed": processed,
	})
}

func (s *Server) handleUpcomingPosts(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hours parameter"})
			return
		}
		hours = parsed
	}

	until := time.Now().Add(time.Duration(hours) * time.Hour)
	posts, err := s.posts.Upcoming(c.Request.Context(), until)
	if err != nil {
		s.Logger.Error("Failed to query upcoming posts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get upcoming posts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (s *Server) handleCampaignStats(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid campaign id"})
		return
	}
	campaignID := uint(id)

	stats, err := s.posts.CampaignStats(c.Request.Context(), campaignID)
	if err != nil {
		s.Logger.Error("Failed to query campaign stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get campaign stats"})
		return
	}

	recent, err := s.activity.RecentForCampaign(c.Request.Context(), campaignID, 20)
	if err != nil {
		s.Logger.Error("Failed to query campaign activity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get campaign activity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"campaign_id": campaignID,
		"by_status":   stats,
		"activity":    recent,
	})
}

func (s *Server) handleCommunityInfo(c *gin.Context) {
	info, err := s.Communities.SubredditInfo(c.Request.Context(), c.Param("name"))
	if err != nil {
		if service.Classify(err) == service.ErrorValidation {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.Logger.Error("Failed to fetch community info",
			zap.String("name", c.Param("name")),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch community info"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"community": info})
}

func (s *Server) handleRunSync(c *gin.Context) {
	count := s.PostSync.SyncAll(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, gin.H{
		"message":           "Sync completed",
		"accounts_with_new": count,
	})
}
