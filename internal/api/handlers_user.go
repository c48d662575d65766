package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleUserStats returns usage for the current month together with tool activity
func (s *Server) handleUserStats(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	snapshot, err := s.deps.Quota.Snapshot(ctx, acct)
	if err != nil {
		toolError(c, err, "Error fetching stats")
		return
	}
	activity, err := s.deps.Tools.Stats(ctx, acct)
	if err != nil {
		toolError(c, err, "Error fetching stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"monthlyUsage": snapshot,
			"subscription": gin.H{
				"type":      acct.SubscriptionTier,
				"expiresAt": acct.SubscriptionExpiresAt,
			},
			"toolsData": gin.H{
				"noteCount":     activity.NoteCount,
				"questionCount": activity.QuestionCount,
				"quizCount":     activity.QuizCount,
				"averageScore":  activity.AverageScore,
				"habitStreak":   activity.Habits.CurrentStreak,
				"longestStreak": activity.Habits.LongestStreak,
				"weakAreas":     activity.Profile.WeakAreas,
			},
			"lastActivity": acct.LastActivityAt,
		},
	})
}

// handleUserUsage returns the per-feature allowance for the current month
func (s *Server) handleUserUsage(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}

	snapshot, err := s.deps.Quota.Snapshot(c.Request.Context(), acct)
	if err != nil {
		toolError(c, err, "Error fetching usage")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "usage": snapshot})
}
