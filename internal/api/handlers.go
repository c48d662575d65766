package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bytebuddy/internal/auth"
	"bytebuddy/internal/database"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/tools"
	"bytebuddy/internal/usage"
)

// deniedMessages are shown when a tool's monthly allowance is used up
var deniedMessages = map[usage.Feature]string{
	usage.FeatureNotes:     "Monthly note generation limit reached. Upgrade to premium for more.",
	usage.FeatureQuestions: "Monthly question limit reached",
	usage.FeatureQuizzes:   "Monthly quiz limit reached",
	usage.FeatureCareer:    "Monthly career session limit reached",
	usage.FeatureHabits:    "Monthly habit tracking limit reached",
	usage.FeaturePractice:  "Monthly practice limit reached",
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}

// account returns the authenticated account, answering 401 when it is missing
func account(c *gin.Context) (*database.Account, bool) {
	acct := auth.GetAccount(c)
	if acct == nil {
		errorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Access token required")
		return nil, false
	}
	return acct, true
}

// bind decodes the JSON body, answering 400 on failure
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return false
	}
	return true
}

// toolError maps a tool failure onto the response. fallback is the message
// for unexpected errors.
func toolError(c *gin.Context, err error, fallback string) {
	var denial *quota.Denial
	var invalid *tools.ValidationError
	switch {
	case errors.As(err, &denial):
		message, ok := deniedMessages[denial.Feature]
		if !ok {
			message = denial.Error()
		}
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "QUOTA_EXCEEDED",
			"message": message,
			"usage": gin.H{
				"feature":      denial.Feature,
				"subscription": denial.Tier,
				"month":        denial.Period,
				"used":         denial.Used,
				"limit":        denial.Limit,
			},
		})
	case errors.Is(err, quota.ErrCheckFailed):
		logging.FromContext(c.Request.Context()).WithError(err).Error("Usage check failed", "path", c.FullPath())
		errorResponse(c, http.StatusServiceUnavailable, "USAGE_CHECK_FAILED", "Could not verify usage, please retry")
	case errors.As(err, &invalid):
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", invalid.Error())
	case errors.Is(err, tools.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Quiz not found")
	default:
		logging.FromContext(c.Request.Context()).WithError(err).Error(fallback, "path", c.FullPath())
		errorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}

func (s *Server) handleGenerateNote(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	var req tools.NoteRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.Tools.GenerateNote(c.Request.Context(), acct, req)
	if err != nil {
		toolError(c, err, "Error generating note")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Note generated successfully",
		"note":    res.Note,
		"usage":   res.Decision,
	})
}

func (s *Server) handleListNotes(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 100")
		return
	}

	notes, err := s.deps.Tools.RecentNotes(c.Request.Context(), acct, limit)
	if err != nil {
		toolError(c, err, "Error fetching notes")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "notes": notes})
}

func (s *Server) handleAskQuestion(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	var req tools.QuestionRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.Tools.AskQuestion(c.Request.Context(), acct, req)
	if err != nil {
		toolError(c, err, "Error solving question")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Question answered",
		"question": res.Question,
		"usage":    res.Decision,
	})
}

func (s *Server) handleGenerateQuiz(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	var req tools.QuizRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.Tools.GenerateQuiz(c.Request.Context(), acct, req)
	if err != nil {
		toolError(c, err, "Error generating quiz")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Quiz generated",
		"quiz":    res.Quiz,
		"usage":   res.Decision,
	})
}

func (s *Server) handleSubmitQuiz(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	var req tools.SubmitRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.Tools.SubmitQuiz(c.Request.Context(), acct, req)
	if err != nil {
		toolError(c, err, "Error submitting quiz")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Quiz submitted",
		"results": res,
	})
}

func (s *Server) handleAnalyzeCareer(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	var req tools.CareerRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.Tools.AnalyzeCareer(c.Request.Context(), acct, req)
	if err != nil {
		toolError(c, err, "Error analyzing career")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         "Career analysis complete",
		"analysis":        res.Analysis,
		"recommendations": res.Recommendations,
		"usage":           res.Decision,
	})
}

func (s *Server) handleTrackHabit(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	var req tools.HabitRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.Tools.TrackHabit(c.Request.Context(), acct, req)
	if err != nil {
		toolError(c, err, "Error tracking habit")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Habit tracked successfully",
		"stats":   res.Stats,
		"usage":   res.Decision,
	})
}

func (s *Server) handlePractice(c *gin.Context) {
	acct, ok := account(c)
	if !ok {
		return
	}
	var req tools.PracticeRequest
	if !bind(c, &req) {
		return
	}

	res, err := s.deps.Tools.Practice(c.Request.Context(), acct, req)
	if err != nil {
		toolError(c, err, "Error processing practice session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Practice session completed",
		"feedback":  res.Feedback,
		"nextSteps": res.NextSteps,
		"usage":     res.Decision,
	})
}
