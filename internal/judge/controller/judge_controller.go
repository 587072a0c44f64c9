package controller

import (
	"context"
	"strconv"
	"strings"

	"edujudge/internal/contest/leaderboard"
	"edujudge/internal/judge/model"
	"edujudge/internal/judge/service"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/contextkey"
	"edujudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// JudgeService is the part of the judge service used over HTTP.
type JudgeService interface {
	RunTrial(ctx context.Context, req service.TrialRequest) (service.TrialResult, error)
	SubmitSolution(ctx context.Context, req service.SubmitRequest) (service.SubmitResult, error)
	GetStatus(ctx context.Context, submissionID string) (model.SubmissionStatus, error)
}

// StandingsService serves leaderboards and contest clocks.
type StandingsService interface {
	Standings(ctx context.Context, contestID int64) (leaderboard.Board, error)
	Clock(ctx context.Context, contestID int64) (leaderboard.ClockView, error)
}

// JudgeController handles contest judging requests.
type JudgeController struct {
	judge     JudgeService
	standings StandingsService
}

// NewJudgeController creates a new controller.
func NewJudgeController(judge JudgeService, standings StandingsService) *JudgeController {
	return &JudgeController{judge: judge, standings: standings}
}

// Register mounts the routes on r.
func (h *JudgeController) Register(r gin.IRouter) {
	r.POST("/contests/:contestId/problems/:problemId/run", h.Run)
	r.POST("/contests/:contestId/problems/:problemId/submit", h.Submit)
	r.GET("/contests/:contestId/leaderboard", h.Leaderboard)
	r.GET("/contests/:contestId/clock", h.Clock)
	r.GET("/submissions/:id", h.GetStatus)
}

// RunRequest is the body of a trial run.
type RunRequest struct {
	Code        string `json:"code" binding:"required"`
	Language    string `json:"language" binding:"required"`
	CustomInput string `json:"custom_input"`
}

// SubmitRequest is the body of a graded submission.
type SubmitRequest struct {
	Code     string `json:"code" binding:"required"`
	Language string `json:"language" binding:"required"`
}

// Run executes code on samples or custom input.
func (h *JudgeController) Run(c *gin.Context) {
	contestID, problemID, ok := contestProblemParams(c)
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.judge.RunTrial(c.Request.Context(), service.TrialRequest{
		ContestID:   contestID,
		ProblemID:   problemID,
		UserID:      userID,
		Code:        req.Code,
		Language:    req.Language,
		CustomInput: req.CustomInput,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Submit grades code against the hidden cases.
func (h *JudgeController) Submit(c *gin.Context) {
	contestID, problemID, ok := contestProblemParams(c)
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.judge.SubmitSolution(c.Request.Context(), service.SubmitRequest{
		ContestID: contestID,
		ProblemID: problemID,
		UserID:    userID,
		Code:      req.Code,
		Language:  req.Language,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("id"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.judge.GetStatus(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Leaderboard returns ranked standings.
func (h *JudgeController) Leaderboard(c *gin.Context) {
	contestID, ok := idParam(c, "contestId")
	if !ok {
		return
	}
	board, err := h.standings.Standings(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, board)
}

// Clock returns the contest phase and remaining time.
func (h *JudgeController) Clock(c *gin.Context) {
	contestID, ok := idParam(c, "contestId")
	if !ok {
		return
	}
	view, err := h.standings.Clock(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

func contestProblemParams(c *gin.Context) (int64, int64, bool) {
	contestID, ok := idParam(c, "contestId")
	if !ok {
		return 0, 0, false
	}
	problemID, ok := idParam(c, "problemId")
	if !ok {
		return 0, 0, false
	}
	return contestID, problemID, true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

func requireUser(c *gin.Context) (int64, bool) {
	userID, ok := contextkey.UserIDFrom(c.Request.Context())
	if !ok {
		response.Error(c, appErr.New(appErr.Unauthorized))
		return 0, false
	}
	return userID, true
}
