package controller

import (
	"context"
	"strconv"
	"time"

	"edujudge/internal/contest/authoring"
	"edujudge/internal/contest/model"
	appErr "edujudge/pkg/errors"
	"edujudge/pkg/utils/contextkey"
	"edujudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// AuthoringService is the part of the authoring service used over HTTP.
type AuthoringService interface {
	CreateContest(ctx context.Context, actor int64, in authoring.CreateContestInput) (model.Contest, error)
	RescheduleContest(ctx context.Context, actor, contestID int64, startAt time.Time, durationMinutes int) (model.Contest, error)
	AddProblem(ctx context.Context, actor, contestID int64, problem model.Problem) (model.Problem, error)
	UpdateProblem(ctx context.Context, actor, contestID int64, problem model.Problem) (model.Problem, error)
	AddTestCase(ctx context.Context, actor, contestID int64, tc model.TestCase) (model.TestCase, error)
	JoinContest(ctx context.Context, actor, contestID int64) (model.Participant, error)
}

// ContestController handles contest authoring and registration.
type ContestController struct {
	svc AuthoringService
}

func NewContestController(svc AuthoringService) *ContestController {
	return &ContestController{svc: svc}
}

// Register mounts the routes on r.
func (h *ContestController) Register(r gin.IRouter) {
	r.POST("/contests", h.CreateContest)
	r.PUT("/contests/:contestId/schedule", h.Reschedule)
	r.POST("/contests/:contestId/problems", h.AddProblem)
	r.PUT("/contests/:contestId/problems/:problemId", h.UpdateProblem)
	r.POST("/contests/:contestId/problems/:problemId/testcases", h.AddTestCase)
	r.POST("/contests/:contestId/join", h.Join)
}

type CreateContestRequest struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	StartAt         time.Time `json:"start_at" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required"`
}

type ScheduleRequest struct {
	StartAt         time.Time `json:"start_at" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required"`
}

// ProblemRequest carries a problem statement. Zero points and limits take
// the stock defaults.
type ProblemRequest struct {
	Title            string `json:"title" binding:"required"`
	Description      string `json:"description"`
	Constraints      string `json:"constraints"`
	Examples         string `json:"examples"`
	Points           int    `json:"points"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
	MemoryLimitMB    int    `json:"memory_limit_mb"`
}

type TestCaseRequest struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
}

func (r ProblemRequest) problem() model.Problem {
	return model.Problem{
		Title:            r.Title,
		Description:      r.Description,
		Constraints:      r.Constraints,
		Examples:         r.Examples,
		Points:           r.Points,
		TimeLimitSeconds: r.TimeLimitSeconds,
		MemoryLimitMB:    r.MemoryLimitMB,
	}
}

func (h *ContestController) CreateContest(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req CreateContestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	contest, err := h.svc.CreateContest(c.Request.Context(), userID, authoring.CreateContestInput{
		Title:           req.Title,
		Description:     req.Description,
		StartAt:         req.StartAt,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

func (h *ContestController) Reschedule(c *gin.Context) {
	contestID, ok := idParam(c, "contestId")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	contest, err := h.svc.RescheduleContest(c.Request.Context(), userID, contestID, req.StartAt, req.DurationMinutes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, contest)
}

func (h *ContestController) AddProblem(c *gin.Context) {
	contestID, ok := idParam(c, "contestId")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	problem, err := h.svc.AddProblem(c.Request.Context(), userID, contestID, req.problem())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, problem)
}

func (h *ContestController) UpdateProblem(c *gin.Context) {
	contestID, problemID, ok := contestProblemParams(c)
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req ProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	p := req.problem()
	p.ID = problemID
	problem, err := h.svc.UpdateProblem(c.Request.Context(), userID, contestID, p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, problem)
}

func (h *ContestController) AddTestCase(c *gin.Context) {
	contestID, problemID, ok := contestProblemParams(c)
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req TestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	tc, err := h.svc.AddTestCase(c.Request.Context(), userID, contestID, model.TestCase{
		ProblemID:      problemID,
		Input:          req.Input,
		ExpectedOutput: req.ExpectedOutput,
		IsSample:       req.IsSample,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, tc)
}

// Join registers the caller in a live contest.
func (h *ContestController) Join(c *gin.Context) {
	contestID, ok := idParam(c, "contestId")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	participant, err := h.svc.JoinContest(c.Request.Context(), userID, contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, participant)
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
