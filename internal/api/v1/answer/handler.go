package answer

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inpeak-backend/internal/middleware"
	"inpeak-backend/internal/services"
	"inpeak-backend/internal/utils"
)

type Handler struct {
	submissions *services.SubmissionService
}

func NewHandler(submissions *services.SubmissionService) *Handler {
	return &Handler{submissions: submissions}
}

// SubmitGrading accepts a recorded answer and returns the grading task ID to poll.
func (h *Handler) SubmitGrading(c *gin.Context) {
	var req SubmitGradingRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	taskID, err := h.submissions.Submit(c.Request.Context(), services.SubmitRequest{
		MemberID:    middleware.MemberID(c),
		QuestionID:  req.QuestionID,
		InterviewID: req.InterviewID,
		AudioURL:    req.AudioURL,
		VideoURL:    req.VideoURL,
		Time:        req.Time,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewSuccessResponse("Answer submitted for grading", SubmitGradingResponse{TaskID: taskID}))
}

// GetGradingStatus reports the state of one of the caller's grading tasks.
func (h *Handler) GetGradingStatus(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	view, err := h.submissions.GetStatus(c.Request.Context(), middleware.MemberID(c), taskID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Grading task status", view))
}

// RetryGrading resets a failed task to WAITING. Re-publishing is an operator step.
func (h *Handler) RetryGrading(c *gin.Context) {
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.submissions.Retry(c.Request.Context(), middleware.MemberID(c), taskID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Grading task reset", services.TaskStatusView{
		TaskID: task.ID,
		Status: task.Status,
	}))
}

func parseTaskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("taskId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid task ID"))
		return 0, false
	}
	return uint(id), true
}
