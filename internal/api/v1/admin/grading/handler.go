package grading

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"inpeak-backend/internal/services"
	"inpeak-backend/internal/utils"
)

type Handler struct {
	submissions *services.SubmissionService
}

func NewHandler(submissions *services.SubmissionService) *Handler {
	return &Handler{submissions: submissions}
}

// RequeueTask publishes a WAITING task again.
func (h *Handler) RequeueTask(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("taskId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, utils.NewErrorResponse(http.StatusBadRequest, "Invalid task ID"))
		return
	}

	if err := h.submissions.Requeue(c.Request.Context(), uint(id)); err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Task requeued", gin.H{"taskId": id}))
}
