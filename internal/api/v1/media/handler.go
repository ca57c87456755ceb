package media

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inpeak-backend/internal/media"
	"inpeak-backend/internal/middleware"
	"inpeak-backend/internal/utils"
)

type Handler struct {
	media *media.Service
}

func NewHandler(svc *media.Service) *Handler {
	return &Handler{media: svc}
}

// CreatePresignedURL issues a signed upload URL for an answer recording.
func (h *Handler) CreatePresignedURL(c *gin.Context) {
	var req PresignedURLRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	upload, err := h.media.IssueUpload(c.Request.Context(), middleware.MemberID(c), media.MediaType(req.MediaType), req.Extension)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewSuccessResponse("Upload URL issued", upload))
}
