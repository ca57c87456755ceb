package media

type PresignedURLRequest struct {
	MediaType string `json:"mediaType" binding:"required,oneof=audio video"`
	Extension string `json:"extension" binding:"required"`
}
