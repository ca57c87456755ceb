package answer

type SubmitGradingRequest struct {
	AudioURL    string  `json:"audioURL" binding:"required"`
	Time        int     `json:"time" binding:"gte=0"`
	QuestionID  uint    `json:"questionId" binding:"required"`
	InterviewID uint    `json:"interviewId" binding:"required"`
	VideoURL    *string `json:"videoURL"`
}

type SubmitGradingResponse struct {
	TaskID uint `json:"taskId"`
}
