package model

// SelectAnswerRequest is the payload for recording a choice on a question.
type SelectAnswerRequest struct {
	Option *int `json:"option" binding:"required,min=0"`
}

// NavigateRequest is the payload for moving the question cursor.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}
