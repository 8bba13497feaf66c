package dto

type VerificationQuestionResponse struct {
	QuestionID int64  `json:"question_id"`
	Question   string `json:"question"`
}

type VerificationAnswerRequest struct {
	QuestionID int64  `json:"question_id"`
	Answer     string `json:"answer"`
}

type SeedQuestionsRequest struct {
	Items []SeedQuestionItem `json:"items"`
}

type SeedQuestionItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type SeedQuestionsResponse struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

type VerificationAnswerResponse struct {
	Verified     bool `json:"verified"`
	AttemptsUsed int  `json:"attempts_used"`
	AttemptsLeft int  `json:"attempts_left"`
	Dismissed    bool `json:"dismissed"`
}
