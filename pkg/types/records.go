package types

// Question is a posted question with its answers
type Question struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      string   `json:"tags"`
	Author    string   `json:"author"`
	IPFSHash  string   `json:"ipfsHash"`
	Bounty    string   `json:"bounty"`
	Votes     int      `json:"votes"`
	Timestamp int64    `json:"timestamp"`
	Answers   []Answer `json:"answers"`
}

// Answer is a reply to a question
type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Content    string `json:"content"`
	Author     string `json:"author"`
	IPFSHash   string `json:"ipfsHash"`
	Votes      int    `json:"votes"`
	IsAccepted bool   `json:"isAccepted"`
	Timestamp  int64  `json:"timestamp"`
}

// NewQuestion holds the caller supplied fields of a question
type NewQuestion struct {
	Title   string `json:"title" validate:"required,max=300"`
	Content string `json:"content" validate:"required"`
	Tags    string `json:"tags"`
	Author  string `json:"author"`
	Bounty  string `json:"bounty" validate:"omitempty,numeric"`
}

// NewAnswer holds the caller supplied fields of an answer
type NewAnswer struct {
	QuestionID int64  `json:"questionId" validate:"required,gt=0"`
	Content    string `json:"content" validate:"required"`
	Author     string `json:"author"`
}
