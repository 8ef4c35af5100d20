package models

// Role identifies who authored a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatTurn is one entry of the question/answer history about a converted file.
type ChatTurn struct {
	Speaker Role   `json:"speaker"`
	Text    string `json:"text"`
}
