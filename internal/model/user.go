package model

type User struct {
	ID       string  `json:"id" validate:"required"`
	Username string  `json:"username" validate:"required"`
	TeamID   *string `json:"team_id,omitempty"`
}
