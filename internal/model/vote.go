package model

import "time"

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 500
)

type Vote struct {
	ID        string    `json:"vote_id"`
	VoterID   string    `json:"voter_id"`
	TeamID    string    `json:"team_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type VoteCompletion struct {
	VoterID    string `json:"voter_id"`
	VotedCount int    `json:"voted_count"`
	TotalCount int    `json:"total_count"`
	Complete   bool   `json:"complete"`
}

type TeamRating struct {
	TeamID  string  `json:"team_id"`
	Votes   int     `json:"votes"`
	Average float64 `json:"average"`
}
