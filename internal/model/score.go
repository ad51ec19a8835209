package model

import "time"

// PointsPerAttendance is awarded for every attendance record marked present.
const PointsPerAttendance = 10

type ScoreSnapshot struct {
	UserID           string     `json:"user_id"`
	Username         string     `json:"username,omitempty"`
	TeamID           *string    `json:"team_id,omitempty"`
	AttendancePoints int        `json:"attendance_points"`
	TaskPoints       int        `json:"task_points"`
	TotalScore       int        `json:"total_score"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// NewScoreSnapshot derives the snapshot from the two source aggregates.
func NewScoreSnapshot(userID string, presentCount, gradedSum int) *ScoreSnapshot {
	attendance := PointsPerAttendance * presentCount
	return &ScoreSnapshot{
		UserID:           userID,
		AttendancePoints: attendance,
		TaskPoints:       gradedSum,
		TotalScore:       attendance + gradedSum,
	}
}

type LeaderboardSort string

const (
	SortByTotal      LeaderboardSort = "total"
	SortByTasks      LeaderboardSort = "tasks"
	SortByAttendance LeaderboardSort = "attendance"
)

type LeaderboardFilter struct {
	TeamID *string
	// Recompute forces a fresh recompute for every listed user instead of
	// reading the cached scores.
	Recompute bool
}

type LeaderboardQuery struct {
	Filter    LeaderboardFilter
	Sort      LeaderboardSort
	Ascending bool
	Limit     int
	Offset    int
}

type LeaderboardEntry struct {
	Rank int `json:"rank"`
	*ScoreSnapshot
}

type Leaderboard struct {
	Total   int                 `json:"total"`
	Entries []*LeaderboardEntry `json:"entries"`
}
