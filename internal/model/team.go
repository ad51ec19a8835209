package model

import "time"

// MaxTeamMembers is the fixed team capacity.
const MaxTeamMembers = 6

type Role string

const (
	RoleLeader Role = "leader"
	RoleMember Role = "member"
)

type Team struct {
	ID          string        `json:"team_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	LeaderID    string        `json:"leader_id"`
	ResourceID  *string       `json:"problem_statement_id,omitempty"`
	MaxMembers  int           `json:"max_members"`
	IsActive    bool          `json:"is_active"`
	Members     []*TeamMember `json:"members"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type TeamMember struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Leader looks the leader up by role, not by position in Members.
func (t *Team) Leader() *TeamMember {
	for _, m := range t.Members {
		if m.Role == RoleLeader {
			return m
		}
	}
	return nil
}

func (t *Team) Member(userID string) *TeamMember {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func (t *Team) IsFull() bool {
	return len(t.Members) >= t.MaxMembers
}

// TeamPatch carries the leader-only mutable fields. Nil fields are left untouched.
type TeamPatch struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	ResourceID  *string `json:"problem_statement_id,omitempty" validate:"omitempty,uuid"`
}
