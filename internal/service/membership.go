package service

import (
	"fmt"

	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
)

// verifyMembership checks the team invariants on the state about to be committed:
// exactly one leader, found by role and matching team.LeaderID, and size within capacity.
func verifyMembership(team *repository.Team, members []*repository.Member) error {
	if len(members) > team.MaxMembers {
		return fmt.Errorf("team %s has %d members, max %d", team.ID, len(members), team.MaxMembers)
	}

	leaders := 0
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.UserID]; dup {
			return fmt.Errorf("team %s lists member %s twice", team.ID, m.UserID)
		}
		seen[m.UserID] = struct{}{}

		if m.Role != model.RoleLeader {
			continue
		}
		leaders++
		if m.UserID != team.LeaderID {
			return fmt.Errorf("team %s leader is %s but member %s holds the leader role", team.ID, team.LeaderID, m.UserID)
		}
	}

	if team.IsActive && leaders != 1 {
		return fmt.Errorf("team %s has %d leaders", team.ID, leaders)
	}
	return nil
}

func findMember(members []*repository.Member, userID string) *repository.Member {
	for _, m := range members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func leaderOf(members []*repository.Member) *repository.Member {
	for _, m := range members {
		if m.Role == model.RoleLeader {
			return m
		}
	}
	return nil
}

func withoutMember(members []*repository.Member, userID string) []*repository.Member {
	res := make([]*repository.Member, 0, len(members))
	for _, m := range members {
		if m.UserID != userID {
			res = append(res, m)
		}
	}
	return res
}

func toModelTeam(team *repository.Team, members []*repository.Member) *model.Team {
	res := &model.Team{
		ID:          team.ID,
		Name:        team.Name,
		Description: team.Description,
		LeaderID:    team.LeaderID,
		ResourceID:  team.ResourceID,
		MaxMembers:  team.MaxMembers,
		IsActive:    team.IsActive,
		CreatedAt:   team.CreatedAt,
		UpdatedAt:   team.UpdatedAt,
		Members:     make([]*model.TeamMember, 0, len(members)),
	}
	for _, m := range members {
		res.Members = append(res.Members, &model.TeamMember{
			UserID:   m.UserID,
			Username: m.Username,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	return res
}
