package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
)

// memStore is an in-memory backing store for scenario and property tests.
// Transactions are serialised on one mutex and roll back by restoring a
// snapshot, which gives the same all-or-nothing behaviour as Postgres.
type memStore struct {
	mu sync.Mutex

	users     map[string]repository.User
	teams     map[string]repository.Team
	members   map[string][]repository.Member
	resources map[string]repository.Resource
	votes     map[string]repository.Vote
	graded    map[string]int
	present   map[string]int

	sourceErr error
	seq       atomic.Int64
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]repository.User{},
		teams:     map[string]repository.Team{},
		members:   map[string][]repository.Member{},
		resources: map[string]repository.Resource{},
		votes:     map[string]repository.Vote{},
		graded:    map[string]int{},
		present:   map[string]int{},
	}
}

type memSnapshot struct {
	users     map[string]repository.User
	teams     map[string]repository.Team
	members   map[string][]repository.Member
	resources map[string]repository.Resource
	votes     map[string]repository.Vote
}

func (s *memStore) snapshot() memSnapshot {
	members := make(map[string][]repository.Member, len(s.members))
	for k, v := range s.members {
		members[k] = slices.Clone(v)
	}
	return memSnapshot{
		users:     maps.Clone(s.users),
		teams:     maps.Clone(s.teams),
		members:   members,
		resources: maps.Clone(s.resources),
		votes:     maps.Clone(s.votes),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.users = snap.users
	s.teams = snap.teams
	s.members = snap.members
	s.resources = snap.resources
	s.votes = snap.votes
}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// do runs fn under the store lock unless the caller already holds it through
// a transaction.
func (s *memStore) do(ctx context.Context, fn func() error) error {
	if ctx.Value(memTxKey{}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn()
}

func (s *memStore) nextID(prefix string) func() string {
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, s.seq.Add(1))
	}
}

func (s *memStore) addUser(id string) {
	s.users[id] = repository.User{ID: id, Username: "user " + id}
}

func (s *memStore) addResource(id string) {
	s.resources[id] = repository.Resource{ID: id, Title: "statement " + id, MaxTeams: model.MaxTeamsPerResource}
}

// services wires every component over the store.
func (s *memStore) services() (*TeamService, *ResourceService, *VoteService, *ScoreService) {
	users := &memUsers{s}
	teams := &memTeams{s}

	resources := NewResourceService(s).
		WithTeamRepo(teams).
		WithResourceRepo(&memResources{s}).
		WithIDGenerator(s.nextID("res"))
	team := NewTeamService(s).
		WithUserRepo(users).
		WithTeamRepo(teams).
		WithMemberRepo(&memMembers{s}).
		WithAllocator(resources).
		WithIDGenerator(s.nextID("team"))
	votes := NewVoteService(s).
		WithUserRepo(users).
		WithTeamRepo(teams).
		WithVoteRepo(&memVotes{s}).
		WithIDGenerator(s.nextID("vote"))
	scores := NewScoreService(s).
		WithUserRepo(users).
		WithSubmissionRepo(&memSources{s}).
		WithAttendanceRepo(&memSources{s})
	return team, resources, votes, scores
}

type memUsers struct{ s *memStore }

func (r *memUsers) Get(ctx context.Context, userID string) (*repository.User, error) {
	var res *repository.User
	err := r.s.do(ctx, func() error {
		u, ok := r.s.users[userID]
		if !ok {
			return repository.ErrNotFound
		}
		res = &u
		return nil
	})
	return res, err
}

func (r *memUsers) GetForUpdate(ctx context.Context, userID string) (*repository.User, error) {
	return r.Get(ctx, userID)
}

func (r *memUsers) GetForShare(ctx context.Context, userID string) (*repository.User, error) {
	return r.Get(ctx, userID)
}

func (r *memUsers) List(ctx context.Context, filter repository.UserFilter) ([]*repository.User, error) {
	var res []*repository.User
	err := r.s.do(ctx, func() error {
		for _, id := range slices.Sorted(maps.Keys(r.s.users)) {
			u := r.s.users[id]
			if filter.TeamID != nil && (u.TeamID == nil || *u.TeamID != *filter.TeamID) {
				continue
			}
			res = append(res, &u)
		}
		return nil
	})
	return res, err
}

func (r *memUsers) Upsert(ctx context.Context, user *repository.User) error {
	return r.s.do(ctx, func() error {
		u, ok := r.s.users[user.ID]
		if !ok {
			u = repository.User{ID: user.ID}
		}
		u.Username = user.Username
		r.s.users[user.ID] = u
		return nil
	})
}

func (r *memUsers) SetTeam(ctx context.Context, userID string, teamID *string) error {
	return r.s.do(ctx, func() error {
		u, ok := r.s.users[userID]
		if !ok {
			return repository.ErrNotFound
		}
		if teamID != nil {
			id := *teamID
			u.TeamID = &id
		} else {
			u.TeamID = nil
		}
		r.s.users[userID] = u
		return nil
	})
}

func (r *memUsers) SetScore(ctx context.Context, score *repository.UserScore) (*repository.User, error) {
	var res *repository.User
	err := r.s.do(ctx, func() error {
		u, ok := r.s.users[score.UserID]
		if !ok {
			return repository.ErrNotFound
		}
		now := time.Now()
		u.AttendancePoints = score.AttendancePoints
		u.TaskPoints = score.TaskPoints
		u.TotalScore = score.TotalScore
		u.ScoreUpdatedAt = &now
		r.s.users[score.UserID] = u
		res = &u
		return nil
	})
	return res, err
}

type memTeams struct{ s *memStore }

func (r *memTeams) Create(ctx context.Context, team *repository.Team) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.teams[team.ID]; ok {
			return repository.ErrAlreadyExists
		}
		for _, t := range r.s.teams {
			if t.IsActive && strings.EqualFold(t.Name, team.Name) {
				return repository.ErrAlreadyExists
			}
		}
		now := time.Now()
		team.IsActive = true
		team.CreatedAt, team.UpdatedAt = now, now
		r.s.teams[team.ID] = *team
		return nil
	})
}

func (r *memTeams) Get(ctx context.Context, teamID string) (*repository.Team, error) {
	var res *repository.Team
	err := r.s.do(ctx, func() error {
		t, ok := r.s.teams[teamID]
		if !ok {
			return repository.ErrNotFound
		}
		res = &t
		return nil
	})
	return res, err
}

func (r *memTeams) GetForUpdate(ctx context.Context, teamID string) (*repository.Team, error) {
	return r.Get(ctx, teamID)
}

func (r *memTeams) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	taken := false
	err := r.s.do(ctx, func() error {
		for _, t := range r.s.teams {
			if t.IsActive && t.ID != excludeID && strings.EqualFold(t.Name, name) {
				taken = true
			}
		}
		return nil
	})
	return taken, err
}

func (r *memTeams) Patch(ctx context.Context, patch *repository.TeamPatch) (*repository.Team, error) {
	var res *repository.Team
	err := r.s.do(ctx, func() error {
		t, ok := r.s.teams[patch.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if patch.Name != nil {
			t.Name = *patch.Name
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.LeaderID != nil {
			t.LeaderID = *patch.LeaderID
		}
		if patch.IsActive != nil {
			t.IsActive = *patch.IsActive
		}
		t.UpdatedAt = time.Now()
		r.s.teams[patch.ID] = t
		res = &t
		return nil
	})
	return res, err
}

func (r *memTeams) SetResource(ctx context.Context, teamID string, resourceID *string) error {
	return r.s.do(ctx, func() error {
		t, ok := r.s.teams[teamID]
		if !ok {
			return repository.ErrNotFound
		}
		if resourceID != nil {
			id := *resourceID
			t.ResourceID = &id
		} else {
			t.ResourceID = nil
		}
		r.s.teams[teamID] = t
		return nil
	})
}

func (r *memTeams) ListActive(ctx context.Context) ([]*repository.Team, error) {
	var res []*repository.Team
	err := r.s.do(ctx, func() error {
		for _, id := range slices.Sorted(maps.Keys(r.s.teams)) {
			t := r.s.teams[id]
			if t.IsActive {
				res = append(res, &t)
			}
		}
		return nil
	})
	return res, err
}

func (r *memTeams) ListActiveByResource(ctx context.Context, resourceID string) ([]string, error) {
	res := []string{}
	err := r.s.do(ctx, func() error {
		res = r.s.selecting(resourceID)
		return nil
	})
	return res, err
}

func (s *memStore) selecting(resourceID string) []string {
	res := []string{}
	for _, id := range slices.Sorted(maps.Keys(s.teams)) {
		t := s.teams[id]
		if t.IsActive && t.ResourceID != nil && *t.ResourceID == resourceID {
			res = append(res, id)
		}
	}
	return res
}

type memMembers struct{ s *memStore }

func (r *memMembers) Add(ctx context.Context, member *repository.Member) error {
	return r.s.do(ctx, func() error {
		for _, list := range r.s.members {
			for _, m := range list {
				if m.UserID == member.UserID {
					return repository.ErrAlreadyExists
				}
			}
		}
		member.JoinedAt = time.Now()
		r.s.members[member.TeamID] = append(r.s.members[member.TeamID], *member)
		return nil
	})
}

func (r *memMembers) Remove(ctx context.Context, teamID, userID string) error {
	return r.s.do(ctx, func() error {
		list := r.s.members[teamID]
		idx := slices.IndexFunc(list, func(m repository.Member) bool { return m.UserID == userID })
		if idx < 0 {
			return repository.ErrNotFound
		}
		r.s.members[teamID] = slices.Delete(slices.Clone(list), idx, idx+1)
		return nil
	})
}

func (r *memMembers) RemoveAll(ctx context.Context, teamID string) ([]string, error) {
	var res []string
	err := r.s.do(ctx, func() error {
		for _, m := range r.s.members[teamID] {
			res = append(res, m.UserID)
		}
		delete(r.s.members, teamID)
		return nil
	})
	return res, err
}

func (r *memMembers) SetRole(ctx context.Context, teamID, userID string, role model.Role) error {
	return r.s.do(ctx, func() error {
		list := slices.Clone(r.s.members[teamID])
		idx := slices.IndexFunc(list, func(m repository.Member) bool { return m.UserID == userID })
		if idx < 0 {
			return repository.ErrNotFound
		}
		if role == model.RoleLeader {
			for _, m := range list {
				if m.Role == model.RoleLeader && m.UserID != userID {
					return repository.ErrAlreadyExists
				}
			}
		}
		list[idx].Role = role
		r.s.members[teamID] = list
		return nil
	})
}

func (r *memMembers) List(ctx context.Context, teamID string) ([]*repository.Member, error) {
	res := []*repository.Member{}
	err := r.s.do(ctx, func() error {
		for _, m := range r.s.members[teamID] {
			m.Username = r.s.users[m.UserID].Username
			res = append(res, &m)
		}
		return nil
	})
	return res, err
}

type memResources struct{ s *memStore }

func (r *memResources) Create(ctx context.Context, res *repository.Resource) error {
	return r.s.do(ctx, func() error {
		r.s.resources[res.ID] = *res
		return nil
	})
}

func (r *memResources) Get(ctx context.Context, resourceID string) (*repository.Resource, error) {
	var res *repository.Resource
	err := r.s.do(ctx, func() error {
		item, ok := r.s.resources[resourceID]
		if !ok {
			return repository.ErrNotFound
		}
		res = &item
		return nil
	})
	return res, err
}

func (r *memResources) List(ctx context.Context) ([]*repository.Resource, error) {
	var res []*repository.Resource
	err := r.s.do(ctx, func() error {
		for _, id := range slices.Sorted(maps.Keys(r.s.resources)) {
			item := r.s.resources[id]
			res = append(res, &item)
		}
		return nil
	})
	return res, err
}

func (r *memResources) Acquire(ctx context.Context, resourceID string) (*repository.Resource, error) {
	var res *repository.Resource
	err := r.s.do(ctx, func() error {
		item, ok := r.s.resources[resourceID]
		if !ok {
			return repository.ErrNotFound
		}
		if item.SelectedCount >= item.MaxTeams {
			return repository.ErrAtCapacity
		}
		item.SelectedCount++
		r.s.resources[resourceID] = item
		res = &item
		return nil
	})
	return res, err
}

func (r *memResources) Release(ctx context.Context, resourceID string) (*repository.Resource, error) {
	var res *repository.Resource
	err := r.s.do(ctx, func() error {
		item, ok := r.s.resources[resourceID]
		if !ok || item.SelectedCount == 0 {
			return repository.ErrNotFound
		}
		item.SelectedCount--
		r.s.resources[resourceID] = item
		res = &item
		return nil
	})
	return res, err
}

type memVotes struct{ s *memStore }

func voteKey(voterID, teamID string) string {
	return voterID + "/" + teamID
}

func (r *memVotes) Create(ctx context.Context, vote *repository.Vote) error {
	return r.s.do(ctx, func() error {
		key := voteKey(vote.VoterID, vote.TeamID)
		if _, ok := r.s.votes[key]; ok {
			return repository.ErrAlreadyExists
		}
		now := time.Now()
		vote.CreatedAt, vote.UpdatedAt = now, now
		r.s.votes[key] = *vote
		return nil
	})
}

func (r *memVotes) Update(ctx context.Context, voterID, teamID string, rating int, comment string) (*repository.Vote, error) {
	var res *repository.Vote
	err := r.s.do(ctx, func() error {
		key := voteKey(voterID, teamID)
		v, ok := r.s.votes[key]
		if !ok {
			return repository.ErrNotFound
		}
		v.Rating, v.Comment, v.UpdatedAt = rating, comment, time.Now()
		r.s.votes[key] = v
		res = &v
		return nil
	})
	return res, err
}

func (r *memVotes) Get(ctx context.Context, voterID, teamID string) (*repository.Vote, error) {
	var res *repository.Vote
	err := r.s.do(ctx, func() error {
		v, ok := r.s.votes[voteKey(voterID, teamID)]
		if !ok {
			return repository.ErrNotFound
		}
		res = &v
		return nil
	})
	return res, err
}

func (r *memVotes) ListByVoter(ctx context.Context, voterID string) ([]*repository.Vote, error) {
	var res []*repository.Vote
	err := r.s.do(ctx, func() error {
		for _, key := range slices.Sorted(maps.Keys(r.s.votes)) {
			if v := r.s.votes[key]; v.VoterID == voterID {
				res = append(res, &v)
			}
		}
		return nil
	})
	return res, err
}

func (r *memVotes) Summary(ctx context.Context, teamID string) (*repository.TeamRatingSummary, error) {
	res := &repository.TeamRatingSummary{TeamID: teamID}
	err := r.s.do(ctx, func() error {
		sum := 0
		for _, v := range r.s.votes {
			if v.TeamID == teamID {
				res.Votes++
				sum += v.Rating
			}
		}
		if res.Votes > 0 {
			res.Average = float64(sum) / float64(res.Votes)
		}
		return nil
	})
	return res, err
}

type memSources struct{ s *memStore }

func (r *memSources) SumGradedScores(ctx context.Context, userID string) (int, error) {
	var res int
	err := r.s.do(ctx, func() error {
		res = r.s.graded[userID]
		return r.s.sourceErr
	})
	return res, err
}

func (r *memSources) CountPresent(ctx context.Context, userID string) (int, error) {
	var res int
	err := r.s.do(ctx, func() error {
		res = r.s.present[userID]
		return r.s.sourceErr
	})
	return res, err
}
