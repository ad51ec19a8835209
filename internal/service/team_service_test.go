package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yakoovad/cohort-engine/internal/model"
	"github.com/yakoovad/cohort-engine/internal/repository"
)

func strPtr(s string) *string {
	return &s
}

func activeTeam(id, leaderID string) *repository.Team {
	return &repository.Team{ID: id, Name: "Alpha", LeaderID: leaderID, MaxMembers: model.MaxTeamMembers, IsActive: true}
}

func teamMembers(teamID, leaderID string, others ...string) []*repository.Member {
	res := []*repository.Member{{TeamID: teamID, UserID: leaderID, Role: model.RoleLeader}}
	for _, id := range others {
		res = append(res, &repository.Member{TeamID: teamID, UserID: id, Role: model.RoleMember})
	}
	return res
}

func TestTeamService_CreateTeam(t *testing.T) {
	tests := []struct {
		name       string
		teamName   string
		setupMocks func(*MockUserRepository, *MockTeamRepository, *MockMemberRepository)
		errorCode  ErrorCode
	}{
		{
			name:     "success",
			teamName: "Alpha",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", Username: "lea"}, nil)
				tr.On("NameTaken", mock.Anything, "Alpha", "").Return(false, nil)
				tr.On("Create", mock.Anything, mock.MatchedBy(func(t *repository.Team) bool {
					return t.ID == "t1" && t.Name == "Alpha" && t.LeaderID == "leader" && t.MaxMembers == model.MaxTeamMembers
				})).Return(nil)
				mr.On("Add", mock.Anything, mock.MatchedBy(func(m *repository.Member) bool {
					return m.UserID == "leader" && m.Role == model.RoleLeader
				})).Return(nil)
				ur.On("SetTeam", mock.Anything, "leader", strPtr("t1")).Return(nil)
			},
		},
		{
			name:     "duplicate name is checked before membership",
			teamName: "alpha",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", TeamID: strPtr("other")}, nil)
				tr.On("NameTaken", mock.Anything, "alpha", "").Return(true, nil)
			},
			errorCode: ErrorCodeDuplicateName,
		},
		{
			name:     "leader already teamed",
			teamName: "Alpha",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", TeamID: strPtr("other")}, nil)
				tr.On("NameTaken", mock.Anything, "Alpha", "").Return(false, nil)
			},
			errorCode: ErrorCodeAlreadyTeamed,
		},
		{
			name:     "unknown leader",
			teamName: "Alpha",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				ur.On("GetForUpdate", mock.Anything, "leader").Return(nil, repository.ErrNotFound)
			},
			errorCode: ErrorCodeNotFound,
		},
		{
			name:     "name race lost on insert",
			teamName: "Alpha",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader"}, nil)
				tr.On("NameTaken", mock.Anything, "Alpha", "").Return(false, nil)
				tr.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			errorCode: ErrorCodeDuplicateName,
		},
		{
			name:     "member insert failure",
			teamName: "Alpha",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader"}, nil)
				tr.On("NameTaken", mock.Anything, "Alpha", "").Return(false, nil)
				tr.On("Create", mock.Anything, mock.Anything).Return(nil)
				mr.On("Add", mock.Anything, mock.Anything).Return(errors.New("db error"))
			},
			errorCode: ErrorCodeUnspecified,
		},
		{
			name:       "blank name",
			teamName:   "   ",
			setupMocks: func(*MockUserRepository, *MockTeamRepository, *MockMemberRepository) {},
			errorCode:  ErrorCodeInvalidBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := new(MockUserRepository)
			mockTeamRepo := new(MockTeamRepository)
			mockMemberRepo := new(MockMemberRepository)
			tt.setupMocks(mockUserRepo, mockTeamRepo, mockMemberRepo)

			service := NewTeamService(new(MockTransactor)).
				WithUserRepo(mockUserRepo).
				WithTeamRepo(mockTeamRepo).
				WithMemberRepo(mockMemberRepo).
				WithIDGenerator(func() string { return "t1" })

			got, err := service.CreateTeam(context.Background(), "leader", tt.teamName, "")

			if tt.errorCode != "" {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				require.Nil(t, err)
				assert.Equal(t, "t1", got.ID)
				require.NotNil(t, got.Leader())
				assert.Equal(t, "leader", got.Leader().UserID)
				assert.Len(t, got.Members, 1)
			}

			mockUserRepo.AssertExpectations(t)
			mockTeamRepo.AssertExpectations(t)
			mockMemberRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_JoinTeam(t *testing.T) {
	full := teamMembers("t1", "leader", "m1", "m2", "m3", "m4", "m5")

	tests := []struct {
		name       string
		setupMocks func(*MockUserRepository, *MockTeamRepository, *MockMemberRepository)
		errorCode  ErrorCode
	}{
		{
			name: "success",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				ur.On("GetForUpdate", mock.Anything, "joiner").Return(&repository.User{ID: "joiner"}, nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader"), nil)
				mr.On("Add", mock.Anything, mock.MatchedBy(func(m *repository.Member) bool {
					return m.UserID == "joiner" && m.Role == model.RoleMember
				})).Return(nil)
				ur.On("SetTeam", mock.Anything, "joiner", strPtr("t1")).Return(nil)
			},
		},
		{
			name: "already teamed wins over missing team",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(nil, repository.ErrNotFound)
				ur.On("GetForUpdate", mock.Anything, "joiner").Return(&repository.User{ID: "joiner", TeamID: strPtr("t2")}, nil)
			},
			errorCode: ErrorCodeAlreadyTeamed,
		},
		{
			name: "team not found",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(nil, repository.ErrNotFound)
				ur.On("GetForUpdate", mock.Anything, "joiner").Return(&repository.User{ID: "joiner"}, nil)
			},
			errorCode: ErrorCodeNotFound,
		},
		{
			// The user row is never touched once the transaction is aborted.
			name: "malformed team id",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(nil, repository.ErrMalformedID)
			},
			errorCode: ErrorCodeNotFound,
		},
		{
			name: "inactive team",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				team := activeTeam("t1", "leader")
				team.IsActive = false
				tr.On("GetForUpdate", mock.Anything, "t1").Return(team, nil)
				ur.On("GetForUpdate", mock.Anything, "joiner").Return(&repository.User{ID: "joiner"}, nil)
			},
			errorCode: ErrorCodeNotFound,
		},
		{
			name: "team full",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				ur.On("GetForUpdate", mock.Anything, "joiner").Return(&repository.User{ID: "joiner"}, nil)
				mr.On("List", mock.Anything, "t1").Return(full, nil)
			},
			errorCode: ErrorCodeFull,
		},
		{
			name: "stale member row",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				ur.On("GetForUpdate", mock.Anything, "joiner").Return(&repository.User{ID: "joiner"}, nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "joiner"), nil)
			},
			errorCode: ErrorCodeAlreadyMember,
		},
		{
			name: "lock failure",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(nil, context.DeadlineExceeded)
			},
			errorCode: ErrorCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := new(MockUserRepository)
			mockTeamRepo := new(MockTeamRepository)
			mockMemberRepo := new(MockMemberRepository)
			tt.setupMocks(mockUserRepo, mockTeamRepo, mockMemberRepo)

			service := NewTeamService(new(MockTransactor)).
				WithUserRepo(mockUserRepo).
				WithTeamRepo(mockTeamRepo).
				WithMemberRepo(mockMemberRepo)

			got, err := service.JoinTeam(context.Background(), "t1", "joiner")

			if tt.errorCode != "" {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				require.Nil(t, err)
				assert.Len(t, got.Members, 2)
				assert.NotNil(t, got.Member("joiner"))
			}

			mockUserRepo.AssertExpectations(t)
			mockTeamRepo.AssertExpectations(t)
			mockMemberRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_LeaveTeam(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		transferTo *string
		setupMocks func(*MockUserRepository, *MockTeamRepository, *MockMemberRepository, *MockResourceRepository)
		errorCode  ErrorCode
		dissolved  bool
	}{
		{
			name:   "member leaves",
			userID: "m1",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository, rr *MockResourceRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "m1"), nil)
				ur.On("GetForUpdate", mock.Anything, "m1").Return(&repository.User{ID: "m1", TeamID: strPtr("t1")}, nil)
				mr.On("Remove", mock.Anything, "t1", "m1").Return(nil)
				ur.On("SetTeam", mock.Anything, "m1", (*string)(nil)).Return(nil)
			},
		},
		{
			name:   "leader without successor",
			userID: "leader",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository, rr *MockResourceRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "m1"), nil)
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", TeamID: strPtr("t1")}, nil)
			},
			errorCode: ErrorCodeLeadershipTransferRequired,
		},
		{
			name:       "leader names an outsider",
			userID:     "leader",
			transferTo: strPtr("stranger"),
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository, rr *MockResourceRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "m1"), nil)
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", TeamID: strPtr("t1")}, nil)
			},
			errorCode: ErrorCodeInvalidTransferTarget,
		},
		{
			name:       "leader names themselves",
			userID:     "leader",
			transferTo: strPtr("leader"),
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository, rr *MockResourceRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "m1"), nil)
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", TeamID: strPtr("t1")}, nil)
			},
			errorCode: ErrorCodeInvalidTransferTarget,
		},
		{
			name:       "leader hands over",
			userID:     "leader",
			transferTo: strPtr("m1"),
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository, rr *MockResourceRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "m1"), nil)
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", TeamID: strPtr("t1")}, nil)
				mr.On("Remove", mock.Anything, "t1", "leader").Return(nil)
				mr.On("SetRole", mock.Anything, "t1", "m1", model.RoleLeader).Return(nil)
				tr.On("Patch", mock.Anything, &repository.TeamPatch{ID: "t1", LeaderID: strPtr("m1")}).Return(activeTeam("t1", "m1"), nil)
				ur.On("SetTeam", mock.Anything, "leader", (*string)(nil)).Return(nil)
			},
		},
		{
			name:   "sole leader dissolves team and frees statement",
			userID: "leader",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository, rr *MockResourceRepository) {
				team := activeTeam("t1", "leader")
				team.ResourceID = strPtr("r1")
				tr.On("GetForUpdate", mock.Anything, "t1").Return(team, nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader"), nil)
				ur.On("GetForUpdate", mock.Anything, "leader").Return(&repository.User{ID: "leader", TeamID: strPtr("t1")}, nil)
				mr.On("Remove", mock.Anything, "t1", "leader").Return(nil)
				rr.On("Release", mock.Anything, "r1").Return(&repository.Resource{ID: "r1"}, nil)
				tr.On("SetResource", mock.Anything, "t1", (*string)(nil)).Return(nil)
				inactive := false
				tr.On("Patch", mock.Anything, &repository.TeamPatch{ID: "t1", IsActive: &inactive}).Return(team, nil)
				ur.On("SetTeam", mock.Anything, "leader", (*string)(nil)).Return(nil)
			},
			dissolved: true,
		},
		{
			name:   "not a member",
			userID: "stranger",
			setupMocks: func(ur *MockUserRepository, tr *MockTeamRepository, mr *MockMemberRepository, rr *MockResourceRepository) {
				tr.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader"), nil)
			},
			errorCode: ErrorCodeNotMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := new(MockUserRepository)
			mockTeamRepo := new(MockTeamRepository)
			mockMemberRepo := new(MockMemberRepository)
			mockResourceRepo := new(MockResourceRepository)
			tt.setupMocks(mockUserRepo, mockTeamRepo, mockMemberRepo, mockResourceRepo)

			tx := new(MockTransactor)
			allocator := NewResourceService(tx).WithTeamRepo(mockTeamRepo).WithResourceRepo(mockResourceRepo)
			service := NewTeamService(tx).
				WithUserRepo(mockUserRepo).
				WithTeamRepo(mockTeamRepo).
				WithMemberRepo(mockMemberRepo).
				WithAllocator(allocator)

			got, err := service.LeaveTeam(context.Background(), "t1", tt.userID, tt.transferTo)

			switch {
			case tt.errorCode != "":
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
			case tt.dissolved:
				require.Nil(t, err)
				assert.Nil(t, got)
			default:
				require.Nil(t, err)
				require.NotNil(t, got)
				assert.Nil(t, got.Member(tt.userID))
				require.NotNil(t, got.Leader())
				assert.Equal(t, got.LeaderID, got.Leader().UserID)
			}

			mockUserRepo.AssertExpectations(t)
			mockTeamRepo.AssertExpectations(t)
			mockMemberRepo.AssertExpectations(t)
			mockResourceRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_RemoveMember(t *testing.T) {
	tests := []struct {
		name       string
		actor      string
		target     string
		setupMocks func(*MockUserRepository, *MockMemberRepository)
		errorCode  ErrorCode
	}{
		{
			name:   "leader removes member",
			actor:  "leader",
			target: "m1",
			setupMocks: func(ur *MockUserRepository, mr *MockMemberRepository) {
				ur.On("GetForUpdate", mock.Anything, "m1").Return(&repository.User{ID: "m1"}, nil)
				mr.On("Remove", mock.Anything, "t1", "m1").Return(nil)
				ur.On("SetTeam", mock.Anything, "m1", (*string)(nil)).Return(nil)
			},
		},
		{
			name:       "member cannot remove",
			actor:      "m1",
			target:     "m1",
			setupMocks: func(*MockUserRepository, *MockMemberRepository) {},
			errorCode:  ErrorCodeForbidden,
		},
		{
			name:       "leader cannot remove self",
			actor:      "leader",
			target:     "leader",
			setupMocks: func(*MockUserRepository, *MockMemberRepository) {},
			errorCode:  ErrorCodeCannotRemoveLeader,
		},
		{
			name:       "target not on team",
			actor:      "leader",
			target:     "stranger",
			setupMocks: func(*MockUserRepository, *MockMemberRepository) {},
			errorCode:  ErrorCodeNotMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := new(MockUserRepository)
			mockTeamRepo := new(MockTeamRepository)
			mockMemberRepo := new(MockMemberRepository)
			mockTeamRepo.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
			mockMemberRepo.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "m1"), nil)
			tt.setupMocks(mockUserRepo, mockMemberRepo)

			service := NewTeamService(new(MockTransactor)).
				WithUserRepo(mockUserRepo).
				WithTeamRepo(mockTeamRepo).
				WithMemberRepo(mockMemberRepo)

			got, err := service.RemoveMember(context.Background(), "t1", tt.actor, tt.target)

			if tt.errorCode != "" {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
			} else {
				require.Nil(t, err)
				assert.Len(t, got.Members, 1)
			}
			mockUserRepo.AssertExpectations(t)
			mockMemberRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_GetTeam(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockTeamRepository, *MockMemberRepository)
		errorCode  ErrorCode
	}{
		{
			name: "success",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("Get", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader", "m1"), nil)
			},
		},
		{
			name: "team not found",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("Get", mock.Anything, "t1").Return(nil, repository.ErrNotFound)
			},
			errorCode: ErrorCodeNotFound,
		},
		{
			name: "disbanded team is hidden",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository) {
				team := activeTeam("t1", "leader")
				team.IsActive = false
				tr.On("Get", mock.Anything, "t1").Return(team, nil)
			},
			errorCode: ErrorCodeNotFound,
		},
		{
			name: "get members failure",
			setupMocks: func(tr *MockTeamRepository, mr *MockMemberRepository) {
				tr.On("Get", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
				mr.On("List", mock.Anything, "t1").Return(nil, errors.New("db error"))
			},
			errorCode: ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTeamRepo := new(MockTeamRepository)
			mockMemberRepo := new(MockMemberRepository)
			tt.setupMocks(mockTeamRepo, mockMemberRepo)

			service := NewTeamService(new(MockTransactor)).
				WithTeamRepo(mockTeamRepo).
				WithMemberRepo(mockMemberRepo)

			got, err := service.GetTeam(context.Background(), "t1")

			if tt.errorCode != "" {
				require.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				require.Nil(t, err)
				assert.Equal(t, "t1", got.ID)
				assert.Len(t, got.Members, 2)
			}

			mockTeamRepo.AssertExpectations(t)
			mockMemberRepo.AssertExpectations(t)
		})
	}
}

func TestTeamService_PublishesAfterCommit(t *testing.T) {
	mockUserRepo := new(MockUserRepository)
	mockTeamRepo := new(MockTeamRepository)
	mockMemberRepo := new(MockMemberRepository)
	publisher := new(MockPublisher)

	mockTeamRepo.On("GetForUpdate", mock.Anything, "t1").Return(activeTeam("t1", "leader"), nil)
	mockUserRepo.On("GetForUpdate", mock.Anything, "joiner").Return(&repository.User{ID: "joiner"}, nil)
	mockMemberRepo.On("List", mock.Anything, "t1").Return(teamMembers("t1", "leader"), nil)
	mockMemberRepo.On("Add", mock.Anything, mock.Anything).Return(nil)
	mockUserRepo.On("SetTeam", mock.Anything, "joiner", mock.Anything).Return(nil)
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e *model.OutboundEvent) bool {
		return e.Type == model.EventTeamChanged && e.TeamID == "t1" && !e.At.IsZero()
	})).Return(errors.New("bus down"))

	service := NewTeamService(new(MockTransactor)).
		WithUserRepo(mockUserRepo).
		WithTeamRepo(mockTeamRepo).
		WithMemberRepo(mockMemberRepo).
		WithPublisher(publisher)

	got, err := service.JoinTeam(context.Background(), "t1", "joiner")

	require.Nil(t, err, "publish failure must not fail a committed join")
	assert.Len(t, got.Members, 2)
	publisher.AssertExpectations(t)
}

func TestTeamService_GetUserTeamHasDeadline(t *testing.T) {
	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})

	mockUserRepo := new(MockUserRepository)
	mockTeamRepo := new(MockTeamRepository)
	mockMemberRepo := new(MockMemberRepository)
	mockUserRepo.On("Get", hasDeadline, "m1").Return(&repository.User{ID: "m1", TeamID: strPtr("t1")}, nil)
	mockTeamRepo.On("Get", hasDeadline, "t1").Return(activeTeam("t1", "leader"), nil)
	mockMemberRepo.On("List", hasDeadline, "t1").Return(teamMembers("t1", "leader", "m1"), nil)

	service := NewTeamService(new(MockTransactor)).
		WithUserRepo(mockUserRepo).
		WithTeamRepo(mockTeamRepo).
		WithMemberRepo(mockMemberRepo)

	got, err := service.GetUserTeam(context.Background(), "m1")
	require.Nil(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.NotNil(t, got.Member("m1"))

	mockUserRepo.AssertExpectations(t)
	mockTeamRepo.AssertExpectations(t)
	mockMemberRepo.AssertExpectations(t)
}
