package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/cohort-engine/internal/db"
	"github.com/yakoovad/cohort-engine/internal/model"
)

type Member struct {
	TeamID   string     `db:"team_id"`
	UserID   string     `db:"user_id"`
	Username string     `db:"username"`
	Role     model.Role `db:"role"`
	JoinedAt time.Time  `db:"joined_at"`
}

type MemberRepository interface {
	Add(ctx context.Context, member *Member) error
	Remove(ctx context.Context, teamID, userID string) error
	// RemoveAll drops every membership row of the team and returns the removed user ids.
	RemoveAll(ctx context.Context, teamID string) ([]string, error)
	SetRole(ctx context.Context, teamID, userID string, role model.Role) error
	// List returns members ordered by join time.
	List(ctx context.Context, teamID string) ([]*Member, error)
}

type pgxMemberRepository struct {
	pool *pgxpool.Pool
}

func NewPgxMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &pgxMemberRepository{pool: pool}
}

func (p *pgxMemberRepository) Add(ctx context.Context, member *Member) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("team_members", "team_id", "user_id", "role"),
		im.Values(psql.Arg(member.TeamID), psql.Arg(member.UserID), psql.Arg(member.Role)),
		im.Returning("joined_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&member.JoinedAt)
	return mapError(err)
}

func (p *pgxMemberRepository) Remove(ctx context.Context, teamID, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("team_members"),
		dm.Where(
			psql.Quote("team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		))

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxMemberRepository) RemoveAll(ctx context.Context, teamID string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("team_members"),
		dm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
		dm.Returning("user_id"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *pgxMemberRepository) SetRole(ctx context.Context, teamID, userID string, role model.Role) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("team_members"),
		um.SetCol("role").ToArg(role),
		um.Where(
			psql.Quote("team_id").EQ(psql.Arg(teamID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxMemberRepository) List(ctx context.Context, teamID string) ([]*Member, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("m.team_id", "m.user_id", "u.username", "m.role", "m.joined_at"),
		sm.From("team_members").As("m"),
		sm.InnerJoin("users").As("u").On(psql.Quote("u", "id").EQ(psql.Quote("m", "user_id"))),
		sm.Where(psql.Quote("m", "team_id").EQ(psql.Arg(teamID))),
		sm.OrderBy(psql.Quote("m", "joined_at")),
		sm.OrderBy(psql.Quote("m", "user_id")),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Member, error) {
		m := &Member{}
		if err = row.Scan(&m.TeamID, &m.UserID, &m.Username, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		return m, nil
	})
}
