package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/cohort-engine/internal/db"
)

type User struct {
	ID               string     `db:"id"`
	Username         string     `db:"username"`
	TeamID           *string    `db:"team_id"`
	AttendancePoints int        `db:"attendance_points"`
	TaskPoints       int        `db:"task_points"`
	TotalScore       int        `db:"total_score"`
	ScoreUpdatedAt   *time.Time `db:"score_updated_at"`
}

type UserScore struct {
	UserID           string `db:"id"`
	AttendancePoints int    `db:"attendance_points"`
	TaskPoints       int    `db:"task_points"`
	TotalScore       int    `db:"total_score"`
}

type UserFilter struct {
	TeamID *string
}

type lockMode int

const (
	lockNone lockMode = iota
	lockShare
	lockUpdate
)

type UserRepository interface {
	Get(ctx context.Context, userID string) (*User, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, userID string) (*User, error)
	GetForShare(ctx context.Context, userID string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]*User, error)
	Upsert(ctx context.Context, user *User) error
	SetTeam(ctx context.Context, userID string, teamID *string) error
	SetScore(ctx context.Context, score *UserScore) (*User, error)
}

var userColumns = []any{"id", "username", "team_id", "attendance_points", "task_points", "total_score", "score_updated_at"}

type pgxUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgxUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgxUserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.TeamID,
		&u.AttendancePoints,
		&u.TaskPoints,
		&u.TotalScore,
		&u.ScoreUpdatedAt,
	); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *pgxUserRepository) Get(ctx context.Context, userID string) (*User, error) {
	return p.get(ctx, userID, lockNone)
}

func (p *pgxUserRepository) GetForUpdate(ctx context.Context, userID string) (*User, error) {
	return p.get(ctx, userID, lockUpdate)
}

func (p *pgxUserRepository) GetForShare(ctx context.Context, userID string) (*User, error) {
	return p.get(ctx, userID, lockShare)
}

func (p *pgxUserRepository) get(ctx context.Context, userID string, lock lockMode) (*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(userColumns...),
		sm.From("users"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(userID))),
	)
	switch lock {
	case lockUpdate:
		q.Apply(sm.ForUpdate("users"))
	case lockShare:
		q.Apply(sm.ForShare("users"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	u, err := scanUser(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (p *pgxUserRepository) List(ctx context.Context, filter UserFilter) ([]*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(userColumns...),
		sm.From("users"),
		sm.OrderBy("id"),
	)
	if filter.TeamID != nil {
		q.Apply(sm.Where(psql.Quote("team_id").EQ(psql.Arg(*filter.TeamID))))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

func (p *pgxUserRepository) Upsert(ctx context.Context, user *User) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("users", "id", "username"),
		im.Values(psql.Arg(user.ID), psql.Arg(user.Username)),
		im.OnConflict(psql.Quote("id")).DoUpdate(
			im.SetCol("username").ToArg(user.Username),
		),
	)
	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return mapError(err)
	}

	return nil
}

func (p *pgxUserRepository) SetTeam(ctx context.Context, userID string, teamID *string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("users"),
		um.SetCol("team_id").ToArg(teamID),
		um.Where(psql.Quote("id").EQ(psql.Arg(userID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxUserRepository) SetScore(ctx context.Context, score *UserScore) (*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := []bob.Mod[*dialect.UpdateQuery]{
		um.SetCol("attendance_points").ToArg(score.AttendancePoints),
		um.SetCol("task_points").ToArg(score.TaskPoints),
		um.SetCol("total_score").ToArg(score.TotalScore),
		um.SetCol("score_updated_at").To(psql.Raw("now()")),
	}

	q := psql.Update(
		um.Table("users"),
		um.Where(psql.Quote("id").EQ(psql.Arg(score.UserID))),
		um.Returning(userColumns...),
	)
	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	u, err := scanUser(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}
