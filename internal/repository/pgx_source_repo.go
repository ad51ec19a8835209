package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/yakoovad/cohort-engine/internal/db"
)

// SubmissionRepository reads graded submissions owned by the grading collaborator.
type SubmissionRepository interface {
	SumGradedScores(ctx context.Context, userID string) (int, error)
}

// AttendanceRepository reads attendance records owned by the attendance collaborator.
type AttendanceRepository interface {
	CountPresent(ctx context.Context, userID string) (int, error)
}

type pgxSubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewPgxSubmissionRepository(pool *pgxpool.Pool) SubmissionRepository {
	return &pgxSubmissionRepository{pool: pool}
}

func (p *pgxSubmissionRepository) SumGradedScores(ctx context.Context, userID string) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(psql.Raw("coalesce(sum(score), 0)")),
		sm.From("submissions"),
		sm.Where(
			psql.Quote("user_id").EQ(psql.Arg(userID)).
				And(psql.Quote("graded_at").IsNotNull()).
				And(psql.Quote("score").IsNotNull()).
				And(psql.Quote("deleted_at").IsNull()),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	var sum int64
	if err = e.QueryRow(ctx, sql, args...).Scan(&sum); err != nil {
		return 0, mapError(err)
	}
	return int(sum), nil
}

type pgxAttendanceRepository struct {
	pool *pgxpool.Pool
}

func NewPgxAttendanceRepository(pool *pgxpool.Pool) AttendanceRepository {
	return &pgxAttendanceRepository{pool: pool}
}

func (p *pgxAttendanceRepository) CountPresent(ctx context.Context, userID string) (int, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(psql.Raw("count(*)")),
		sm.From("attendance"),
		sm.Where(
			psql.Quote("user_id").EQ(psql.Arg(userID)).
				And(psql.Quote("status").EQ(psql.Arg("present"))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err = e.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return int(count), nil
}
