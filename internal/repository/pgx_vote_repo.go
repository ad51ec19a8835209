package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/cohort-engine/internal/db"
)

type Vote struct {
	ID        string    `db:"id"`
	VoterID   string    `db:"voter_id"`
	TeamID    string    `db:"team_id"`
	Rating    int       `db:"rating"`
	Comment   string    `db:"comment"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type TeamRatingSummary struct {
	TeamID  string  `db:"team_id"`
	Votes   int     `db:"votes"`
	Average float64 `db:"average"`
}

type VoteRepository interface {
	// Create returns ErrAlreadyExists when (voter, team) already has a vote.
	Create(ctx context.Context, vote *Vote) error
	Update(ctx context.Context, voterID, teamID string, rating int, comment string) (*Vote, error)
	Get(ctx context.Context, voterID, teamID string) (*Vote, error)
	ListByVoter(ctx context.Context, voterID string) ([]*Vote, error)
	Summary(ctx context.Context, teamID string) (*TeamRatingSummary, error)
}

var voteColumns = []any{"id", "voter_id", "team_id", "rating", "comment", "created_at", "updated_at"}

type pgxVoteRepository struct {
	pool *pgxpool.Pool
}

func NewPgxVoteRepository(pool *pgxpool.Pool) VoteRepository {
	return &pgxVoteRepository{pool: pool}
}

func scanVote(row pgx.Row) (*Vote, error) {
	v := &Vote{}
	if err := row.Scan(&v.ID, &v.VoterID, &v.TeamID, &v.Rating, &v.Comment, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *pgxVoteRepository) Create(ctx context.Context, vote *Vote) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("votes", "id", "voter_id", "team_id", "rating", "comment"),
		im.Values(
			psql.Arg(vote.ID),
			psql.Arg(vote.VoterID),
			psql.Arg(vote.TeamID),
			psql.Arg(vote.Rating),
			psql.Arg(vote.Comment),
		),
		im.Returning("created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	return mapError(e.QueryRow(ctx, sql, args...).Scan(&vote.CreatedAt, &vote.UpdatedAt))
}

func (p *pgxVoteRepository) Update(ctx context.Context, voterID, teamID string, rating int, comment string) (*Vote, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("votes"),
		um.SetCol("rating").ToArg(rating),
		um.SetCol("comment").ToArg(comment),
		um.SetCol("updated_at").To(psql.Raw("now()")),
		um.Where(
			psql.Quote("voter_id").EQ(psql.Arg(voterID)).
				And(psql.Quote("team_id").EQ(psql.Arg(teamID))),
		),
		um.Returning(voteColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	v, err := scanVote(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

func (p *pgxVoteRepository) Get(ctx context.Context, voterID, teamID string) (*Vote, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(voteColumns...),
		sm.From("votes"),
		sm.Where(
			psql.Quote("voter_id").EQ(psql.Arg(voterID)).
				And(psql.Quote("team_id").EQ(psql.Arg(teamID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	v, err := scanVote(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return v, nil
}

func (p *pgxVoteRepository) ListByVoter(ctx context.Context, voterID string) ([]*Vote, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(voteColumns...),
		sm.From("votes"),
		sm.Where(psql.Quote("voter_id").EQ(psql.Arg(voterID))),
		sm.OrderBy("created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Vote, error) {
		return scanVote(row)
	})
}

func (p *pgxVoteRepository) Summary(ctx context.Context, teamID string) (*TeamRatingSummary, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(psql.Raw("count(*)"), psql.Raw("coalesce(avg(rating), 0)::float8")),
		sm.From("votes"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	s := &TeamRatingSummary{TeamID: teamID}
	if err = e.QueryRow(ctx, sql, args...).Scan(&s.Votes, &s.Average); err != nil {
		return nil, mapError(err)
	}
	return s, nil
}
