package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/cohort-engine/internal/db"
)

type Resource struct {
	ID            string `db:"id"`
	Title         string `db:"title"`
	Description   string `db:"description"`
	MaxTeams      int    `db:"max_teams"`
	SelectedCount int    `db:"selected_count"`
}

type ResourceRepository interface {
	Create(ctx context.Context, r *Resource) error
	Get(ctx context.Context, resourceID string) (*Resource, error)
	List(ctx context.Context) ([]*Resource, error)
	// Acquire increments the selection counter only while it is below max_teams.
	// Returns ErrAtCapacity when the committed counter is already at the cap.
	Acquire(ctx context.Context, resourceID string) (*Resource, error)
	Release(ctx context.Context, resourceID string) (*Resource, error)
}

var resourceColumns = []any{"id", "title", "description", "max_teams", "selected_count"}

type pgxResourceRepository struct {
	pool *pgxpool.Pool
}

func NewPgxResourceRepository(pool *pgxpool.Pool) ResourceRepository {
	return &pgxResourceRepository{pool: pool}
}

func scanResource(row pgx.Row) (*Resource, error) {
	r := &Resource{}
	if err := row.Scan(&r.ID, &r.Title, &r.Description, &r.MaxTeams, &r.SelectedCount); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *pgxResourceRepository) Create(ctx context.Context, r *Resource) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("problem_statements", "id", "title", "description", "max_teams"),
		im.Values(psql.Arg(r.ID), psql.Arg(r.Title), psql.Arg(r.Description), psql.Arg(r.MaxTeams)),
		im.Returning("selected_count"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	return mapError(e.QueryRow(ctx, sql, args...).Scan(&r.SelectedCount))
}

func (p *pgxResourceRepository) Get(ctx context.Context, resourceID string) (*Resource, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(resourceColumns...),
		sm.From("problem_statements"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(resourceID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	r, err := scanResource(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (p *pgxResourceRepository) List(ctx context.Context) ([]*Resource, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(resourceColumns...),
		sm.From("problem_statements"),
		sm.OrderBy("title"),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Resource, error) {
		return scanResource(row)
	})
}

func (p *pgxResourceRepository) Acquire(ctx context.Context, resourceID string) (*Resource, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	// Under READ COMMITTED a concurrent updater blocks on the row and the
	// WHERE clause is re-checked against the committed counter.
	q := psql.Update(
		um.Table("problem_statements"),
		um.SetCol("selected_count").To(psql.Raw("selected_count + 1")),
		um.Where(
			psql.Quote("id").EQ(psql.Arg(resourceID)).
				And(psql.Quote("selected_count").LT(psql.Quote("max_teams"))),
		),
		um.Returning(resourceColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	r, err := scanResource(e.QueryRow(ctx, sql, args...))
	if err == nil {
		return r, nil
	}

	// Only a plain no-rows result leaves the transaction usable for the lookup.
	err = mapError(err)
	if err != ErrNotFound {
		return nil, err
	}

	// No row updated: either the resource is missing or it is full.
	if _, err = p.Get(ctx, resourceID); err != nil {
		return nil, err
	}
	return nil, ErrAtCapacity
}

func (p *pgxResourceRepository) Release(ctx context.Context, resourceID string) (*Resource, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("problem_statements"),
		um.SetCol("selected_count").To(psql.Raw("selected_count - 1")),
		um.Where(
			psql.Quote("id").EQ(psql.Arg(resourceID)).
				And(psql.Quote("selected_count").GT(psql.Arg(0))),
		),
		um.Returning(resourceColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	r, err := scanResource(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}
