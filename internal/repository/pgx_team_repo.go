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

type Team struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	LeaderID    string    `db:"leader_id"`
	ResourceID  *string   `db:"resource_id"`
	MaxMembers  int       `db:"max_members"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type TeamPatch struct {
	ID          string  `db:"id"`
	Name        *string `db:"name"`
	Description *string `db:"description"`
	LeaderID    *string `db:"leader_id"`
	IsActive    *bool   `db:"is_active"`
}

type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, teamID string) (*Team, error)
	// GetForUpdate locks the team row; it is the first lock taken by every membership mutation.
	GetForUpdate(ctx context.Context, teamID string) (*Team, error)
	// NameTaken reports whether an active team other than excludeID uses name, ignoring case.
	NameTaken(ctx context.Context, name, excludeID string) (bool, error)
	Patch(ctx context.Context, patch *TeamPatch) (*Team, error)
	SetResource(ctx context.Context, teamID string, resourceID *string) error
	ListActive(ctx context.Context) ([]*Team, error)
	ListActiveByResource(ctx context.Context, resourceID string) ([]string, error)
}

var teamColumns = []any{"id", "name", "description", "leader_id", "resource_id", "max_members", "is_active", "created_at", "updated_at"}

type pgxTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

func scanTeam(row pgx.Row) (*Team, error) {
	t := &Team{}
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Description,
		&t.LeaderID,
		&t.ResourceID,
		&t.MaxMembers,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("teams", "id", "name", "description", "leader_id", "max_members", "is_active"),
		im.Values(
			psql.Arg(team.ID),
			psql.Arg(team.Name),
			psql.Arg(team.Description),
			psql.Arg(team.LeaderID),
			psql.Arg(team.MaxMembers),
			psql.Arg(true),
		),
		im.Returning("is_active", "created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	err = e.QueryRow(ctx, sql, args...).Scan(&team.IsActive, &team.CreatedAt, &team.UpdatedAt)
	return mapError(err)
}

func (p *pgxTeamRepository) Get(ctx context.Context, teamID string) (*Team, error) {
	return p.get(ctx, teamID, false)
}

func (p *pgxTeamRepository) GetForUpdate(ctx context.Context, teamID string) (*Team, error) {
	return p.get(ctx, teamID, true)
}

func (p *pgxTeamRepository) get(ctx context.Context, teamID string, forUpdate bool) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(teamColumns...),
		sm.From("teams"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
	)
	if forUpdate {
		q.Apply(sm.ForUpdate("teams"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	team, err := scanTeam(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return team, nil
}

func (p *pgxTeamRepository) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	where := psql.Raw("lower(name) = lower(?)", name).And(psql.Quote("is_active"))
	if excludeID != "" {
		where = where.And(psql.Quote("id").NE(psql.Arg(excludeID)))
	}

	q := psql.Select(
		sm.Columns(psql.Raw("count(*) > 0")),
		sm.From("teams"),
		sm.Where(where),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return false, err
	}

	var taken bool
	if err = e.QueryRow(ctx, sql, args...).Scan(&taken); err != nil {
		return false, mapError(err)
	}
	return taken, nil
}

func (p *pgxTeamRepository) Patch(ctx context.Context, patch *TeamPatch) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 5)
	if patch.Name != nil {
		sets = append(sets, um.SetCol("name").ToArg(*patch.Name))
	}
	if patch.Description != nil {
		sets = append(sets, um.SetCol("description").ToArg(*patch.Description))
	}
	if patch.LeaderID != nil {
		sets = append(sets, um.SetCol("leader_id").ToArg(*patch.LeaderID))
	}
	if patch.IsActive != nil {
		sets = append(sets, um.SetCol("is_active").ToArg(*patch.IsActive))
	}
	sets = append(sets, um.SetCol("updated_at").To(psql.Raw("now()")))

	q := psql.Update(
		um.Table("teams"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(teamColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	team, err := scanTeam(e.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return team, nil
}

func (p *pgxTeamRepository) SetResource(ctx context.Context, teamID string, resourceID *string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("teams"),
		um.SetCol("resource_id").ToArg(resourceID),
		um.SetCol("updated_at").To(psql.Raw("now()")),
		um.Where(psql.Quote("id").EQ(psql.Arg(teamID))),
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

func (p *pgxTeamRepository) ListActive(ctx context.Context) ([]*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(teamColumns...),
		sm.From("teams"),
		sm.Where(psql.Quote("is_active")),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Team, error) {
		return scanTeam(row)
	})
}

func (p *pgxTeamRepository) ListActiveByResource(ctx context.Context, resourceID string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id"),
		sm.From("teams"),
		sm.Where(psql.Quote("resource_id").EQ(psql.Arg(resourceID)).And(psql.Quote("is_active"))),
		sm.OrderBy("id"),
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
