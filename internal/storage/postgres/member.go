package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/stockorder/internal/domain/member"
)

const (
	getMemberByIDSQL = `SELECT id, name, grade FROM members WHERE id = $1`

	upsertMemberSQL = `INSERT INTO members (id, name, grade) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, grade = EXCLUDED.grade`
)

var _ member.Repository = (*MemberRepository)(nil)

// MemberRepository implements member.Repository backed by PostgreSQL.
type MemberRepository struct {
	pool *pgxpool.Pool
}

func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (*member.Member, error) {
	rows, err := r.pool.Query(ctx, getMemberByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get member %q", id)
	}

	m, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (member.Member, error) {
		var m member.Member
		err := row.Scan(&m.ID, &m.Name, &m.Grade)
		return m, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, member.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get member %q", id)
	}
	return &m, nil
}

// Upsert inserts or replaces a member.
func (r *MemberRepository) Upsert(ctx context.Context, m member.Member) error {
	if _, err := r.pool.Exec(ctx, upsertMemberSQL, m.ID, m.Name, string(m.Grade)); err != nil {
		return errors.Wrapf(err, "upsert member %q", m.ID)
	}
	return nil
}
