package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/roster-go/internal/domain"
)

type PlayerRepo struct {
	store *Store
}

// GetPlayersByOwner lists a customer's stored player profiles in creation
// order; assignment indexes on line items refer to this order.
func (r *PlayerRepo) GetPlayersByOwner(ctx context.Context, ownerID int64) ([]domain.PlayerProfile, error) {
	const op = "postgres.PlayerRepo.GetPlayersByOwner"

	rows, err := r.store.handle(ctx).Query(ctx,
		`SELECT id, owner_id, first_name, last_name,
		        COALESCE(to_char(birth_date, 'YYYY-MM-DD'), ''),
		        COALESCE(gender, ''), COALESCE(medical, ''), COALESCE(dietary, '')
		 FROM player_profiles
		 WHERE owner_id = $1
		 ORDER BY id`,
		ownerID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	players, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PlayerProfile, error) {
		var p domain.PlayerProfile
		err := row.Scan(&p.ID, &p.OwnerID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender, &p.Medical, &p.Dietary)
		return p, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return players, nil
}
