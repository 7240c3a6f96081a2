package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/roster-go/internal/domain"
	"github.com/kirinyoku/roster-go/internal/signature"
)

type CatalogRepo struct {
	store *Store
}

const eventColumns = `COALESCE(name, ''), COALESCE(activity_type, ''), COALESCE(venue, ''),
	COALESCE(age_group, ''), COALESCE(time_window, ''), COALESCE(season, ''),
	COALESCE(city, ''), COALESCE(region, ''), COALESCE(girls_only, FALSE),
	start_date, end_date, COALESCE(capacity, 0)`

// Product retrieves the event attributes of a catalog product.
//
// Returns:
//   - domain.EventAttributes: the product's attributes.
//   - error: repository.ErrNotFound if the product does not exist.
func (r *CatalogRepo) Product(ctx context.Context, id int64) (domain.EventAttributes, error) {
	const op = "postgres.CatalogRepo.Product"

	a := domain.EventAttributes{ProductID: id}
	row := r.store.handle(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM products WHERE id = $1`,
		id,
	)
	if err := scanEvent(row, &a); err != nil {
		return domain.EventAttributes{}, wrapDBErr(op, err)
	}

	return a, nil
}

// Variation retrieves a product variation. Unset columns stay blank so the
// caller can merge them over the parent product.
func (r *CatalogRepo) Variation(ctx context.Context, id int64) (domain.EventAttributes, error) {
	const op = "postgres.CatalogRepo.Variation"

	a := domain.EventAttributes{VariationID: id}
	row := r.store.handle(ctx).QueryRow(ctx,
		`SELECT product_id, `+eventColumns+` FROM product_variations WHERE id = $1`,
		id,
	)

	var start, end *time.Time
	err := row.Scan(
		&a.ProductID, &a.ProductName, &a.ActivityType, &a.Venue,
		&a.AgeGroup, &a.TimeWindow, &a.Season,
		&a.City, &a.Region, &a.GirlsOnly,
		&start, &end, &a.Capacity,
	)
	if err != nil {
		return domain.EventAttributes{}, wrapDBErr(op, err)
	}
	setDates(&a, start, end)

	return a, nil
}

// LocaleAliases loads the catalog's translation sets for venue, city and
// region names.
func (r *CatalogRepo) LocaleAliases(ctx context.Context) ([]signature.Alias, error) {
	const op = "postgres.CatalogRepo.LocaleAliases"

	rows, err := r.store.handle(ctx).Query(ctx,
		`SELECT canonical, array_agg(alternate ORDER BY alternate)
		 FROM locale_aliases
		 GROUP BY canonical
		 ORDER BY canonical`,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (signature.Alias, error) {
		var a signature.Alias
		err := row.Scan(&a.Canonical, &a.Alternates)
		return a, err
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func scanEvent(row pgx.Row, a *domain.EventAttributes) error {
	var start, end *time.Time
	err := row.Scan(
		&a.ProductName, &a.ActivityType, &a.Venue,
		&a.AgeGroup, &a.TimeWindow, &a.Season,
		&a.City, &a.Region, &a.GirlsOnly,
		&start, &end, &a.Capacity,
	)
	if err != nil {
		return err
	}
	setDates(a, start, end)
	return nil
}

func setDates(a *domain.EventAttributes, start, end *time.Time) {
	if start != nil {
		a.StartDate = start.UTC()
	}
	if end != nil {
		a.EndDate = end.UTC()
	}
}
