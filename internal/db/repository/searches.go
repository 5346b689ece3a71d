package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"tripstore/internal/domain"
)

// SearchRepo persists stored searches and favorite locations and
// implements domain.SearchStore.
type SearchRepo struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSearchRepo creates a SearchRepo on the write pool.
func NewSearchRepo(db *sql.DB, logger *slog.Logger) *SearchRepo {
	return &SearchRepo{db: db, logger: logger, now: time.Now}
}

// AddFavoriteLocation inserts or finds the favorite row for the location
// and bumps the use counter for the given slot. Coordinate-only
// locations are not worth remembering and return (0, nil).
func (r *SearchRepo) AddFavoriteLocation(ctx context.Context, network domain.NetworkID, l domain.Location, use domain.FavLocationType) (int64, error) {
	if l.Type == domain.LocationTypeCoord {
		return 0, nil
	}

	counter, ok := map[domain.FavLocationType]string{
		domain.FavLocationFrom: "fromCount",
		domain.FavLocationVia:  "viaCount",
		domain.FavLocationTo:   "toCount",
	}[use]
	if !ok {
		return 0, domain.ErrValidation("unknown favorite slot %q", use)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	uid, err := findFavorite(ctx, tx, network, l)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO favorite_locations (networkId, type, id, lat, lon, place, name, `+counter+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
			string(network), string(l.Type), nullString(l.ID), l.Lat, l.Lon,
			nullString(l.Place), nullString(l.Name))
		if err != nil {
			return 0, mapDBError(err)
		}
		if uid, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, mapDBError(err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE favorite_locations SET `+counter+` = `+counter+` + 1 WHERE uid = ?`, uid); err != nil {
			return 0, mapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uid, nil
}

// findFavorite matches by provider id when present, otherwise by the
// location's descriptive identity.
func findFavorite(ctx context.Context, tx *sql.Tx, network domain.NetworkID, l domain.Location) (int64, error) {
	var uid int64
	if l.HasID() {
		err := tx.QueryRowContext(ctx,
			`SELECT uid FROM favorite_locations WHERE networkId = ? AND id = ?`,
			string(network), l.ID).Scan(&uid)
		return uid, err
	}
	err := tx.QueryRowContext(ctx, `
		SELECT uid FROM favorite_locations
		WHERE networkId = ? AND id IS NULL AND lat = ? AND lon = ? AND place IS ? AND name IS ?`,
		string(network), l.Lat, l.Lon, nullString(l.Place), nullString(l.Name)).Scan(&uid)
	return uid, err
}

// StoreSearch inserts or refreshes the stored search for the given
// favorite location triple and returns its id. Refreshing bumps the use
// count and last-used timestamp.
func (r *SearchRepo) StoreSearch(ctx context.Context, network domain.NetworkID, fromID int64, viaID *int64, toID int64) (int64, error) {
	if fromID == 0 || toID == 0 {
		return 0, domain.ErrState("from and to must be stored favorites")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	now := r.now().UnixMilli()

	var uid int64
	err = tx.QueryRowContext(ctx, `
		SELECT uid FROM searches
		WHERE networkId = ? AND from_id = ? AND via_id IS ? AND to_id = ?`,
		string(network), fromID, nullInt64(viaID), toID).Scan(&uid)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO searches (networkId, from_id, via_id, to_id, count, lastUsed)
			VALUES (?, ?, ?, ?, 1, ?)`,
			string(network), fromID, nullInt64(viaID), toID, now)
		if err != nil {
			return 0, mapDBError(err)
		}
		if uid, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, mapDBError(err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE searches SET count = count + 1, lastUsed = ? WHERE uid = ?`, now, uid); err != nil {
			return 0, mapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uid, nil
}

// IsFavorite reports whether the stored search is marked as a favorite.
func (r *SearchRepo) IsFavorite(ctx context.Context, searchID int64) (bool, error) {
	var fav bool
	err := r.db.QueryRowContext(ctx,
		`SELECT favorite FROM searches WHERE uid = ?`, searchID).Scan(&fav)
	if err != nil {
		return false, mapDBError(err)
	}
	return fav, nil
}

// SetFavorite marks or unmarks the stored search as a favorite.
func (r *SearchRepo) SetFavorite(ctx context.Context, searchID int64, favorite bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE searches SET favorite = ? WHERE uid = ?`, favorite, searchID)
	if err != nil {
		return mapDBError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrNotFound("stored search %d not found", searchID)
	}
	return nil
}
