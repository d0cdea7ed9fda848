package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

var entityTables = map[string]string{
	models.EntitySeries:  "series",
	models.EntitySeason:  "seasons",
	models.EntityEpisode: "episodes",
	models.EntityMovie:   "movies",
	models.EntityPerson:  "people",
}

func entityTable(entityType string) (string, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
	return table, nil
}

// ContentImageURLs returns the upstream URL stored in each image slot of one
// entity, keyed by slot name. Empty slots are omitted.
func (r *Repository) ContentImageURLs(ctx context.Context, entityType string, tvdbID int64) (map[string]string, error) {
	table, err := entityTable(entityType)
	if err != nil {
		return nil, err
	}

	slots := models.ImageSlots(entityType)
	cols := make([]string, len(slots))
	for i, slot := range slots {
		cols[i] = fmt.Sprintf("COALESCE(%s, '')", slot)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tvdb_id = $1`, strings.Join(cols, ", "), table)

	dests := make([]any, len(slots))
	vals := make([]string, len(slots))
	for i := range vals {
		dests[i] = &vals[i]
	}

	err = r.db.Pool.QueryRow(ctx, query, tvdbID).Scan(dests...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image slots for %s %d: %w", entityType, tvdbID, err)
	}

	urls := make(map[string]string, len(slots))
	for i, slot := range slots {
		if vals[i] != "" {
			urls[slot] = vals[i]
		}
	}

	return urls, nil
}

// SetLocalImageURL records the locally served URL for one image slot of one
// entity.
func (r *Repository) SetLocalImageURL(ctx context.Context, entityType string, tvdbID int64, slot, localURL string) error {
	table, err := entityTable(entityType)
	if err != nil {
		return err
	}
	if !models.ValidImageSlot(entityType, slot) {
		return fmt.Errorf("entity type %q has no image slot %q", entityType, slot)
	}

	query := fmt.Sprintf(
		`UPDATE %s SET local_%s_url = $2, updated_at = now() WHERE tvdb_id = $1`,
		table, slot,
	)

	tag, err := r.db.Pool.Exec(ctx, query, tvdbID, localURL)
	if err != nil {
		return fmt.Errorf("failed to set local %s url for %s %d: %w", slot, entityType, tvdbID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// FindMissingImages returns upstream ids of entities that carry at least one
// remote image URL without a matching local copy.
func (r *Repository) FindMissingImages(ctx context.Context, entityType string, limit int) ([]int64, error) {
	table, err := entityTable(entityType)
	if err != nil {
		return nil, err
	}

	conds := make([]string, 0, len(models.ImageSlots(entityType)))
	for _, slot := range models.ImageSlots(entityType) {
		conds = append(conds, fmt.Sprintf(
			"(COALESCE(%s, '') <> '' AND COALESCE(local_%s_url, '') = '')", slot, slot,
		))
	}

	query := fmt.Sprintf(
		`SELECT tvdb_id FROM %s WHERE %s ORDER BY tvdb_id LIMIT $1`,
		table, strings.Join(conds, " OR "),
	)

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find missing images for %s: %w", entityType, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListEntityTVDBIDs returns all mirrored upstream ids for one entity type.
// Orphan cleanup compares stored object keys against this snapshot.
func (r *Repository) ListEntityTVDBIDs(ctx context.Context, entityType string) ([]int64, error) {
	table, err := entityTable(entityType)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(`SELECT tvdb_id FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", entityType, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// CountEntities returns mirrored row counts per entity table. Used by the
// stats endpoint.
func (r *Repository) CountEntities(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(entityTables))
	for entityType, table := range entityTables {
		var n int64
		if err := r.db.Pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[entityType] = n
	}
	return counts, nil
}
