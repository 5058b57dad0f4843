package store

import (
	"context"
	"fmt"
)

const householdColumns = `id, owner_user_id, COALESCE(partner_user_id, ''), active, created_at`

func scanHousehold(row interface{ Scan(...any) error }) (HouseholdLink, error) {
	var link HouseholdLink
	err := row.Scan(&link.ID, &link.OwnerUserID, &link.PartnerUserID, &link.Active, &link.CreatedAt)
	return link, err
}

// CreateHouseholdLink is only used for seeding; link management lives elsewhere.
func (s *PostgresStore) CreateHouseholdLink(ctx context.Context, ownerID, partnerID string) (HouseholdLink, error) {
	var partner any
	if partnerID != "" {
		partner = partnerID
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO household_links (owner_user_id, partner_user_id, active)
		VALUES ($1, $2, TRUE)
		RETURNING `+householdColumns, ownerID, partner)
	link, err := scanHousehold(row)
	if err != nil {
		return HouseholdLink{}, fmt.Errorf("insert household link: %w", err)
	}
	return link, nil
}

func (s *PostgresStore) GetHouseholdLink(ctx context.Context, householdID string) (HouseholdLink, error) {
	link, err := scanHousehold(s.db.QueryRow(ctx, `SELECT `+householdColumns+` FROM household_links WHERE id=$1`, householdID))
	if err != nil {
		return HouseholdLink{}, notFound("get household link", err)
	}
	return link, nil
}

// ListActiveHouseholds returns the active links userID belongs to.
func (s *PostgresStore) ListActiveHouseholds(ctx context.Context, userID string) ([]HouseholdLink, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+householdColumns+`
		FROM household_links
		WHERE active AND (owner_user_id = $1 OR partner_user_id = $1)
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	items := make([]HouseholdLink, 0)
	for rows.Next() {
		link, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		items = append(items, link)
	}
	return items, rows.Err()
}
