package app

import (
	"context"
	"fmt"

	"hearth/api/internal/store"
)

const demoPassword = "hearth-demo-pass"

// Bootstrap seeds a demo household when enabled and the database has no
// users yet.
func (s *Service) Bootstrap(ctx context.Context) error {
	if !s.cfg.SeedDemo {
		return nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := s.passwords.HashPassword(demoPassword)
	if err != nil {
		return err
	}
	owner, err := s.store.CreateUser(ctx, store.User{DisplayName: "Avery", Email: "avery@hearth.local", PasswordHash: hash})
	if err != nil {
		return fmt.Errorf("seed owner: %w", err)
	}
	partner, err := s.store.CreateUser(ctx, store.User{DisplayName: "Blake", Email: "blake@hearth.local", PasswordHash: hash})
	if err != nil {
		return fmt.Errorf("seed partner: %w", err)
	}
	household, err := s.store.CreateHouseholdLink(ctx, owner.ID, partner.ID)
	if err != nil {
		return fmt.Errorf("seed household: %w", err)
	}

	chat, err := s.store.CreateThread(ctx, store.Thread{HouseholdID: household.ID, Purpose: store.ThreadPurposeChat, Title: "Household"})
	if err != nil {
		return fmt.Errorf("seed chat thread: %w", err)
	}
	shopping, err := s.store.CreateThread(ctx, store.Thread{HouseholdID: household.ID, Purpose: store.ThreadPurposeShopping, Title: "Groceries"})
	if err != nil {
		return fmt.Errorf("seed shopping thread: %w", err)
	}

	seeds := []struct {
		thread store.Thread
		from   store.User
		to     store.User
		text   string
	}{
		{chat, owner, partner, "Rent went out this morning."},
		{chat, partner, owner, "Thanks, I'll move my half tonight."},
		{shopping, owner, partner, "Milk"},
		{shopping, partner, owner, "Coffee beans"},
	}
	for _, seed := range seeds {
		if _, err := s.store.InsertMessage(ctx, store.NewMessage{
			ThreadID:        seed.thread.ID,
			HouseholdID:     household.ID,
			SenderUserID:    seed.from.ID,
			Content:         seed.text,
			RecipientUserID: seed.to.ID,
		}); err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "seeded demo household", "household_id", household.ID, "owner_email", owner.Email, "partner_email", partner.Email)
	return nil
}
