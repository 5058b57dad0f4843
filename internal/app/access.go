package app

import (
	"context"
	"errors"

	"hearth/api/internal/store"
)

// threadAccess is a thread the requester may act on, with its household.
type threadAccess struct {
	thread    store.Thread
	household store.HouseholdLink
	partnerID string
}

// accessThread loads a thread and checks userID is an active member of
// its household.
func (s *Service) accessThread(ctx context.Context, threadID, userID string) (threadAccess, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return threadAccess{}, s.storeErr(ctx, "load thread", err, "Thread not found")
	}
	household, err := s.store.GetHouseholdLink(ctx, thread.HouseholdID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return threadAccess{}, authorizationError("You are not a member of this household")
		}
		return threadAccess{}, s.storeErr(ctx, "load household", err, "Household not found")
	}
	if !household.HasMember(userID) {
		return threadAccess{}, authorizationError("You are not a member of this household")
	}
	return threadAccess{
		thread:    thread,
		household: household,
		partnerID: household.PartnerOf(userID),
	}, nil
}

// membership caches household lookups across one batch.
type membership struct {
	s      *Service
	userID string
	links  map[string]store.HouseholdLink
}

func (s *Service) membershipFor(userID string) *membership {
	return &membership{s: s, userID: userID, links: make(map[string]store.HouseholdLink)}
}

func (m *membership) isMember(ctx context.Context, householdID string) (bool, error) {
	link, ok := m.links[householdID]
	if !ok {
		var err error
		link, err = m.s.store.GetHouseholdLink(ctx, householdID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return false, nil
			}
			return false, m.s.storeErr(ctx, "load household", err, "Household not found")
		}
		m.links[householdID] = link
	}
	return link.HasMember(m.userID), nil
}
