package merge

import (
	"time"

	"github.com/opencdp/profile-engine/domain"
	"github.com/opencdp/profile-engine/pkg/autoid"
	"github.com/opencdp/profile-engine/pkg/normalize"
)

// Aggregate merges two or more source profiles into a new master profile.
// List-valued traits are unioned and de-duplicated (emails lowercased),
// scalars take the first non-empty value in input order, and seen
// timestamps span the min/max across sources.
func Aggregate(idgen *autoid.Generator, profiles []*domain.Profile) (*domain.MasterProfile, error) {
	if len(profiles) < 2 {
		return nil, domain.ErrNotEnoughInputs
	}
	if idgen == nil {
		idgen = autoid.New()
	}

	now := time.Now()
	master := &domain.MasterProfile{
		ID:        domain.MasterProfileIDPrefix + idgen.Generate(),
		TenantID:  profiles[0].TenantID,
		Status:    domain.ProfileStatusActive,
		Traits:    &domain.MasterTraits{},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	var (
		firstSeen, lastSeen *time.Time
		appIDs              = newOrderedSet()
		mergedIDs           = newOrderedSet()
		emails              = newOrderedSet()
		phones              = newOrderedSet()
		idcards             = newOrderedSet()
	)

	for _, p := range profiles {
		for _, user := range p.Users {
			appIDs.add(user.AppID)
			mergedIDs.add(domain.AliasKey(p.TenantID, user.AppID, user.UserID))
		}

		if t := p.Traits; t != nil {
			emails.add(normalize.Email(t.Email))
			for _, phone := range t.Phones {
				phones.add(phone)
			}
			idcards.add(t.IDCard)

			setIfEmpty(&master.Traits.FirstName, t.FirstName)
			setIfEmpty(&master.Traits.LastName, t.LastName)
			setIfEmpty(&master.Traits.Gender, t.Gender)
			setIfEmpty(&master.Traits.DOB, t.DOB)
			setIfEmpty(&master.Traits.Address, t.Address)
		}

		if p.FirstSeenAt != nil && (firstSeen == nil || p.FirstSeenAt.Before(*firstSeen)) {
			firstSeen = p.FirstSeenAt
		}
		if p.LastSeenAt != nil && (lastSeen == nil || p.LastSeenAt.After(*lastSeen)) {
			lastSeen = p.LastSeenAt
		}
	}

	master.AppIDs = appIDs.values
	master.MergedIDs = mergedIDs.values
	master.Traits.Emails = emails.values
	master.Traits.Phones = phones.values
	master.Traits.IDCards = idcards.values
	master.Anonymous = len(master.Traits.Emails) == 0 && len(master.Traits.Phones) == 0

	master.FirstSeenAt = now
	master.LastSeenAt = now
	if firstSeen != nil {
		master.FirstSeenAt = *firstSeen
	}
	if lastSeen != nil {
		master.LastSeenAt = *lastSeen
	}

	return master, nil
}

// absorbMaster folds src's identifiers and traits into dst. List values
// are unioned preserving dst's order, scalars keep dst's value when
// present, and the seen window widens to span both masters.
func absorbMaster(dst, src *domain.MasterProfile) {
	dst.AppIDs = unionStrings(dst.AppIDs, src.AppIDs)
	dst.MergedIDs = unionStrings(dst.MergedIDs, src.MergedIDs)
	dst.Segments = unionStrings(dst.Segments, src.Segments)

	if dst.Traits == nil {
		dst.Traits = &domain.MasterTraits{}
	}
	if src.Traits != nil {
		dst.Traits.Emails = unionStrings(dst.Traits.Emails, src.Traits.Emails)
		dst.Traits.Phones = unionStrings(dst.Traits.Phones, src.Traits.Phones)
		dst.Traits.IDCards = unionStrings(dst.Traits.IDCards, src.Traits.IDCards)
		setIfEmpty(&dst.Traits.FirstName, src.Traits.FirstName)
		setIfEmpty(&dst.Traits.LastName, src.Traits.LastName)
		setIfEmpty(&dst.Traits.Gender, src.Traits.Gender)
		setIfEmpty(&dst.Traits.DOB, src.Traits.DOB)
		setIfEmpty(&dst.Traits.Address, src.Traits.Address)
	}

	for key, value := range src.Scores {
		if dst.Scores == nil {
			dst.Scores = make(map[string]float64)
		}
		if _, ok := dst.Scores[key]; !ok {
			dst.Scores[key] = value
		}
	}
	for key, value := range src.Consents {
		if dst.Consents == nil {
			dst.Consents = make(map[string]bool)
		}
		if _, ok := dst.Consents[key]; !ok {
			dst.Consents[key] = value
		}
	}

	if !src.FirstSeenAt.IsZero() && (dst.FirstSeenAt.IsZero() || src.FirstSeenAt.Before(dst.FirstSeenAt)) {
		dst.FirstSeenAt = src.FirstSeenAt
	}
	if src.LastSeenAt.After(dst.LastSeenAt) {
		dst.LastSeenAt = src.LastSeenAt
	}
	dst.Anonymous = len(dst.Traits.Emails) == 0 && len(dst.Traits.Phones) == 0
}

func unionStrings(a, b []string) []string {
	set := newOrderedSet()
	for _, v := range a {
		set.add(v)
	}
	for _, v := range b {
		set.add(v)
	}
	return set.values
}

func setIfEmpty(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}

// orderedSet de-duplicates while preserving insertion order; empty
// strings are ignored.
type orderedSet struct {
	seen   map[string]struct{}
	values []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(value string) {
	if value == "" {
		return
	}
	if _, ok := s.seen[value]; ok {
		return
	}
	s.seen[value] = struct{}{}
	s.values = append(s.values, value)
}
