package notification

import (
	"context"
	"fmt"

	userRepo "campushub/database/repository/user"
	"campushub/models"
)

// AudienceResolver expands abstract audience descriptors into concrete user
// IDs. Resolution is never cached across calls: enrollment changes and
// deactivations must be reflected immediately, so correctness wins over
// staleness.
type AudienceResolver struct {
	Users userRepo.UserRepository
}

func NewAudienceResolver(users userRepo.UserRepository) *AudienceResolver {
	return &AudienceResolver{Users: users}
}

// Resolve returns the deduplicated union of all descriptors. Deactivated
// users are excluded unconditionally, including from explicit user lists.
func (r *AudienceResolver) Resolve(ctx context.Context, audience []models.Audience) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	for _, a := range audience {
		ids, err := r.resolveOne(ctx, a)
		if err != nil {
			return nil, err
		}
		add(ids)
	}
	return out, nil
}

func (r *AudienceResolver) resolveOne(ctx context.Context, a models.Audience) ([]string, error) {
	switch a.Kind {
	case models.AudienceAll:
		ids, err := r.Users.ActiveUserIDs(ctx)
		if err != nil {
			return nil, NewAudienceError(fmt.Sprintf("resolve all: %v", err))
		}
		return ids, nil

	case models.AudienceRole:
		ids, err := r.Users.ActiveUserIDsByRole(ctx, models.Role(a.Value))
		if err != nil {
			return nil, NewAudienceError(fmt.Sprintf("resolve role %q: %v", a.Value, err))
		}
		return ids, nil

	case models.AudienceInstitution:
		ids, err := r.Users.ActiveUserIDsByInstitution(ctx, a.Value)
		if err != nil {
			return nil, NewAudienceError(fmt.Sprintf("resolve institution %q: %v", a.Value, err))
		}
		return ids, nil

	case models.AudienceBranch:
		ids, err := r.Users.ActiveUserIDsByBranch(ctx, a.Value)
		if err != nil {
			return nil, NewAudienceError(fmt.Sprintf("resolve branch %q: %v", a.Value, err))
		}
		return ids, nil

	case models.AudienceCourse:
		ids, err := r.Users.ActiveUserIDsByCourse(ctx, a.Value)
		if err != nil {
			return nil, NewAudienceError(fmt.Sprintf("resolve course %q: %v", a.Value, err))
		}
		return ids, nil

	case models.AudienceUsers:
		// Explicit lists still go through the active filter.
		users, err := r.Users.GetByIDs(ctx, a.UserIDs)
		if err != nil {
			return nil, NewAudienceError(fmt.Sprintf("resolve user list: %v", err))
		}
		ids := make([]string, 0, len(users))
		for _, u := range users {
			if u.Active {
				ids = append(ids, u.ID)
			}
		}
		return ids, nil
	}
	return nil, NewAudienceError(fmt.Sprintf("unknown audience kind %q", a.Kind))
}
