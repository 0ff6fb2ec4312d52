package userRepo

import (
	"context"

	"campushub/models"
)

// UserRepository is the read surface the audience resolver and the channel
// senders need. Writes to users belong to the excluded CRUD layer.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.User, error)

	// Active-user expansions, one per audience dimension. Deactivated users
	// are excluded unconditionally.
	ActiveUserIDs(ctx context.Context) ([]string, error)
	ActiveUserIDsByRole(ctx context.Context, role models.Role) ([]string, error)
	ActiveUserIDsByInstitution(ctx context.Context, institutionID string) ([]string, error)
	ActiveUserIDsByBranch(ctx context.Context, branchID string) ([]string, error)
	// ActiveUserIDsByCourse joins through active enrollment records.
	ActiveUserIDsByCourse(ctx context.Context, courseID string) ([]string, error)
}
