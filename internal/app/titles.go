package app

import (
	"context"
	"fmt"
)

const maxTitleAttempts = 1000

type TitleChecker interface {
	TitleTaken(ctx context.Context, accountID uint, title string, excludeID uint) (bool, error)
}

// FindTitle returns base if no other recipe of the account uses it, else the
// first free "base (n)" for n = 2, 3, ... A non-zero excludeID ignores that
// recipe, so a recipe never collides with itself.
func FindTitle(ctx context.Context, checker TitleChecker, accountID, excludeID uint, base string) (string, error) {
	for n := 1; n <= maxTitleAttempts; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s (%d)", base, n)
		}
		taken, err := checker.TitleTaken(ctx, accountID, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrDuplicateTitle
}
