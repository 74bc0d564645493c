// Package firestore implements the repository interfaces on Cloud Firestore. Money is stored as
// decimal strings so values round-trip exactly.
package firestore

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/storefront/api/internal/repositories"
)

func parseDecimal(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
