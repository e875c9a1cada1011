// Package credits is the admission-control gate in front of generation.
// Ledger semantics (top-ups, debits, invoicing) belong to the billing
// system; this package only answers "is there enough budget".
package credits

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/contentfabriek/contentpipe/internal/models"
)

// ErrInsufficientCredits is returned when a site's remaining word budget
// cannot cover the requested generation.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Checker decides whether a site may generate an item of the given
// estimated word count.
type Checker interface {
	Check(ctx context.Context, siteID uint, wordCount int) error
}

// Store is the gorm-backed Checker.
type Store struct {
	db *gorm.DB
}

var _ Checker = (*Store)(nil)

// NewStore creates a Checker over the credit_balances table.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Check returns ErrInsufficientCredits when the site's balance is below
// wordCount. A site with no balance row has a zero budget.
func (s *Store) Check(ctx context.Context, siteID uint, wordCount int) error {
	var balance models.CreditBalance
	err := s.db.WithContext(ctx).Where("site_id = ?", siteID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("site %d has no credit balance: %w", siteID, ErrInsufficientCredits)
		}
		return fmt.Errorf("failed to load credit balance: %w", err)
	}

	if balance.WordsRemaining < int64(wordCount) {
		return fmt.Errorf("site %d has %d words remaining, needs %d: %w",
			siteID, balance.WordsRemaining, wordCount, ErrInsufficientCredits)
	}
	return nil
}
