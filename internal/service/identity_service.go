package service

import (
	"context"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/phone"
)

// IdentityResolverImpl implements ports.IdentityResolver.
// Precedence: exact email match, then the E.164 form of a phone number.
type IdentityResolverImpl struct {
	region string
}

// NewIdentityResolver creates a resolver that reads local phone numbers as
// belonging to region.
func NewIdentityResolver(region string) *IdentityResolverImpl {
	if region == "" {
		region = phone.DefaultRegion
	}
	return &IdentityResolverImpl{region: region}
}

// Resolve returns the account identified by identifier, or (nil, nil).
func (r *IdentityResolverImpl) Resolve(ctx context.Context, finder ports.AccountFinder, identifier string) (*domain.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	acct, err := finder.FindAccountByEmail(ctx, strings.ToLower(identifier))
	if err != nil {
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	if acct != nil {
		return acct, nil
	}

	acct, err = finder.FindAccountByPhone(ctx, phone.Normalize(identifier, r.region))
	if err != nil {
		return nil, fmt.Errorf("find account by phone: %w", err)
	}
	return acct, nil
}
