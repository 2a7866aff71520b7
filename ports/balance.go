package ports

import "context"

// BalanceSource reads how many of the tracked asset an address holds.
// Errors are per-address and never systemic for callers.
type BalanceSource interface {
	Balance(ctx context.Context, address string) (uint64, error)
}
