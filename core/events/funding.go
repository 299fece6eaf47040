package events

import (
	"math/big"
	"strconv"

	"fundvault/core/types"
	"fundvault/crypto"
)

const (
	TypeFundingDeposited = "funding.deposited"
	TypeFundingSwept     = "funding.swept"
)

// FundingDeposited is emitted for every accepted contribution.
type FundingDeposited struct {
	Contributor [20]byte
	Amount      *big.Int
	Total       *big.Int
	UsdValue    *big.Int
}

func (FundingDeposited) EventType() string { return TypeFundingDeposited }

func (e FundingDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeFundingDeposited,
		Attributes: map[string]string{
			"contributor": crypto.NewAddress(crypto.VaultPrefix, e.Contributor[:]).String(),
			"amount":      formatAmount(e.Amount),
			"total":       formatAmount(e.Total),
			"usdValue":    formatAmount(e.UsdValue),
		},
	}
}

// FundingSwept is emitted when the owner withdraws the full held balance.
type FundingSwept struct {
	Owner   [20]byte
	Amount  *big.Int
	Funders int
}

func (FundingSwept) EventType() string { return TypeFundingSwept }

func (e FundingSwept) Event() *types.Event {
	return &types.Event{
		Type: TypeFundingSwept,
		Attributes: map[string]string{
			"owner":   crypto.NewAddress(crypto.VaultPrefix, e.Owner[:]).String(),
			"amount":  formatAmount(e.Amount),
			"funders": strconv.Itoa(e.Funders),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
