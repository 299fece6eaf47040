package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// ContributionOf returns the cumulative amount contributed by the given
// address since the last sweep. Unknown contributors resolve to zero.
func (m *Manager) ContributionOf(addr [20]byte) (*big.Int, error) {
	raw, ok, err := m.get(contributionKey(addr[:]))
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return big.NewInt(0), nil
	}
	stored := new(uint256.Int)
	if err := rlp.DecodeBytes(raw, stored); err != nil {
		return nil, fmt.Errorf("state: decode contribution: %w", err)
	}
	return stored.ToBig(), nil
}

// SetContribution overwrites the cumulative contribution record for addr.
func (m *Manager) SetContribution(addr [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative contribution")
	}
	encoded, overflow := uint256.FromBig(amount)
	if overflow {
		return fmt.Errorf("state: contribution overflows uint256")
	}
	raw, err := rlp.EncodeToBytes(encoded)
	if err != nil {
		return fmt.Errorf("state: encode contribution: %w", err)
	}
	return m.put(contributionKey(addr[:]), raw)
}

// Funders returns the ordered contributor sequence. One entry per accepted
// contribution; duplicates are expected.
func (m *Manager) Funders() ([][20]byte, error) {
	raw, ok, err := m.get(funderSeqKey())
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var funders [][20]byte
	if err := rlp.DecodeBytes(raw, &funders); err != nil {
		return nil, fmt.Errorf("state: decode funder sequence: %w", err)
	}
	return funders, nil
}

// SetFunders replaces the contributor sequence wholesale.
func (m *Manager) SetFunders(funders [][20]byte) error {
	if len(funders) == 0 {
		// Zero-length value marks an emptied sequence.
		return m.put(funderSeqKey(), nil)
	}
	raw, err := rlp.EncodeToBytes(funders)
	if err != nil {
		return fmt.Errorf("state: encode funder sequence: %w", err)
	}
	return m.put(funderSeqKey(), raw)
}

// AppendFunder appends one entry to the contributor sequence.
func (m *Manager) AppendFunder(addr [20]byte) error {
	funders, err := m.Funders()
	if err != nil {
		return err
	}
	return m.SetFunders(append(funders, addr))
}
