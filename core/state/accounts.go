package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"fundvault/core/types"
)

type storedAccount struct {
	Nonce   uint64
	Balance *uint256.Int
}

// GetAccount reconstructs the account stored under the provided address. A
// missing account resolves to an empty one rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("state: address must not be empty")
	}
	raw, ok, err := m.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	account := types.NewAccount()
	if !ok || len(raw) == 0 {
		return account, nil
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(raw, stored); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	account.Nonce = stored.Nonce
	if stored.Balance != nil {
		account.Balance = stored.Balance.ToBig()
	}
	return account, nil
}

// PutAccount persists the provided account state under the supplied address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) == 0 {
		return fmt.Errorf("state: address must not be empty")
	}
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	balance := account.Balance
	if balance == nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	encodedBalance, overflow := uint256.FromBig(balance)
	if overflow {
		return fmt.Errorf("state: balance overflows uint256")
	}
	raw, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: encodedBalance})
	if err != nil {
		return fmt.Errorf("state: encode account: %w", err)
	}
	return m.put(accountKey(addr), raw)
}
