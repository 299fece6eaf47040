package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"fundvault/core/events"
	"fundvault/core/state"
	"fundvault/core/types"
	"fundvault/native/funding"
	"fundvault/native/pricefeed"
	"fundvault/observability"
)

const maxBufferedEvents = 256

var errNilTransaction = errors.New("core: nil transaction")

// Node owns the serialized execution path: one mutex guards every transaction
// so each entry point runs to completion (commit or full rollback) before the
// next begins. It wires the state manager, the funding engine and the price
// converter together and buffers emitted events for the RPC layer.
type Node struct {
	mu        sync.Mutex
	state     *state.Manager
	engine    *funding.Engine
	converter *pricefeed.Converter
	logger    *slog.Logger

	eventMu sync.RWMutex
	events  []*types.Event
}

// NewNode assembles a node around the given database-backed state manager,
// price feed and owner identity.
func NewNode(manager *state.Manager, feed pricefeed.Feed, owner [20]byte, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		state:     manager,
		converter: pricefeed.NewConverter(feed),
		logger:    logger,
	}
	n.engine = funding.NewEngine(owner)
	n.engine.SetState(manager)
	n.engine.SetConverter(n.converter)
	n.engine.SetEmitter(n)
	return n
}

// Emit implements events.Emitter, buffering the most recent events.
func (n *Node) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	typed := carrier.Event()
	if typed == nil {
		return
	}
	n.eventMu.Lock()
	n.events = append(n.events, typed)
	if len(n.events) > maxBufferedEvents {
		n.events = n.events[len(n.events)-maxBufferedEvents:]
	}
	n.eventMu.Unlock()
}

// Events returns deep copies of the buffered events, newest last. Callers
// may mutate the returned events without affecting the buffer.
func (n *Node) Events() []*types.Event {
	n.eventMu.RLock()
	defer n.eventMu.RUnlock()
	out := make([]*types.Event, len(n.events))
	for i, evt := range n.events {
		out[i] = evt.Copy()
	}
	return out
}

// ApplyTransaction executes one transaction as an indivisible unit. Any error
// leaves the state exactly as it was before the call. Transaction types
// without a dedicated handler fall through to the contribution path: an
// unrecognised inbound transfer is an implicit Fund by its sender.
func (n *Node) ApplyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return errNilTransaction
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	started := time.Now()
	err := n.applyLocked(tx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.TxMetrics().Observe(txTypeLabel(tx.Type), outcome, time.Since(started))
	return err
}

func (n *Node) applyLocked(tx *types.Transaction) error {
	fromBytes, err := tx.From()
	if err != nil {
		return fmt.Errorf("core: recover sender: %w", err)
	}
	var from [20]byte
	copy(from[:], fromBytes)

	checkpoint := n.state.Snapshot()
	if err := n.consumeNonce(from, tx.Nonce); err != nil {
		return err
	}

	switch tx.Type {
	case types.TxTypeFund:
		err = n.engine.Fund(from, tx.Value)
	case types.TxTypeSweep:
		err = n.engine.Sweep(from)
	case types.TxTypeTransfer:
		err = n.transfer(from, tx.To, tx.Value)
	default:
		// Fallback contribution path: no recognised entry point claimed the
		// inbound value, so the whole amount funds the ledger on behalf of
		// the sender.
		err = n.engine.Fund(from, tx.Value)
	}
	if err != nil {
		if revertErr := n.state.RevertToSnapshot(checkpoint); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		n.logger.Info("transaction rejected", "type", txTypeLabel(tx.Type), "err", err)
		return err
	}
	n.state.CommitJournal()
	n.logger.Debug("transaction applied", "type", txTypeLabel(tx.Type))
	return nil
}

func (n *Node) consumeNonce(from [20]byte, nonce uint64) error {
	account, err := n.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	if account.Nonce != nonce {
		return fmt.Errorf("core: invalid nonce: got %d, want %d", nonce, account.Nonce)
	}
	account.Nonce++
	return n.state.PutAccount(from[:], account)
}

func (n *Node) transfer(from [20]byte, to []byte, amount *big.Int) error {
	if len(to) != 20 {
		return fmt.Errorf("core: transfer recipient must be 20 bytes")
	}
	var toAddr [20]byte
	copy(toAddr[:], to)
	// A bare transfer into the vault carries no instruction of its own and is
	// treated as a contribution by its sender.
	if toAddr == funding.VaultAddress() {
		return n.engine.Fund(from, amount)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("core: transfer amount must be positive")
	}
	fromAcc, err := n.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("core: insufficient balance")
	}
	toAcc, err := n.state.GetAccount(toAddr[:])
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := n.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return n.state.PutAccount(toAddr[:], toAcc)
}

// Credit mints balance directly onto an account. Used for genesis allocations
// and local development; not reachable from the transaction path.
func (n *Node) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("core: credit amount must be positive")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.GetAccount(addr[:])
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	if err := n.state.PutAccount(addr[:], account); err != nil {
		return err
	}
	n.state.CommitJournal()
	return nil
}

// BalanceOf reads an account balance.
func (n *Node) BalanceOf(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	account, err := n.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// The funding queries below take the transaction mutex: a reader must only
// ever see committed state, never a transaction that is mid-application or
// about to roll back.

// AmountFunded reports the cumulative contribution recorded for addr.
func (n *Node) AmountFunded(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.AmountFunded(addr)
}

// FunderAt returns the contributor at position index in the funder sequence.
func (n *Node) FunderAt(index int) ([20]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.FunderAt(index)
}

// FunderCount reports the current length of the funder sequence.
func (n *Node) FunderCount() (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.FunderCount()
}

// HeldBalance reports the vault's current balance.
func (n *Node) HeldBalance() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.HeldBalance()
}

// FeedVersion passes through the price feed's version metadata.
func (n *Node) FeedVersion() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.FeedVersion()
}

// Owner returns the fixed owner identity. The owner never changes after
// construction, so no lock is needed.
func (n *Node) Owner() [20]byte { return n.engine.Owner() }

func txTypeLabel(t types.TxType) string {
	switch t {
	case types.TxTypeTransfer:
		return "transfer"
	case types.TxTypeFund:
		return "fund"
	case types.TxTypeSweep:
		return "sweep"
	default:
		return "fallback"
	}
}
