package funding

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fundvault/core/events"
	"fundvault/core/types"
)

// MinimumFundingUSD is the contribution floor: 5 USD in 18-decimal fixed
// point. Fixed for the lifetime of the ledger.
var MinimumFundingUSD = new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// vaultAddress is the module account that holds contributions between sweeps.
var vaultAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], ethcrypto.Keccak256([]byte("funding/vault"))[:20])
	return addr
}()

// VaultAddress returns the module account holding the accumulated balance.
func VaultAddress() [20]byte { return vaultAddress }

type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	ContributionOf(addr [20]byte) (*big.Int, error)
	SetContribution(addr [20]byte, amount *big.Int) error
	Funders() ([][20]byte, error)
	SetFunders(funders [][20]byte) error
	AppendFunder(addr [20]byte) error
	Snapshot() int
	RevertToSnapshot(id int) error
}

type usdConverter interface {
	ConvertToUSD(amount *big.Int) (*big.Int, error)
	FeedVersion() (uint64, error)
}

// PayoutFunc pushes the swept balance to the recipient. It reports failure so
// the engine can roll the sweep back; it may hand control to arbitrary
// external code, which is why the engine fully resets state before calling it.
type PayoutFunc func(to [20]byte, amount *big.Int) error

// Engine implements the funding ledger: oracle-gated contributions, the
// owner-only sweep and the read-only queries. All entry points assume the
// caller serialises access; the node holds a mutex around transaction
// application.
type Engine struct {
	state     engineState
	converter usdConverter
	emitter   events.Emitter
	owner     [20]byte
	payout    PayoutFunc
}

// NewEngine creates a funding engine owned by the given address. The owner is
// fixed here and never reassignable. Callers wire state and converter before
// first use; the default payout credits the recipient's ledger account.
func NewEngine(owner [20]byte) *Engine {
	e := &Engine{owner: owner, emitter: events.NoopEmitter{}}
	e.payout = e.creditAccount
	return e
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetConverter configures the USD conversion gate.
func (e *Engine) SetConverter(converter usdConverter) { e.converter = converter }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPayoutFunc overrides the outbound transfer used by Sweep. Passing nil
// restores the default, which credits the recipient's ledger account.
func (e *Engine) SetPayoutFunc(payout PayoutFunc) {
	if payout == nil {
		e.payout = e.creditAccount
		return
	}
	e.payout = payout
}

// Owner returns the fixed owner identity.
func (e *Engine) Owner() [20]byte { return e.owner }

type fundingEvent struct {
	evt *types.Event
}

func (e fundingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e fundingEvent) Event() *types.Event { return e.evt }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(fundingEvent{evt: event})
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Fund records a contribution of amount by contributor. The amount must
// convert to at least MinimumFundingUSD; a failed or unusable price quote
// fails closed exactly like a below-minimum contribution. On success the
// contributor's balance is debited into the vault, the cumulative record grows
// by amount and the contributor is appended to the funder sequence. Two
// identical calls produce two sequence entries and double the held balance.
func (e *Engine) Fund(contributor [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.converter == nil {
		return errNilConverter
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("funding: amount must be positive")
	}
	usdValue, err := e.converter.ConvertToUSD(amt)
	if err != nil {
		// Fail closed: no quote means the threshold check cannot pass.
		return err
	}
	if usdValue.Cmp(MinimumFundingUSD) < 0 {
		return ErrBelowMinimum
	}

	snapshot := e.state.Snapshot()
	if err := e.apply(contributor, amt, usdValue); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapshot); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		return err
	}
	return nil
}

func (e *Engine) apply(contributor [20]byte, amt, usdValue *big.Int) error {
	fromAcc, err := e.state.GetAccount(contributor[:])
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("funding: insufficient balance")
	}
	vaultAcc, err := e.state.GetAccount(vaultAddress[:])
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	vaultAcc.Balance = new(big.Int).Add(vaultAcc.Balance, amt)
	if err := e.state.PutAccount(contributor[:], fromAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(vaultAddress[:], vaultAcc); err != nil {
		return err
	}

	recorded, err := e.state.ContributionOf(contributor)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(recorded, amt)
	if err := e.state.SetContribution(contributor, total); err != nil {
		return err
	}
	if err := e.state.AppendFunder(contributor); err != nil {
		return err
	}
	e.emit(events.FundingDeposited{
		Contributor: contributor,
		Amount:      amt,
		Total:       total,
		UsdValue:    usdValue,
	}.Event())
	return nil
}

// Sweep empties the ledger into the owner's hands. Only the owner may call
// it. The contribution records and funder sequence are fully reset before the
// outbound transfer is initiated, so any code the transfer hands control to
// observes a zeroed ledger. A rejected transfer rolls the whole operation
// back.
func (e *Engine) Sweep(caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.owner {
		return ErrNotOwner
	}

	snapshot := e.state.Snapshot()
	funders, err := e.state.Funders()
	if err != nil {
		return err
	}
	for _, funder := range funders {
		if err := e.state.SetContribution(funder, big.NewInt(0)); err != nil {
			return e.revert(snapshot, err)
		}
	}
	if err := e.state.SetFunders(nil); err != nil {
		return e.revert(snapshot, err)
	}

	vaultAcc, err := e.state.GetAccount(vaultAddress[:])
	if err != nil {
		return e.revert(snapshot, err)
	}
	amount := cloneBigInt(vaultAcc.Balance)
	vaultAcc.Balance = big.NewInt(0)
	if err := e.state.PutAccount(vaultAddress[:], vaultAcc); err != nil {
		return e.revert(snapshot, err)
	}

	// Reset is complete; this is the only point where control may leave the
	// engine before the operation finishes.
	if err := e.payout(e.owner, amount); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapshot); revertErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, err), revertErr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(events.FundingSwept{
		Owner:   e.owner,
		Amount:  amount,
		Funders: len(funders),
	}.Event())
	return nil
}

func (e *Engine) revert(snapshot int, err error) error {
	if revertErr := e.state.RevertToSnapshot(snapshot); revertErr != nil {
		return errors.Join(err, revertErr)
	}
	return err
}

func (e *Engine) creditAccount(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return e.state.PutAccount(to[:], acc)
}

// AmountFunded reports the cumulative contribution recorded for addr since
// the last sweep. Unknown contributors resolve to zero.
func (e *Engine) AmountFunded(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ContributionOf(addr)
}

// FunderAt returns the contributor recorded at position index in the funder
// sequence. Out-of-range positions are an error, never a zero address.
func (e *Engine) FunderAt(index int) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	funders, err := e.state.Funders()
	if err != nil {
		return [20]byte{}, err
	}
	if index < 0 || index >= len(funders) {
		return [20]byte{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(funders))
	}
	return funders[index], nil
}

// FunderCount reports the current length of the funder sequence.
func (e *Engine) FunderCount() (int, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	funders, err := e.state.Funders()
	if err != nil {
		return 0, err
	}
	return len(funders), nil
}

// HeldBalance reports the vault's current balance, the sum of all recorded
// contributions since the last sweep.
func (e *Engine) HeldBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(vaultAddress[:])
	if err != nil {
		return nil, err
	}
	return cloneBigInt(acc.Balance), nil
}

// FeedVersion passes through the price feed's version metadata uncached.
func (e *Engine) FeedVersion() (uint64, error) {
	if e == nil || e.converter == nil {
		return 0, errNilConverter
	}
	return e.converter.FeedVersion()
}
