package funding

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"fundvault/core/types"
	"fundvault/native/pricefeed"
)

type mockState struct {
	accounts      map[[20]byte]*types.Account
	contributions map[[20]byte]*big.Int
	funders       [][20]byte
	snapshots     []*mockSnapshot
}

type mockSnapshot struct {
	accounts      map[[20]byte]*types.Account
	contributions map[[20]byte]*big.Int
	funders       [][20]byte
}

func newMockState() *mockState {
	return &mockState{
		accounts:      make(map[[20]byte]*types.Account),
		contributions: make(map[[20]byte]*big.Int),
	}
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	var key [20]byte
	copy(key[:], addr)
	if acc, ok := m.accounts[key]; ok {
		return acc.Clone(), nil
	}
	return types.NewAccount(), nil
}

func (m *mockState) PutAccount(addr []byte, account *types.Account) error {
	var key [20]byte
	copy(key[:], addr)
	m.accounts[key] = account.Clone()
	return nil
}

func (m *mockState) ContributionOf(addr [20]byte) (*big.Int, error) {
	if v, ok := m.contributions[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) SetContribution(addr [20]byte, amount *big.Int) error {
	m.contributions[addr] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) Funders() ([][20]byte, error) {
	return append([][20]byte{}, m.funders...), nil
}

func (m *mockState) SetFunders(funders [][20]byte) error {
	m.funders = append([][20]byte{}, funders...)
	return nil
}

func (m *mockState) AppendFunder(addr [20]byte) error {
	m.funders = append(m.funders, addr)
	return nil
}

func (m *mockState) Snapshot() int {
	snap := &mockSnapshot{
		accounts:      make(map[[20]byte]*types.Account, len(m.accounts)),
		contributions: make(map[[20]byte]*big.Int, len(m.contributions)),
		funders:       append([][20]byte{}, m.funders...),
	}
	for k, v := range m.accounts {
		snap.accounts[k] = v.Clone()
	}
	for k, v := range m.contributions {
		snap.contributions[k] = new(big.Int).Set(v)
	}
	m.snapshots = append(m.snapshots, snap)
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(m.snapshots) {
		return fmt.Errorf("invalid snapshot %d", id)
	}
	snap := m.snapshots[id]
	m.accounts = snap.accounts
	m.contributions = snap.contributions
	m.funders = snap.funders
	m.snapshots = m.snapshots[:id]
	return nil
}

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

// newTestEngine wires an engine against a manual feed quoting 2000 USD per
// native unit at 8 decimals, so the 5 USD minimum is 2.5e15 base units.
func newTestEngine(t *testing.T, owner [20]byte) (*Engine, *mockState, *pricefeed.ManualFeed) {
	t.Helper()
	state := newMockState()
	feed := pricefeed.NewManualFeed(big.NewInt(2000e8), 8, 4)
	engine := NewEngine(owner)
	engine.SetState(state)
	engine.SetConverter(pricefeed.NewConverter(feed))
	return engine, state, feed
}

func credit(t *testing.T, state *mockState, addr [20]byte, amount *big.Int) {
	t.Helper()
	acc, err := state.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	if err := state.PutAccount(addr[:], acc); err != nil {
		t.Fatalf("put account: %v", err)
	}
}

func eth(milli int64) *big.Int {
	out := big.NewInt(milli)
	return out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
}

func TestFundRecordsContribution(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))

	amount := eth(10) // 20 USD at the test rate
	if err := engine.Fund(alice, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}

	recorded, err := engine.AmountFunded(alice)
	if err != nil {
		t.Fatalf("amount funded: %v", err)
	}
	if recorded.Cmp(amount) != 0 {
		t.Fatalf("recorded = %s, want %s", recorded, amount)
	}
	count, err := engine.FunderCount()
	if err != nil {
		t.Fatalf("funder count: %v", err)
	}
	if count != 1 {
		t.Fatalf("funder count = %d, want 1", count)
	}
	last, err := engine.FunderAt(count - 1)
	if err != nil {
		t.Fatalf("funder at: %v", err)
	}
	if last != alice {
		t.Fatalf("last funder = %x, want %x", last, alice)
	}
	held, err := engine.HeldBalance()
	if err != nil {
		t.Fatalf("held balance: %v", err)
	}
	if held.Cmp(amount) != 0 {
		t.Fatalf("held balance = %s, want %s", held, amount)
	}
}

func TestFundIsNotIdempotent(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))

	amount := eth(10)
	if err := engine.Fund(alice, amount); err != nil {
		t.Fatalf("first fund: %v", err)
	}
	if err := engine.Fund(alice, amount); err != nil {
		t.Fatalf("second fund: %v", err)
	}

	recorded, _ := engine.AmountFunded(alice)
	want := new(big.Int).Mul(amount, big.NewInt(2))
	if recorded.Cmp(want) != 0 {
		t.Fatalf("recorded = %s, want %s", recorded, want)
	}
	if count, _ := engine.FunderCount(); count != 2 {
		t.Fatalf("funder count = %d, want 2", count)
	}
}

func TestFundBelowMinimumRejected(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))

	// 2e15 base units = 4 USD, just below the 5 USD floor.
	err := engine.Fund(alice, big.NewInt(2e15))
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("err = %v, want ErrBelowMinimum", err)
	}
	if recorded, _ := engine.AmountFunded(alice); recorded.Sign() != 0 {
		t.Fatalf("recorded = %s, want 0", recorded)
	}
	if count, _ := engine.FunderCount(); count != 0 {
		t.Fatalf("funder count = %d, want 0", count)
	}
	balance, _ := state.GetAccount(alice[:])
	if balance.Balance.Cmp(eth(1000)) != 0 {
		t.Fatalf("sender balance changed: %s", balance.Balance)
	}
}

func TestFundExactMinimumAccepted(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))

	// 2.5e15 base units = exactly 5 USD at the test rate.
	if err := engine.Fund(alice, big.NewInt(25e14)); err != nil {
		t.Fatalf("fund at exact minimum: %v", err)
	}
}

func TestFundFailsClosedWhenFeedUnavailable(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, feed := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))
	feed.Fail(errors.New("upstream timeout"))

	err := engine.Fund(alice, eth(10))
	if !errors.Is(err, pricefeed.ErrFeedUnavailable) {
		t.Fatalf("err = %v, want ErrFeedUnavailable", err)
	}
	if count, _ := engine.FunderCount(); count != 0 {
		t.Fatalf("funder count = %d, want 0", count)
	}
}

func TestFundInsufficientBalanceRollsBack(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, _, _ := newTestEngine(t, owner)

	err := engine.Fund(alice, eth(10))
	if err == nil {
		t.Fatal("expected error for unfunded sender")
	}
	if recorded, _ := engine.AmountFunded(alice); recorded.Sign() != 0 {
		t.Fatalf("recorded = %s, want 0", recorded)
	}
	if count, _ := engine.FunderCount(); count != 0 {
		t.Fatalf("funder count = %d, want 0", count)
	}
}

func TestSweepRejectsNonOwner(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))
	if err := engine.Fund(alice, eth(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}

	err := engine.Sweep(alice)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	if recorded, _ := engine.AmountFunded(alice); recorded.Cmp(eth(10)) != 0 {
		t.Fatalf("recorded = %s, want %s", recorded, eth(10))
	}
	held, _ := engine.HeldBalance()
	if held.Cmp(eth(10)) != 0 {
		t.Fatalf("held = %s, want %s", held, eth(10))
	}
}

func TestSweepResetsStateAndPaysOwner(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	bob := newTestAddress(0xBB)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))
	credit(t, state, bob, eth(1000))

	// Three contributions, one duplicated contributor.
	for _, c := range []struct {
		who    [20]byte
		amount *big.Int
	}{
		{alice, eth(10)},
		{bob, eth(20)},
		{alice, eth(5)},
	} {
		if err := engine.Fund(c.who, c.amount); err != nil {
			t.Fatalf("fund: %v", err)
		}
	}

	total := eth(35)
	held, _ := engine.HeldBalance()
	if held.Cmp(total) != 0 {
		t.Fatalf("held = %s, want %s", held, total)
	}
	ownerBefore, _ := state.GetAccount(owner[:])

	if err := engine.Sweep(owner); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	for _, who := range [][20]byte{alice, bob} {
		if recorded, _ := engine.AmountFunded(who); recorded.Sign() != 0 {
			t.Fatalf("contribution for %x = %s, want 0", who, recorded)
		}
	}
	if count, _ := engine.FunderCount(); count != 0 {
		t.Fatalf("funder count = %d, want 0", count)
	}
	if held, _ = engine.HeldBalance(); held.Sign() != 0 {
		t.Fatalf("held = %s, want 0", held)
	}
	ownerAfter, _ := state.GetAccount(owner[:])
	gained := new(big.Int).Sub(ownerAfter.Balance, ownerBefore.Balance)
	if gained.Cmp(total) != 0 {
		t.Fatalf("owner gained %s, want %s", gained, total)
	}
}

func TestSweepTransferFailureRollsBack(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))
	if err := engine.Fund(alice, eth(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	engine.SetPayoutFunc(func(to [20]byte, amount *big.Int) error {
		return errors.New("recipient rejected transfer")
	})

	err := engine.Sweep(owner)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}

	// Everything reverts: records, sequence and held balance.
	if recorded, _ := engine.AmountFunded(alice); recorded.Cmp(eth(10)) != 0 {
		t.Fatalf("recorded = %s, want %s", recorded, eth(10))
	}
	if count, _ := engine.FunderCount(); count != 1 {
		t.Fatalf("funder count = %d, want 1", count)
	}
	held, _ := engine.HeldBalance()
	if held.Cmp(eth(10)) != 0 {
		t.Fatalf("held = %s, want %s", held, eth(10))
	}
	ownerAcc, _ := state.GetAccount(owner[:])
	if ownerAcc.Balance.Sign() != 0 {
		t.Fatalf("owner balance = %s, want 0", ownerAcc.Balance)
	}
}

func TestSweepReentrancyObservesResetState(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))
	if err := engine.Fund(alice, eth(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}

	var payouts []*big.Int
	reentered := false
	engine.SetPayoutFunc(func(to [20]byte, amount *big.Int) error {
		payouts = append(payouts, new(big.Int).Set(amount))
		if reentered {
			return nil
		}
		reentered = true
		// The recipient re-enters during the outbound transfer. The ledger
		// must already be reset, so neither call can double anything.
		if recorded, _ := engine.AmountFunded(alice); recorded.Sign() != 0 {
			t.Errorf("nested call saw contribution %s, want 0", recorded)
		}
		if count, _ := engine.FunderCount(); count != 0 {
			t.Errorf("nested call saw %d funders, want 0", count)
		}
		if held, _ := engine.HeldBalance(); held.Sign() != 0 {
			t.Errorf("nested call saw held balance %s, want 0", held)
		}
		if err := engine.Sweep(owner); err != nil {
			t.Errorf("nested sweep: %v", err)
		}
		return nil
	})

	if err := engine.Sweep(owner); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(payouts) != 2 {
		t.Fatalf("payout count = %d, want 2", len(payouts))
	}
	if payouts[0].Cmp(eth(10)) != 0 {
		t.Fatalf("outer payout = %s, want %s", payouts[0], eth(10))
	}
	if payouts[1].Sign() != 0 {
		t.Fatalf("nested payout = %s, want 0", payouts[1])
	}
}

func TestRoundTripConservation(t *testing.T) {
	owner := newTestAddress(0x01)
	engine, state, _ := newTestEngine(t, owner)

	sum := big.NewInt(0)
	for i := 0; i < 5; i++ {
		contributor := newTestAddress(byte(0x10 + i))
		amount := eth(int64(10 * (i + 1)))
		credit(t, state, contributor, amount)
		if err := engine.Fund(contributor, amount); err != nil {
			t.Fatalf("fund %d: %v", i, err)
		}
		sum.Add(sum, amount)
	}
	held, _ := engine.HeldBalance()
	if held.Cmp(sum) != 0 {
		t.Fatalf("held = %s, want %s", held, sum)
	}

	ownerBefore, _ := state.GetAccount(owner[:])
	if err := engine.Sweep(owner); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	ownerAfter, _ := state.GetAccount(owner[:])
	gained := new(big.Int).Sub(ownerAfter.Balance, ownerBefore.Balance)
	if gained.Cmp(sum) != 0 {
		t.Fatalf("owner gained %s, want %s", gained, sum)
	}
}

func TestFunderAtOutOfRange(t *testing.T) {
	owner := newTestAddress(0x01)
	alice := newTestAddress(0xAA)
	engine, state, _ := newTestEngine(t, owner)
	credit(t, state, alice, eth(1000))
	if err := engine.Fund(alice, eth(10)); err != nil {
		t.Fatalf("fund: %v", err)
	}

	for _, index := range []int{-1, 1, 42} {
		if _, err := engine.FunderAt(index); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("FunderAt(%d) err = %v, want ErrIndexOutOfRange", index, err)
		}
	}
	if _, err := engine.FunderAt(0); err != nil {
		t.Fatalf("FunderAt(0): %v", err)
	}
}

func TestAmountFundedDefaultsToZero(t *testing.T) {
	owner := newTestAddress(0x01)
	engine, _, _ := newTestEngine(t, owner)
	recorded, err := engine.AmountFunded(newTestAddress(0xCD))
	if err != nil {
		t.Fatalf("amount funded: %v", err)
	}
	if recorded.Sign() != 0 {
		t.Fatalf("recorded = %s, want 0", recorded)
	}
}

func TestFeedVersionPassThrough(t *testing.T) {
	owner := newTestAddress(0x01)
	engine, _, _ := newTestEngine(t, owner)
	version, err := engine.FeedVersion()
	if err != nil {
		t.Fatalf("feed version: %v", err)
	}
	if version != 4 {
		t.Fatalf("version = %d, want 4", version)
	}
}
