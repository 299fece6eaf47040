package pricefeed

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// Feed resolves the latest native-currency/USD price from an external oracle.
// Price is a fixed-point integer scaled by the reported number of decimals.
// Implementations must return an error rather than a zero or negative price.
type Feed interface {
	LatestPrice() (price *big.Int, decimals uint8, err error)
	Version() (uint64, error)
}

// ErrFeedUnavailable indicates that no usable quote could be produced. Callers
// must fail closed: a missing price never lets a threshold check pass.
var ErrFeedUnavailable = errors.New("pricefeed: feed unavailable")

// ManualFeed provides an in-memory feed implementation used for tests and
// manual overrides during incident response.
type ManualFeed struct {
	mu       sync.RWMutex
	price    *big.Int
	decimals uint8
	version  uint64
	err      error
}

// NewManualFeed constructs a manual feed with the supplied quote.
func NewManualFeed(price *big.Int, decimals uint8, version uint64) *ManualFeed {
	f := &ManualFeed{decimals: decimals, version: version}
	if price != nil {
		f.price = new(big.Int).Set(price)
	}
	return f
}

// Set replaces the stored quote.
func (f *ManualFeed) Set(price *big.Int, decimals uint8) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = nil
	if price != nil {
		f.price = new(big.Int).Set(price)
	}
	f.decimals = decimals
	f.err = nil
}

// Fail makes every subsequent LatestPrice call return err until the next Set.
func (f *ManualFeed) Fail(err error) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *ManualFeed) LatestPrice() (*big.Int, uint8, error) {
	if f == nil {
		return nil, 0, fmt.Errorf("pricefeed: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	if f.price == nil {
		return nil, 0, fmt.Errorf("pricefeed: manual feed has no quote")
	}
	return new(big.Int).Set(f.price), f.decimals, nil
}

func (f *ManualFeed) Version() (uint64, error) {
	if f == nil {
		return 0, fmt.Errorf("pricefeed: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version, nil
}
