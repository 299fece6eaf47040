package pricefeed

import (
	"fmt"
	"math/big"
	"sync"
)

// Aggregator consults a list of registered feeds in priority order until one
// produces a usable quote. A quote is usable when the feed returns no error
// and the price is strictly positive; everything else falls through to the
// next feed, and exhausting the list surfaces ErrFeedUnavailable.
type Aggregator struct {
	mu    sync.RWMutex
	feeds []Feed
}

// NewAggregator constructs an aggregator over the supplied feeds in priority
// order. Nil entries are skipped.
func NewAggregator(feeds ...Feed) *Aggregator {
	a := &Aggregator{}
	for _, feed := range feeds {
		if feed != nil {
			a.feeds = append(a.feeds, feed)
		}
	}
	return a
}

// Register appends a feed at the lowest priority.
func (a *Aggregator) Register(feed Feed) {
	if a == nil || feed == nil {
		return
	}
	a.mu.Lock()
	a.feeds = append(a.feeds, feed)
	a.mu.Unlock()
}

func (a *Aggregator) LatestPrice() (*big.Int, uint8, error) {
	if a == nil {
		return nil, 0, fmt.Errorf("pricefeed: aggregator not configured")
	}
	a.mu.RLock()
	feeds := append([]Feed{}, a.feeds...)
	a.mu.RUnlock()

	var lastErr error
	for _, feed := range feeds {
		price, decimals, err := feed.LatestPrice()
		if err != nil {
			lastErr = err
			continue
		}
		if price == nil || price.Sign() <= 0 {
			lastErr = fmt.Errorf("pricefeed: feed returned non-positive price")
			continue
		}
		return price, decimals, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no feeds registered")
	}
	return nil, 0, fmt.Errorf("%w: %v", ErrFeedUnavailable, lastErr)
}

// Version reports the version of the highest-priority feed that answers.
func (a *Aggregator) Version() (uint64, error) {
	if a == nil {
		return 0, fmt.Errorf("pricefeed: aggregator not configured")
	}
	a.mu.RLock()
	feeds := append([]Feed{}, a.feeds...)
	a.mu.RUnlock()

	var lastErr error
	for _, feed := range feeds {
		version, err := feed.Version()
		if err != nil {
			lastErr = err
			continue
		}
		return version, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no feeds registered")
	}
	return 0, fmt.Errorf("%w: %v", ErrFeedUnavailable, lastErr)
}
