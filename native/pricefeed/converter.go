package pricefeed

import (
	"fmt"
	"math/big"
)

// TargetDecimals is the fixed-point precision every price is normalised to
// before threshold comparisons.
const TargetDecimals = 18

var unit18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(TargetDecimals), nil)

// Converter translates native-currency amounts into their USD-equivalent value
// using a live quote, insulating the ledger from the feed's native precision.
type Converter struct {
	feed Feed
}

// NewConverter wraps the supplied feed.
func NewConverter(feed Feed) *Converter {
	return &Converter{feed: feed}
}

// Price returns the latest feed price normalised to 18-decimal fixed point.
// Quotes with fewer decimals are scaled up; quotes with more are scaled down
// by truncating division. Any feed failure or non-positive price surfaces as
// ErrFeedUnavailable.
func (c *Converter) Price() (*big.Int, error) {
	if c == nil || c.feed == nil {
		return nil, ErrFeedUnavailable
	}
	price, decimals, err := c.feed.LatestPrice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	if price == nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive price", ErrFeedUnavailable)
	}
	normalised := new(big.Int).Set(price)
	switch {
	case decimals < TargetDecimals:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(TargetDecimals-decimals)), nil)
		normalised.Mul(normalised, scale)
	case decimals > TargetDecimals:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-TargetDecimals)), nil)
		normalised.Quo(normalised, scale)
		if normalised.Sign() <= 0 {
			return nil, fmt.Errorf("%w: price vanished during normalisation", ErrFeedUnavailable)
		}
	}
	return normalised, nil
}

// ConvertToUSD computes (price18 * amount) / 1e18, yielding the USD-equivalent
// value of amount in 18-decimal fixed point. The product is formed in full
// before the division so no precision is lost to early truncation.
func (c *Converter) ConvertToUSD(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("pricefeed: amount must be non-negative")
	}
	price, err := c.Price()
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(price, amount)
	return value.Quo(value, unit18), nil
}

// FeedVersion reports the feed's version metadata without caching.
func (c *Converter) FeedVersion() (uint64, error) {
	if c == nil || c.feed == nil {
		return 0, ErrFeedUnavailable
	}
	version, err := c.feed.Version()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	return version, nil
}
