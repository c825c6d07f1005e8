package strategy

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"straddlebot/internal/delta"
)

// ErrNoContracts is returned when no option contract matches the underlying
var ErrNoContracts = errors.New("no option contracts match the underlying")

// SelectATM picks the at-the-money contract: among the products whose
// description mentions the underlying ticker, the one whose strike is
// closest to the reference price. Ties keep the first candidate
// encountered, so listing order decides.
func SelectATM(products []delta.Product, underlying string, reference decimal.Decimal) (*delta.Product, error) {
	var best *delta.Product
	var bestDistance decimal.Decimal

	for i := range products {
		p := &products[i]
		if !strings.Contains(p.Description, underlying) {
			continue
		}

		distance := p.StrikePrice.Sub(reference).Abs()
		if best == nil || distance.LessThan(bestDistance) {
			best = p
			bestDistance = distance
		}
	}

	if best == nil {
		return nil, ErrNoContracts
	}
	return best, nil
}
