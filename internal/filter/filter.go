// Package filter decides which interpreted transactions become alerts.
package filter

import (
	"strconv"

	"github.com/anastasiarods/moxie-alerts-bot/internal/fantoken"
	"github.com/anastasiarods/moxie-alerts-bot/internal/interp"
	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

// reserveSymbol is the platform reserve currency every fan token trades
// against.
const reserveSymbol = "MOXIE"

// Config holds filter thresholds
type Config struct {
	// MinMoxieAmount is the anti-spam floor on the reserve-currency leg
	MinMoxieAmount float64
}

// Filter applies the alert qualification rules
type Filter struct {
	minMoxieAmount float64
	log            logger.Logger
}

// New creates a new transaction filter
func New(cfg Config, log logger.Logger) *Filter {
	return &Filter{
		minMoxieAmount: cfg.MinMoxieAmount,
		log:            log.With(logger.F("component", "filter")),
	}
}

// ExtractPair orders a swap's legs into (counter, subject), where counter is
// the reserve-currency leg and subject is the fan token leg.
//
// Two shapes qualify: a plain swap with exactly one sent and one received
// leg, and a bonding-curve swap where the fan token leg is minted (buy) or
// burned (sell). Anything else is rejected.
func (f *Filter) ExtractPair(tx *interp.InterpretedTransaction) (counter, subject *interp.AssetTransfer, ok bool) {
	// Plain swap
	if len(tx.AssetsSent) == 1 && len(tx.AssetsReceived) == 1 {
		if tx.Direction == interp.DirectionSell {
			return &tx.AssetsReceived[0], &tx.AssetsSent[0], true
		}
		return &tx.AssetsSent[0], &tx.AssetsReceived[0], true
	}

	// Bonding-curve swap backed by mint/burn
	if tx.Direction == interp.DirectionSell {
		if len(tx.AssetsReceived) == 1 && len(tx.AssetsBurned) == 1 {
			return &tx.AssetsReceived[0], &tx.AssetsBurned[0], true
		}
		return nil, nil, false
	}

	if len(tx.AssetsSent) == 1 && len(tx.AssetsMinted) == 1 {
		return &tx.AssetsSent[0], &tx.AssetsMinted[0], true
	}

	return nil, nil, false
}

// ShouldAlert reports whether a transaction qualifies for an alert.
// Burns and stakes always qualify; their alerting differs downstream.
func (f *Filter) ShouldAlert(tx *interp.InterpretedTransaction) bool {
	switch tx.Type {
	case interp.TxTypeBurn, interp.TxTypeStake:
		return true
	case interp.TxTypeSwap:
	default:
		return false
	}

	counter, subject, ok := f.ExtractPair(tx)
	if !ok {
		f.log.Debug("swap shape not recognized",
			logger.F("tx", tx.TxHash),
			logger.F("sent", len(tx.AssetsSent)),
			logger.F("received", len(tx.AssetsReceived)),
		)
		return false
	}

	if counter.Asset.Symbol == reserveSymbol && belowThreshold(counter.Amount, f.minMoxieAmount) {
		f.log.Debug("below reserve amount floor",
			logger.F("tx", tx.TxHash),
			logger.F("amount", counter.Amount),
		)
		return false
	}

	// Network-wide tokens are not newsworthy per-trade
	if fantoken.Classify(subject.Asset.Symbol) == fantoken.KindNetwork {
		return false
	}

	return true
}

// belowThreshold compares a decimal-string amount against a float threshold.
// Float precision is fine here; the floor is a coarse anti-spam bound, not an
// accounting value.
func belowThreshold(amount string, threshold float64) bool {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return false
	}
	return v < threshold
}
