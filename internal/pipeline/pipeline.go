// Package pipeline drives a matched transaction from log receipt to
// published cast.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/anastasiarods/moxie-alerts-bot/internal/farcaster"
	"github.com/anastasiarods/moxie-alerts-bot/internal/fantoken"
	"github.com/anastasiarods/moxie-alerts-bot/internal/filter"
	"github.com/anastasiarods/moxie-alerts-bot/internal/identity"
	"github.com/anastasiarods/moxie-alerts-bot/internal/interp"
	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
	"github.com/anastasiarods/moxie-alerts-bot/internal/message"
	"github.com/anastasiarods/moxie-alerts-bot/internal/redis"
)

// FinalityWaiter blocks until a transaction is mined
type FinalityWaiter interface {
	Wait(ctx context.Context, txHash string) (*types.Receipt, error)
}

// Resolver resolves a wallet address to a Farcaster identity
type Resolver interface {
	Resolve(ctx context.Context, address string) (*identity.Identity, error)
}

// Publisher submits a rendered message and returns the cast hash
type Publisher interface {
	Publish(ctx context.Context, msg *message.Message) (string, error)
}

// ChannelDirectory looks up channel details for cast threading
type ChannelDirectory interface {
	GetChannel(ctx context.Context, channelID string) (*farcaster.Channel, error)
}

// Deduper suppresses duplicate processing of a transaction hash
type Deduper interface {
	ProcessWithDedup(ctx context.Context, txHash string, processor func() error) error
}

// Config holds pipeline configuration
type Config struct {
	ChainID int
	// FrameEndpoint, when set, is the base URL of the transaction frame
	// embedded in each cast
	FrameEndpoint string
}

// Pipeline turns a transaction hash into a published alert. Every stage
// failure is logged and swallowed; one bad transaction must never take the
// subscription down.
type Pipeline struct {
	config      Config
	receipts    FinalityWaiter
	decoder     interp.Decoder
	interpreter interp.Interpreter
	filter      *filter.Filter
	resolver    Resolver
	builder     *message.Builder
	channels    ChannelDirectory
	publisher   Publisher
	deduper     Deduper // nil when redis is not configured
	log         logger.Logger
}

// New creates a new alert pipeline
func New(
	cfg Config,
	receipts FinalityWaiter,
	decoder interp.Decoder,
	interpreter interp.Interpreter,
	f *filter.Filter,
	resolver Resolver,
	builder *message.Builder,
	channels ChannelDirectory,
	publisher Publisher,
	deduper Deduper,
	log logger.Logger,
) *Pipeline {
	return &Pipeline{
		config:      cfg,
		receipts:    receipts,
		decoder:     decoder,
		interpreter: interpreter,
		filter:      f,
		resolver:    resolver,
		builder:     builder,
		channels:    channels,
		publisher:   publisher,
		deduper:     deduper,
		log:         log.With(logger.F("component", "pipeline")),
	}
}

// Process handles one matched transaction end to end. It is safe to call
// concurrently for different hashes.
func (p *Pipeline) Process(ctx context.Context, txHash string) {
	log := p.log.With(logger.F("tx_hash", txHash))

	run := func() error { return p.process(ctx, txHash) }

	var err error
	if p.deduper != nil {
		err = p.deduper.ProcessWithDedup(ctx, txHash, run)
		if errors.Is(err, redis.ErrTxAlreadyProcessed) {
			log.Debug("duplicate delivery, skipping")
			return
		}
	} else {
		err = run()
	}

	if err != nil {
		log.Error("failed to process transaction", logger.F("error", err))
	}
}

// process runs the pipeline stages for one transaction
func (p *Pipeline) process(ctx context.Context, txHash string) error {
	log := p.log.With(logger.F("tx_hash", txHash))

	receipt, err := p.receipts.Wait(ctx, txHash)
	if err != nil {
		return fmt.Errorf("receipt wait: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		log.Debug("transaction reverted, skipping")
		return nil
	}

	decoded, err := p.decoder.Decode(ctx, p.config.ChainID, txHash)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if decoded == nil {
		log.Debug("decoder does not know transaction, skipping")
		return nil
	}

	tx, err := p.interpreter.Interpret(ctx, decoded.WithoutZeroTransfers())
	if err != nil {
		return fmt.Errorf("interpret: %w", err)
	}

	if !p.filter.ShouldAlert(tx) {
		log.Debug("transaction does not qualify for an alert",
			logger.F("type", string(tx.Type)),
		)
		return nil
	}

	msg, err := p.buildMessage(ctx, tx, decoded)
	if err != nil {
		return err
	}
	if msg == nil {
		log.Debug("no renderable message for transaction")
		return nil
	}

	if p.config.FrameEndpoint != "" {
		msg.EmbedURL = fmt.Sprintf("%s/%d/%s", p.config.FrameEndpoint, p.config.ChainID, txHash)
	}

	castHash, err := p.publisher.Publish(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	log.Info("alert published",
		logger.F("cast_hash", castHash),
		logger.F("type", string(tx.Type)),
	)
	return nil
}

// buildMessage routes the transaction to the constructor for its type
func (p *Pipeline) buildMessage(ctx context.Context, tx *interp.InterpretedTransaction, decoded *interp.DecodedTransaction) (*message.Message, error) {
	switch tx.Type {
	case interp.TxTypeSwap:
		return p.buildTrade(ctx, tx)
	case interp.TxTypeBurn:
		actor, err := p.resolver.Resolve(ctx, tx.User.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve actor: %w", err)
		}
		return p.builder.BuildBurn(tx, decoded, actor), nil
	case interp.TxTypeStake:
		actor, err := p.resolver.Resolve(ctx, tx.User.Address)
		if err != nil {
			return nil, fmt.Errorf("resolve actor: %w", err)
		}
		return p.builder.BuildStake(tx, actor), nil
	default:
		return nil, nil
	}
}

// buildTrade resolves the trade parties and renders a buy/sell alert.
// The mentioned actor is the transaction's user; the spender/beneficiary
// pair only decides whether the trade ran on someone else's behalf.
func (p *Pipeline) buildTrade(ctx context.Context, tx *interp.InterpretedTransaction) (*message.Message, error) {
	counter, subject, ok := p.filter.ExtractPair(tx)
	if !ok {
		return nil, nil
	}

	spender, beneficiary := message.TradeParties(tx, counter, subject)
	sameParty := spender == beneficiary

	actor, err := p.resolver.Resolve(ctx, strings.ToLower(tx.User.Address))
	if err != nil {
		return nil, fmt.Errorf("resolve actor: %w", err)
	}

	var beneficiaryID *identity.Identity
	if !sameParty {
		beneficiaryID, err = p.resolver.Resolve(ctx, beneficiary)
		if err != nil {
			return nil, fmt.Errorf("resolve beneficiary: %w", err)
		}
	}

	channelURL := p.lookupChannelURL(ctx, subject)

	return p.builder.BuildTrade(tx, counter, subject, actor, beneficiaryID, sameParty, channelURL), nil
}

// lookupChannelURL finds the canonical channel URL for channel fan tokens.
// Lookup failures only cost the cast its threading, never the alert.
func (p *Pipeline) lookupChannelURL(ctx context.Context, subject *interp.AssetTransfer) string {
	if p.channels == nil {
		return ""
	}
	if fantoken.Classify(subject.Asset.Symbol) != fantoken.KindChannel {
		return ""
	}

	info := fantoken.GetDisplayInfo(subject.Asset.Symbol, subject.Asset.Name)
	if info.ID == "" {
		return ""
	}

	channel, err := p.channels.GetChannel(ctx, info.ID)
	if err != nil {
		p.log.Warn("channel lookup failed",
			logger.F("channel_id", info.ID),
			logger.F("error", err),
		)
		return ""
	}
	if channel == nil {
		return ""
	}
	return channel.URL
}
