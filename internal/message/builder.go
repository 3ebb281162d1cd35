// Package message renders alert casts with byte-accurate mention offsets.
//
// The posting API consumes mention positions as byte offsets into the
// UTF-8 encoded text, and alert text can carry multi-byte emoji, so every
// position is measured from the encoded length of the text accumulated so
// far. The builder appends text and records positions together; a position
// is never computed against text that will still change before it.
package message

import (
	"sort"
	"strconv"
	"strings"

	"github.com/anastasiarods/moxie-alerts-bot/internal/fantoken"
	"github.com/anastasiarods/moxie-alerts-bot/internal/identity"
	"github.com/anastasiarods/moxie-alerts-bot/internal/interp"
	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

// whaleBanner is prepended to large trades. It contains multi-byte emoji, so
// its byte length exceeds its character count; all mention offsets recorded
// after it shift by len(whaleBanner) bytes.
const whaleBanner = "🐋 🚨 Whale alert\n\n"

// reserveSymbol is the platform reserve currency
const reserveSymbol = "MOXIE"

// Message is a fully rendered alert ready for publishing.
// Mentions and MentionsPositions are parallel: MentionsPositions[i] is the
// byte offset in Text where Mentions[i] is rendered.
type Message struct {
	Text              string
	Mentions          []string
	MentionsPositions []int
	ParentURL         string
	EmbedURL          string
}

// builder accumulates text and mention offsets together
type builder struct {
	text      strings.Builder
	mentions  []string
	positions []int
}

func (b *builder) writeText(s string) {
	b.text.WriteString(s)
}

// mention records the current byte length as the mention's position
func (b *builder) mention(handleID string) {
	b.positions = append(b.positions, b.text.Len())
	b.mentions = append(b.mentions, handleID)
}

func (b *builder) message() *Message {
	return &Message{
		Text:              b.text.String(),
		Mentions:          b.mentions,
		MentionsPositions: b.positions,
	}
}

// Config holds message formatting thresholds
type Config struct {
	// WhaleThreshold is the reserve-currency amount that triggers the banner
	WhaleThreshold float64
	// Precision is the number of decimal places in formatted amounts
	Precision int
}

// Builder renders alert messages for qualified transactions
type Builder struct {
	config Config
	log    logger.Logger
}

// NewBuilder creates a new message builder
func NewBuilder(cfg Config, log logger.Logger) *Builder {
	if cfg.Precision == 0 {
		cfg.Precision = DefaultPrecision
	}

	return &Builder{
		config: cfg,
		log:    log.With(logger.F("component", "message")),
	}
}

// TradeParties returns the spender and beneficiary addresses of a trade,
// lowercased. The spender is the sender of the sold leg; the beneficiary is
// the receiver of the bought leg.
func TradeParties(tx *interp.InterpretedTransaction, counter, subject *interp.AssetTransfer) (spender, beneficiary string) {
	if tx.Direction == interp.DirectionSell {
		return strings.ToLower(subject.From.Address), strings.ToLower(counter.To.Address)
	}
	return strings.ToLower(counter.From.Address), strings.ToLower(subject.To.Address)
}

// BuildTrade renders a buy or sell alert. actor is the resolved identity of
// the transaction's user and must carry a handle id. beneficiary is the
// resolved identity of the receiving address when it differs from the
// spender; a trade on behalf of an unresolvable beneficiary cannot be
// rendered safely, so the whole message is dropped.
//
// channelURL, when non-empty, threads the cast under the channel's canonical
// parent post.
func (m *Builder) BuildTrade(
	tx *interp.InterpretedTransaction,
	counter, subject *interp.AssetTransfer,
	actor, beneficiary *identity.Identity,
	sameParty bool,
	channelURL string,
) *Message {
	if actor == nil || actor.HandleID == "" {
		m.log.Debug("no actor identity", logger.F("tx", tx.TxHash))
		return nil
	}
	if !sameParty && (beneficiary == nil || beneficiary.HandleID == "") {
		m.log.Debug("no beneficiary identity", logger.F("tx", tx.TxHash))
		return nil
	}

	b := &builder{}

	if crossesThreshold(counter.Amount, m.config.WhaleThreshold) {
		b.writeText(whaleBanner)
	}

	b.mention(actor.HandleID)
	b.writeText(" " + tx.Direction.String() + " " + FormatNumber(subject.Amount, m.config.Precision) + " Fan Tokens of ")

	info := fantoken.GetDisplayInfo(subject.Asset.Symbol, subject.Asset.Name)
	var parentURL string

	switch fantoken.Classify(subject.Asset.Symbol) {
	case fantoken.KindUser:
		if info.ID != "" {
			b.mention(info.ID)
		} else {
			b.writeText(info.DisplayName)
		}
	case fantoken.KindChannel:
		b.writeText(info.DisplayName)
		parentURL = channelURL
	default:
		b.writeText(info.DisplayName)
	}

	b.writeText(" for " + FormatNumber(counter.Amount, m.config.Precision) + " " + counter.Asset.Symbol)

	if !sameParty {
		b.writeText(" on behalf of ")
		b.mention(beneficiary.HandleID)
	}

	msg := b.message()
	msg.ParentURL = parentURL
	return msg
}

// BuildBurn renders a fan token burn alert. The burned fan token is located
// through the decoder's contract metadata because the interpreted burn only
// carries the reserve-currency leg.
func (m *Builder) BuildBurn(
	tx *interp.InterpretedTransaction,
	decoded *interp.DecodedTransaction,
	actor *identity.Identity,
) *Message {
	if actor == nil || actor.HandleID == "" {
		m.log.Debug("no actor identity", logger.F("tx", tx.TxHash))
		return nil
	}
	if len(tx.AssetsSent) == 0 {
		return nil
	}

	b := &builder{}
	b.writeText("🔥 ")
	b.mention(actor.HandleID)

	sent := tx.AssetsSent[0]
	b.writeText(" burned " + FormatNumber(sent.Amount, m.config.Precision) + " " + sent.Asset.Symbol)

	if meta, ok := fanTokenMeta(decoded); ok {
		info := fantoken.GetDisplayInfo(meta.TokenSymbol, meta.ContractName)
		if fantoken.Classify(meta.TokenSymbol) == fantoken.KindUser && info.ID != "" {
			b.writeText(" for ")
			b.mention(info.ID)
			b.writeText(" Fan Token hodlers")
		}
	}

	return b.message()
}

// BuildStake renders a stake alert. The staked fan token is the sent leg for
// deposits and the minted leg otherwise.
func (m *Builder) BuildStake(
	tx *interp.InterpretedTransaction,
	actor *identity.Identity,
) *Message {
	if actor == nil || actor.HandleID == "" {
		m.log.Debug("no actor identity", logger.F("tx", tx.TxHash))
		return nil
	}

	b := &builder{}
	b.mention(actor.HandleID)

	var fanToken *interp.AssetTransfer
	if tx.Method == "depositAndLock" {
		if len(tx.AssetsSent) > 0 {
			fanToken = &tx.AssetsSent[0]
		}
	} else if len(tx.AssetsMinted) > 0 {
		fanToken = &tx.AssetsMinted[0]
	}

	if fanToken != nil && fanToken.Asset.Symbol != "" && fanToken.Asset.Name != "" {
		info := fantoken.GetDisplayInfo(fanToken.Asset.Symbol, fanToken.Asset.Name)

		switch fantoken.Classify(fanToken.Asset.Symbol) {
		case fantoken.KindUser:
			if info.ID != "" {
				b.writeText(" " + actionPrefix(tx.Action) + " ")
				b.mention(info.ID)
			}
		case fantoken.KindChannel:
			if info.ID != "" {
				b.writeText(" " + tx.Action + " ")
			}
		}
	}

	return b.message()
}

// actionPrefix returns the action text up to and including " of", so the
// staked subject can be replaced by a mention. Falls back to the full action
// when the upstream wording changes.
func actionPrefix(action string) string {
	idx := strings.Index(action, " of")
	if idx < 0 {
		return action
	}
	return action[:idx+len(" of")]
}

// fanTokenMeta finds the first non-reserve token contract in the decoder
// metadata. Addresses are visited in sorted order so repeated builds of the
// same transaction yield byte-identical output.
func fanTokenMeta(decoded *interp.DecodedTransaction) (interp.AddressMeta, bool) {
	if decoded == nil {
		return interp.AddressMeta{}, false
	}

	addrs := make([]string, 0, len(decoded.AddressesMeta))
	for addr := range decoded.AddressesMeta {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		meta := decoded.AddressesMeta[addr]
		if meta.TokenSymbol != "" && meta.TokenSymbol != reserveSymbol && meta.ContractName != "" {
			return meta, true
		}
	}
	return interp.AddressMeta{}, false
}

// crossesThreshold compares a decimal-string amount against the whale
// threshold
func crossesThreshold(amount string, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return false
	}
	return v >= threshold
}
