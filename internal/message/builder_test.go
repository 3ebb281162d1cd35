package message

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/anastasiarods/moxie-alerts-bot/internal/identity"
	"github.com/anastasiarods/moxie-alerts-bot/internal/interp"
	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

// mockLogger implements logger.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, fields ...logger.Field) {}
func (m *mockLogger) Info(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Warn(msg string, fields ...logger.Field)  {}
func (m *mockLogger) Error(msg string, fields ...logger.Field) {}
func (m *mockLogger) Fatal(msg string, fields ...logger.Field) {}
func (m *mockLogger) With(fields ...logger.Field) logger.Logger {
	return m
}

func newTestBuilder(whaleThreshold float64) *Builder {
	return NewBuilder(Config{WhaleThreshold: whaleThreshold, Precision: 3}, &mockLogger{})
}

func tradeTx(direction interp.Direction, fanSymbol, fanName, fanAmount, moxieAmount string) (*interp.InterpretedTransaction, *interp.AssetTransfer, *interp.AssetTransfer) {
	fan := interp.AssetTransfer{
		From:   interp.Account{Address: "0xSpender"},
		To:     interp.Account{Address: "0xSpender"},
		Amount: fanAmount,
		Asset:  interp.Asset{Symbol: fanSymbol, Name: fanName},
	}
	moxie := interp.AssetTransfer{
		From:   interp.Account{Address: "0xSpender"},
		To:     interp.Account{Address: "0xSpender"},
		Amount: moxieAmount,
		Asset:  interp.Asset{Symbol: "MOXIE", Name: "Moxie"},
	}

	tx := &interp.InterpretedTransaction{
		Type:      interp.TxTypeSwap,
		Direction: direction,
		TxHash:    "0xhash",
		User:      interp.Account{Address: "0xSpender"},
	}
	return tx, &moxie, &fan
}

func assertValidPositions(t *testing.T, msg *Message) {
	t.Helper()
	if len(msg.Mentions) != len(msg.MentionsPositions) {
		t.Fatalf("mentions/positions length mismatch: %d vs %d", len(msg.Mentions), len(msg.MentionsPositions))
	}
	prev := -1
	for i, pos := range msg.MentionsPositions {
		if pos < 0 || pos > len(msg.Text) {
			t.Errorf("position %d out of range [0,%d]", pos, len(msg.Text))
		}
		if pos < len(msg.Text) && !utf8.RuneStart(msg.Text[pos]) {
			t.Errorf("position %d is not a UTF-8 boundary", pos)
		}
		if pos < prev {
			t.Errorf("positions not non-decreasing: %v", msg.MentionsPositions)
		}
		prev = pos
		_ = i
	}
}

func TestBuildTradeUserToken(t *testing.T) {
	b := newTestBuilder(0)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:42", "alice", "100", "5000")
	actor := &identity.Identity{HandleID: "999", DisplayName: "bob"}

	msg := b.BuildTrade(tx, counter, subject, actor, nil, true, "")
	if msg == nil {
		t.Fatal("expected message")
	}
	assertValidPositions(t, msg)

	// The subject's literal name must not appear; it is rendered as a mention
	if strings.Contains(msg.Text, "alice") {
		t.Errorf("text must omit user fan token name, got %q", msg.Text)
	}

	wantPrefix := " bought 100 Fan Tokens of "
	if !strings.HasPrefix(msg.Text, wantPrefix) {
		t.Fatalf("unexpected text %q", msg.Text)
	}

	if !reflect.DeepEqual(msg.Mentions, []string{"999", "42"}) {
		t.Errorf("unexpected mentions %v", msg.Mentions)
	}
	if msg.MentionsPositions[0] != 0 {
		t.Errorf("actor mention position = %d, want 0", msg.MentionsPositions[0])
	}
	// The subject mention points right after "Fan Tokens of "
	if msg.MentionsPositions[1] != len(wantPrefix) {
		t.Errorf("subject mention position = %d, want %d", msg.MentionsPositions[1], len(wantPrefix))
	}
}

func TestBuildTradeWhaleBanner(t *testing.T) {
	b := newTestBuilder(300000)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:42", "alice", "100", "400000")
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildTrade(tx, counter, subject, actor, nil, true, "")
	if msg == nil {
		t.Fatal("expected message")
	}
	assertValidPositions(t, msg)

	if !strings.HasPrefix(msg.Text, "🐋 🚨 Whale alert\n\n") {
		t.Fatalf("expected whale banner prefix, got %q", msg.Text)
	}

	// The banner's byte length exceeds its character count because of the
	// emoji, and every offset shifts by the byte length.
	banner := "🐋 🚨 Whale alert\n\n"
	if len(banner) <= utf8.RuneCountInString(banner) {
		t.Fatal("test banner must contain multi-byte runes")
	}
	if msg.MentionsPositions[0] != len(banner) {
		t.Errorf("actor mention position = %d, want %d", msg.MentionsPositions[0], len(banner))
	}

	wantSubjectPos := len(banner) + len(" bought 100 Fan Tokens of ")
	if msg.MentionsPositions[1] != wantSubjectPos {
		t.Errorf("subject mention position = %d, want %d", msg.MentionsPositions[1], wantSubjectPos)
	}
}

func TestBuildTradeBelowWhaleThresholdNoBanner(t *testing.T) {
	b := newTestBuilder(300000)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:42", "alice", "100", "299999")
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildTrade(tx, counter, subject, actor, nil, true, "")
	if msg == nil {
		t.Fatal("expected message")
	}
	if strings.Contains(msg.Text, "Whale alert") {
		t.Errorf("unexpected banner in %q", msg.Text)
	}
	if msg.MentionsPositions[0] != 0 {
		t.Errorf("actor mention position = %d, want 0", msg.MentionsPositions[0])
	}
}

func TestBuildTradeChannelToken(t *testing.T) {
	b := newTestBuilder(0)
	tx, counter, subject := tradeTx(interp.DirectionSell, "cid:degen", "degen", "50", "2000")
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildTrade(tx, counter, subject, actor, nil, true, "https://warpcast.com/~/channel/degen")
	if msg == nil {
		t.Fatal("expected message")
	}
	assertValidPositions(t, msg)

	// Channels are rendered as literal text, not mentions
	if !strings.Contains(msg.Text, "degen") {
		t.Errorf("expected channel name in text, got %q", msg.Text)
	}
	if len(msg.Mentions) != 1 {
		t.Errorf("expected only the actor mention, got %v", msg.Mentions)
	}
	if msg.ParentURL != "https://warpcast.com/~/channel/degen" {
		t.Errorf("unexpected parent url %q", msg.ParentURL)
	}
	if !strings.Contains(msg.Text, " sold ") {
		t.Errorf("expected sell verb, got %q", msg.Text)
	}
}

func TestBuildTradeOnBehalfOf(t *testing.T) {
	b := newTestBuilder(0)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:42", "alice", "100", "5000")
	actor := &identity.Identity{HandleID: "999"}
	beneficiary := &identity.Identity{HandleID: "777"}

	msg := b.BuildTrade(tx, counter, subject, actor, beneficiary, false, "")
	if msg == nil {
		t.Fatal("expected message")
	}
	assertValidPositions(t, msg)

	if !strings.HasSuffix(msg.Text, " on behalf of ") {
		t.Errorf("expected on-behalf-of suffix, got %q", msg.Text)
	}
	if len(msg.Mentions) != 3 || msg.Mentions[2] != "777" {
		t.Errorf("unexpected mentions %v", msg.Mentions)
	}
	if msg.MentionsPositions[2] != len(msg.Text) {
		t.Errorf("beneficiary mention position = %d, want %d", msg.MentionsPositions[2], len(msg.Text))
	}
}

func TestBuildTradeUnresolvedBeneficiaryAborts(t *testing.T) {
	b := newTestBuilder(0)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:42", "alice", "100", "5000")
	actor := &identity.Identity{HandleID: "999"}

	if msg := b.BuildTrade(tx, counter, subject, actor, nil, false, ""); msg != nil {
		t.Errorf("expected nil message for unresolved beneficiary, got %+v", msg)
	}
}

func TestBuildTradeUnresolvedActorAborts(t *testing.T) {
	b := newTestBuilder(0)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:42", "alice", "100", "5000")

	if msg := b.BuildTrade(tx, counter, subject, nil, nil, true, ""); msg != nil {
		t.Errorf("expected nil message for unresolved actor, got %+v", msg)
	}
}

func TestBuildTradeUserTokenWithoutIDFallsBackToName(t *testing.T) {
	b := newTestBuilder(0)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:", "alice", "100", "5000")
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildTrade(tx, counter, subject, actor, nil, true, "")
	if msg == nil {
		t.Fatal("expected message")
	}
	if !strings.Contains(msg.Text, "alice") {
		t.Errorf("expected fallback to display name, got %q", msg.Text)
	}
	if len(msg.Mentions) != 1 {
		t.Errorf("expected only the actor mention, got %v", msg.Mentions)
	}
}

func TestBuildTradeIdempotent(t *testing.T) {
	b := newTestBuilder(300000)
	tx, counter, subject := tradeTx(interp.DirectionBuy, "fid:42", "alice", "123.4567", "400000")
	actor := &identity.Identity{HandleID: "999"}

	first := b.BuildTrade(tx, counter, subject, actor, nil, true, "")
	second := b.BuildTrade(tx, counter, subject, actor, nil, true, "")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected byte-identical messages, got %+v and %+v", first, second)
	}
}

func TestBuildBurn(t *testing.T) {
	b := newTestBuilder(0)
	tx := &interp.InterpretedTransaction{
		Type:   interp.TxTypeBurn,
		TxHash: "0xhash",
		User:   interp.Account{Address: "0xabc"},
		AssetsSent: []interp.AssetTransfer{
			{Amount: "2500", Asset: interp.Asset{Symbol: "MOXIE", Name: "Moxie"}},
		},
	}
	decoded := &interp.DecodedTransaction{
		AddressesMeta: map[string]interp.AddressMeta{
			"0xmoxie": {TokenSymbol: "MOXIE", ContractName: "Moxie"},
			"0xfan":   {TokenSymbol: "fid:42", ContractName: "alice"},
		},
	}
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildBurn(tx, decoded, actor)
	if msg == nil {
		t.Fatal("expected message")
	}
	assertValidPositions(t, msg)

	if !strings.HasPrefix(msg.Text, "🔥 ") {
		t.Errorf("expected burn prefix, got %q", msg.Text)
	}
	if !strings.Contains(msg.Text, " burned 2,500 MOXIE") {
		t.Errorf("unexpected text %q", msg.Text)
	}
	if !strings.HasSuffix(msg.Text, " Fan Token hodlers") {
		t.Errorf("expected hodlers suffix, got %q", msg.Text)
	}
	if !reflect.DeepEqual(msg.Mentions, []string{"999", "42"}) {
		t.Errorf("unexpected mentions %v", msg.Mentions)
	}
	// Actor mention sits right after the emoji prefix, measured in bytes
	if msg.MentionsPositions[0] != len("🔥 ") {
		t.Errorf("actor mention position = %d, want %d", msg.MentionsPositions[0], len("🔥 "))
	}
}

func TestBuildBurnNoFanTokenMeta(t *testing.T) {
	b := newTestBuilder(0)
	tx := &interp.InterpretedTransaction{
		Type: interp.TxTypeBurn,
		User: interp.Account{Address: "0xabc"},
		AssetsSent: []interp.AssetTransfer{
			{Amount: "100", Asset: interp.Asset{Symbol: "MOXIE"}},
		},
	}
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildBurn(tx, &interp.DecodedTransaction{}, actor)
	if msg == nil {
		t.Fatal("expected message")
	}
	if len(msg.Mentions) != 1 {
		t.Errorf("expected only the actor mention, got %v", msg.Mentions)
	}
	if strings.Contains(msg.Text, "hodlers") {
		t.Errorf("unexpected hodlers suffix in %q", msg.Text)
	}
}

func TestBuildStakeDeposit(t *testing.T) {
	b := newTestBuilder(0)
	tx := &interp.InterpretedTransaction{
		Type:   interp.TxTypeStake,
		Action: "Locked 100 Fan Tokens of alice for 3 months",
		Method: "depositAndLock",
		User:   interp.Account{Address: "0xabc"},
		AssetsSent: []interp.AssetTransfer{
			{Amount: "100", Asset: interp.Asset{Symbol: "fid:42", Name: "alice"}},
		},
	}
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildStake(tx, actor)
	if msg == nil {
		t.Fatal("expected message")
	}
	assertValidPositions(t, msg)

	if !strings.Contains(msg.Text, "Locked 100 Fan Tokens of") {
		t.Errorf("expected action prefix, got %q", msg.Text)
	}
	if strings.Contains(msg.Text, "for 3 months") {
		t.Errorf("expected action truncated at the subject, got %q", msg.Text)
	}
	if !reflect.DeepEqual(msg.Mentions, []string{"999", "42"}) {
		t.Errorf("unexpected mentions %v", msg.Mentions)
	}
	if msg.MentionsPositions[1] != len(msg.Text) {
		t.Errorf("subject mention position = %d, want %d", msg.MentionsPositions[1], len(msg.Text))
	}
}

func TestBuildStakeChannelToken(t *testing.T) {
	b := newTestBuilder(0)
	tx := &interp.InterpretedTransaction{
		Type:   interp.TxTypeStake,
		Action: "Unlocked 50 Fan Tokens of /degen",
		Method: "withdraw",
		User:   interp.Account{Address: "0xabc"},
		AssetsMinted: []interp.AssetTransfer{
			{Amount: "50", Asset: interp.Asset{Symbol: "cid:degen", Name: "degen"}},
		},
	}
	actor := &identity.Identity{HandleID: "999"}

	msg := b.BuildStake(tx, actor)
	if msg == nil {
		t.Fatal("expected message")
	}
	// Channel stakes keep the full action as literal text, no extra mention
	if !strings.Contains(msg.Text, "Unlocked 50 Fan Tokens of /degen") {
		t.Errorf("unexpected text %q", msg.Text)
	}
	if len(msg.Mentions) != 1 {
		t.Errorf("expected only the actor mention, got %v", msg.Mentions)
	}
}

func TestTradeParties(t *testing.T) {
	fan := interp.AssetTransfer{
		From:  interp.Account{Address: "0xAAA"},
		To:    interp.Account{Address: "0xBBB"},
		Asset: interp.Asset{Symbol: "fid:42"},
	}
	moxie := interp.AssetTransfer{
		From:  interp.Account{Address: "0xCCC"},
		To:    interp.Account{Address: "0xDDD"},
		Asset: interp.Asset{Symbol: "MOXIE"},
	}

	buy := &interp.InterpretedTransaction{Direction: interp.DirectionBuy}
	spender, beneficiary := TradeParties(buy, &moxie, &fan)
	if spender != "0xccc" || beneficiary != "0xbbb" {
		t.Errorf("buy parties = (%s, %s), want (0xccc, 0xbbb)", spender, beneficiary)
	}

	sell := &interp.InterpretedTransaction{Direction: interp.DirectionSell}
	spender, beneficiary = TradeParties(sell, &moxie, &fan)
	if spender != "0xaaa" || beneficiary != "0xddd" {
		t.Errorf("sell parties = (%s, %s), want (0xaaa, 0xddd)", spender, beneficiary)
	}
}
