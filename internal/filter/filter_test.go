package filter

import (
	"testing"

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

func transfer(symbol, name, amount string) interp.AssetTransfer {
	return interp.AssetTransfer{
		From:   interp.Account{Address: "0xaaa"},
		To:     interp.Account{Address: "0xbbb"},
		Amount: amount,
		Asset: interp.Asset{
			Symbol: symbol,
			Name:   name,
			Kind:   interp.AssetFungible,
		},
	}
}

func buySwap(fanSymbol, fanAmount, moxieAmount string) *interp.InterpretedTransaction {
	return &interp.InterpretedTransaction{
		Type:           interp.TxTypeSwap,
		Direction:      interp.DirectionBuy,
		AssetsSent:     []interp.AssetTransfer{transfer("MOXIE", "Moxie", moxieAmount)},
		AssetsReceived: []interp.AssetTransfer{transfer(fanSymbol, "alice", fanAmount)},
	}
}

func TestShouldAlert(t *testing.T) {
	f := New(Config{MinMoxieAmount: 1000}, &mockLogger{})

	tests := []struct {
		name string
		tx   *interp.InterpretedTransaction
		want bool
	}{
		{
			name: "burn always passes",
			tx:   &interp.InterpretedTransaction{Type: interp.TxTypeBurn},
			want: true,
		},
		{
			name: "stake always passes",
			tx:   &interp.InterpretedTransaction{Type: interp.TxTypeStake},
			want: true,
		},
		{
			name: "unknown type excluded",
			tx:   &interp.InterpretedTransaction{Type: interp.TxTypeUnknown},
			want: false,
		},
		{
			name: "qualifying buy passes",
			tx:   buySwap("fid:42", "100", "5000"),
			want: true,
		},
		{
			name: "moxie leg below floor excluded",
			tx:   buySwap("fid:42", "100", "500"),
			want: false,
		},
		{
			name: "network token excluded",
			tx:   buySwap("id:farcaster", "100", "5000"),
			want: false,
		},
		{
			name: "malformed shape excluded",
			tx: &interp.InterpretedTransaction{
				Type:       interp.TxTypeSwap,
				Direction:  interp.DirectionBuy,
				AssetsSent: []interp.AssetTransfer{transfer("MOXIE", "Moxie", "5000")},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ShouldAlert(tt.tx); got != tt.want {
				t.Errorf("ShouldAlert() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldAlertMoxieFloorScenario(t *testing.T) {
	// Counter asset MOXIE, amount 500, threshold 1000 must be filtered out
	f := New(Config{MinMoxieAmount: 1000}, &mockLogger{})
	tx := buySwap("fid:42", "10", "500")
	if f.ShouldAlert(tx) {
		t.Error("expected swap with 500 MOXIE below threshold 1000 to be filtered out")
	}
}

func TestExtractPairPlainSwap(t *testing.T) {
	f := New(Config{MinMoxieAmount: 0}, &mockLogger{})

	// Buy: counter is the sent MOXIE, subject is the received fan token
	buy := buySwap("fid:42", "100", "5000")
	counter, subject, ok := f.ExtractPair(buy)
	if !ok {
		t.Fatal("expected pair to be extracted")
	}
	if counter.Asset.Symbol != "MOXIE" || subject.Asset.Symbol != "fid:42" {
		t.Errorf("unexpected pair: counter=%s subject=%s", counter.Asset.Symbol, subject.Asset.Symbol)
	}

	// Sell: legs flip
	sell := &interp.InterpretedTransaction{
		Type:           interp.TxTypeSwap,
		Direction:      interp.DirectionSell,
		AssetsSent:     []interp.AssetTransfer{transfer("fid:42", "alice", "100")},
		AssetsReceived: []interp.AssetTransfer{transfer("MOXIE", "Moxie", "5000")},
	}
	counter, subject, ok = f.ExtractPair(sell)
	if !ok {
		t.Fatal("expected pair to be extracted")
	}
	if counter.Asset.Symbol != "MOXIE" || subject.Asset.Symbol != "fid:42" {
		t.Errorf("unexpected pair: counter=%s subject=%s", counter.Asset.Symbol, subject.Asset.Symbol)
	}
}

func TestExtractPairBondingCurve(t *testing.T) {
	f := New(Config{MinMoxieAmount: 0}, &mockLogger{})

	// Buy backed by mint
	buy := &interp.InterpretedTransaction{
		Type:         interp.TxTypeSwap,
		Direction:    interp.DirectionBuy,
		AssetsSent:   []interp.AssetTransfer{transfer("MOXIE", "Moxie", "5000")},
		AssetsMinted: []interp.AssetTransfer{transfer("fid:42", "alice", "100")},
	}
	counter, subject, ok := f.ExtractPair(buy)
	if !ok {
		t.Fatal("expected mint-backed buy pair")
	}
	if counter.Asset.Symbol != "MOXIE" || subject.Asset.Symbol != "fid:42" {
		t.Errorf("unexpected pair: counter=%s subject=%s", counter.Asset.Symbol, subject.Asset.Symbol)
	}

	// Sell backed by burn
	sell := &interp.InterpretedTransaction{
		Type:           interp.TxTypeSwap,
		Direction:      interp.DirectionSell,
		AssetsReceived: []interp.AssetTransfer{transfer("MOXIE", "Moxie", "5000")},
		AssetsBurned:   []interp.AssetTransfer{transfer("fid:42", "alice", "100")},
	}
	counter, subject, ok = f.ExtractPair(sell)
	if !ok {
		t.Fatal("expected burn-backed sell pair")
	}
	if counter.Asset.Symbol != "MOXIE" || subject.Asset.Symbol != "fid:42" {
		t.Errorf("unexpected pair: counter=%s subject=%s", counter.Asset.Symbol, subject.Asset.Symbol)
	}

	// Mint-backed shape with sell direction is rejected
	wrong := &interp.InterpretedTransaction{
		Type:         interp.TxTypeSwap,
		Direction:    interp.DirectionSell,
		AssetsSent:   []interp.AssetTransfer{transfer("MOXIE", "Moxie", "5000")},
		AssetsMinted: []interp.AssetTransfer{transfer("fid:42", "alice", "100")},
	}
	if _, _, ok := f.ExtractPair(wrong); ok {
		t.Error("expected mismatched direction/shape to be rejected")
	}
}
