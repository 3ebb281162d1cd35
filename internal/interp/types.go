package interp

import (
	"encoding/json"
	"strings"
)

// TxType is the interpreted transaction category
type TxType string

const (
	TxTypeSwap    TxType = "swap"
	TxTypeBurn    TxType = "burn"
	TxTypeStake   TxType = "stake"
	TxTypeUnknown TxType = "unknown"
)

// Direction is the trade direction of a swap.
// It is derived exactly once, from the upstream action text, when the
// interpreter response is decoded. Downstream code must branch on this enum
// instead of re-parsing the action prose.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

// String returns the verb used in alert text
func (d Direction) String() string {
	if d == DirectionSell {
		return "sold"
	}
	return "bought"
}

// DeriveDirection maps the upstream free-text action to a Direction.
// The upstream interpreter phrases sells as "Sold ..."; anything else is
// treated as a buy.
func DeriveDirection(action string) Direction {
	if strings.Contains(action, "Sold") {
		return DirectionSell
	}
	return DirectionBuy
}

// AssetKind distinguishes fungible tokens from NFTs
type AssetKind string

const (
	AssetFungible    AssetKind = "fungible"
	AssetNonFungible AssetKind = "non-fungible"
)

// Account is a chain address with an optional resolved name
type Account struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Asset describes the token moved by a transfer
type Asset struct {
	Address string    `json:"address"`
	Name    string    `json:"name"`
	Symbol  string    `json:"symbol"`
	Kind    AssetKind `json:"type"`
	TokenID string    `json:"tokenId,omitempty"`
}

// AssetTransfer is a single asset movement within a transaction.
// Amount is a decimal string to preserve precision through formatting.
type AssetTransfer struct {
	From   Account `json:"from"`
	To     Account `json:"to"`
	Amount string  `json:"amount"`
	Asset  Asset   `json:"asset"`
}

// InterpretedTransaction is the structured interpretation of a transaction.
// It is produced once by the interpreter and immutable within the pipeline.
type InterpretedTransaction struct {
	Type           TxType          `json:"type"`
	Action         string          `json:"action"`
	Direction      Direction       `json:"-"`
	ChainID        int             `json:"chain"`
	TxHash         string          `json:"txHash"`
	User           Account         `json:"user"`
	Method         string          `json:"method"`
	AssetsSent     []AssetTransfer `json:"assetsSent"`
	AssetsReceived []AssetTransfer `json:"assetsReceived"`
	AssetsMinted   []AssetTransfer `json:"assetsMinted,omitempty"`
	AssetsBurned   []AssetTransfer `json:"assetsBurned,omitempty"`
}

// UnmarshalJSON decodes the wire representation and derives Direction from
// the action text, so the prose is parsed in exactly one place.
func (tx *InterpretedTransaction) UnmarshalJSON(data []byte) error {
	type alias InterpretedTransaction
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*tx = InterpretedTransaction(a)
	tx.Direction = DeriveDirection(tx.Action)
	return nil
}

// AddressMeta is the decoder's per-contract metadata
type AddressMeta struct {
	TokenSymbol  string `json:"tokenSymbol"`
	ContractName string `json:"contractName"`
}

// RawTransfer is an undecorated transfer from the decoder
type RawTransfer struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Address string `json:"address"`
}

// DecodedTransaction is the decoder's output, forwarded to the interpreter.
// Raw carries the full decoder payload so interpretation does not depend on
// this package modeling every decoder field.
type DecodedTransaction struct {
	ChainID       int                    `json:"chainID"`
	TxHash        string                 `json:"txHash"`
	Transfers     []RawTransfer          `json:"transfers"`
	AddressesMeta map[string]AddressMeta `json:"addressesMeta"`
	Raw           json.RawMessage        `json:"-"`
}

// WithoutZeroTransfers returns a copy with zero-amount transfers dropped.
// The interpreter misclassifies some bonding-curve swaps when dust transfers
// are left in.
func (d *DecodedTransaction) WithoutZeroTransfers() *DecodedTransaction {
	filtered := make([]RawTransfer, 0, len(d.Transfers))
	for _, t := range d.Transfers {
		if t.Amount != "0" {
			filtered = append(filtered, t)
		}
	}

	out := *d
	out.Transfers = filtered
	return &out
}
