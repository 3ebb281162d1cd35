// Package fantoken classifies Moxie fan tokens by their symbol convention.
//
// Fan token symbols are namespaced by a colon-delimited prefix: "fid:<id>"
// for a Farcaster user, "cid:<id>" for a channel, and "id:<id>" for the
// network-wide token. Classification is purely syntactic and is the single
// source of truth for every downstream formatting decision.
package fantoken

import "strings"

// Kind is the fan token family
type Kind string

const (
	KindUser    Kind = "user"
	KindChannel Kind = "channel"
	KindNetwork Kind = "network"
	KindOther   Kind = "other"
)

const (
	userPrefix    = "fid:"
	channelPrefix = "cid:"
	networkPrefix = "id:"

	// networkLabel is the display name substituted for network tokens
	networkLabel = "Farcaster Network"
)

// Classify returns the fan token kind for a symbol
func Classify(symbol string) Kind {
	switch {
	case strings.HasPrefix(symbol, userPrefix):
		return KindUser
	case strings.HasPrefix(symbol, channelPrefix):
		return KindChannel
	case strings.HasPrefix(symbol, networkPrefix):
		return KindNetwork
	default:
		return KindOther
	}
}

// DisplayInfo holds the renderable name of a fan token and, for user and
// channel tokens, the id embedded in the symbol.
type DisplayInfo struct {
	DisplayName string
	ID          string
}

// GetDisplayInfo strips the symbol prefix to obtain a lookup-able id.
// Network tokens get a fixed label; unrecognized symbols keep their name.
func GetDisplayInfo(symbol, name string) DisplayInfo {
	switch Classify(symbol) {
	case KindUser:
		return DisplayInfo{
			DisplayName: name,
			ID:          strings.TrimPrefix(symbol, userPrefix),
		}
	case KindChannel:
		return DisplayInfo{
			DisplayName: name,
			ID:          strings.TrimPrefix(symbol, channelPrefix),
		}
	case KindNetwork:
		return DisplayInfo{DisplayName: networkLabel}
	default:
		return DisplayInfo{DisplayName: name}
	}
}
