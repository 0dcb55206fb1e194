package subscription

import (
	"fmt"
	"strings"

	"github.com/YaganovValera/analytics-system/services/venue-client/internal/protocol"
)

// AssetClass — класс актива; определяет MTI и тег потока в пакетах подписки.
type AssetClass int

const (
	FX AssetClass = iota + 1
	CFD
	SB
)

// classOrder — порядок отправки пакетов.
var classOrder = []AssetClass{FX, CFD, SB}

func (c AssetClass) String() string {
	switch c {
	case FX:
		return "FX"
	case CFD:
		return "CFD"
	case SB:
		return "SB"
	}
	return fmt.Sprintf("AssetClass(%d)", int(c))
}

// StreamTag — streamType, который указывается в instrumentList.
func (c AssetClass) StreamTag() int {
	switch c {
	case FX:
		return 1
	case CFD:
		return 80
	case SB:
		return 160
	}
	return 0
}

func (c AssetClass) SubscribeMTI() int {
	switch c {
	case FX:
		return protocol.MTIFXSubscribe
	case CFD:
		return protocol.MTICFDSubscribe
	case SB:
		return protocol.MTISBSubscribe
	}
	return 0
}

func (c AssetClass) UnsubscribeMTI() int {
	switch c {
	case FX:
		return protocol.MTIFXUnsubscribe
	case CFD:
		return protocol.MTICFDUnsubscribe
	case SB:
		return protocol.MTISBUnsubscribe
	}
	return 0
}

func (c AssetClass) Valid() bool { return c >= FX && c <= SB }

// ParseAssetClass разбирает "FX", "CFD", "SB" без учёта регистра.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FX":
		return FX, nil
	case "CFD":
		return CFD, nil
	case "SB":
		return SB, nil
	}
	return 0, fmt.Errorf("subscription: unknown asset class %q", s)
}
