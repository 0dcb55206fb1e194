package protocol

// Коды MTI (message type identifier).
const (
	// trade
	MTITradeLogin        = 1001
	MTIFXInstrumentList  = 1002
	MTIPositions         = 1005
	MTIAccountList       = 1031
	MTICFDInstrumentList = 1202
	MTISBInstrumentList  = 1302

	MTIFXPlaceOrder     = 2000
	MTIFXPlaceStrategy  = 2003
	MTIFXModifyOrder    = 2008
	MTIFXCancelOrder    = 2009
	MTICFDPlaceOrder    = 2300
	MTICFDPlaceStrategy = 2303
	MTICFDModifyOrder   = 2308
	MTICFDCancelOrder   = 2309
	MTISBPlaceOrder     = 2500
	MTISBPlaceStrategy  = 2503
	MTISBModifyOrder    = 2508
	MTISBCancelOrder    = 2509

	// signals
	MTISignalList     = 1180
	MTINotifyNewOrder = 1182

	// price
	MTIFXPrices  = 3000
	MTICFDPrices = 3200
	MTISBPrices  = 3500

	MTIPriceLogin     = 5008
	MTIFXSubscribe    = 5010
	MTIFXUnsubscribe  = 5012
	MTIChangeAccount  = 5013
	MTICFDSubscribe   = 5210
	MTICFDUnsubscribe = 5212
	MTISBSubscribe    = 5510
	MTISBUnsubscribe  = 5512
)

// IsPriceStream — MTI несёт обновления цен.
func IsPriceStream(mti int) bool {
	switch mti {
	case MTIFXPrices, MTICFDPrices, MTISBPrices:
		return true
	}
	return false
}

// IsSubscriptionAck — ответ сервера на пакет подписки/отписки.
func IsSubscriptionAck(mti int) bool {
	switch mti {
	case MTIFXSubscribe, MTIFXUnsubscribe,
		MTICFDSubscribe, MTICFDUnsubscribe,
		MTISBSubscribe, MTISBUnsubscribe:
		return true
	}
	return false
}
