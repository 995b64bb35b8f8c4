package cex

import (
	"github.com/Magicwander/OKX-submission-complete/pkg/server/sources"
)

func init() {
	sources.Register("cex.okx", NewOKXSource)
	sources.Register("cex.binance", NewBinanceSource)
	sources.Register("cex.coingecko", NewCoinGeckoSource)
	sources.Register("cex.kraken", NewKrakenSource)
}
