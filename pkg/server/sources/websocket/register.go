package websocket

import "github.com/Magicwander/OKX-submission-complete/pkg/server/sources"

func init() {
	sources.Register(string(sources.SourceTypeStream), NewStreamSource)
}
