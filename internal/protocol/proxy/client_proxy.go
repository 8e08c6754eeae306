package proxy

import (
	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/danmuck/clangipc/internal/protocol/dispatch"
	"github.com/danmuck/clangipc/internal/protocol/message"
)

// Server receives client -> backend messages.
type Server interface {
	End()
	Alive()
	UpdateTranslationUnitsForEditor(message.UpdateTranslationUnitsForEditor)
	RemoveTranslationUnitsForEditor(message.RemoveTranslationUnitsForEditor)
	RequestDocumentAnnotations(message.RequestDocumentAnnotations)
	RequestSourceLocationsForRenaming(message.RequestSourceLocationsForRenaming)
	CompleteCode(message.CompleteCode)
}

// ClientProxy is the backend's handle on the client.
type ClientProxy struct {
	*Proxy
}

func NewClientProxy(stream channel.Stream, server Server, cfg Config) *ClientProxy {
	if cfg.Role == "" {
		cfg.Role = "backend"
	}
	table := dispatch.NewTable()
	if server != nil {
		registerServer(table, server)
	}
	return &ClientProxy{Proxy: New(stream, table, cfg)}
}

func registerServer(table *dispatch.Table, s Server) {
	_ = dispatch.On(table, func(message.End) { s.End() })
	_ = dispatch.On(table, func(message.Alive) { s.Alive() })
	_ = dispatch.On(table, s.UpdateTranslationUnitsForEditor)
	_ = dispatch.On(table, s.RemoveTranslationUnitsForEditor)
	_ = dispatch.On(table, s.RequestDocumentAnnotations)
	_ = dispatch.On(table, s.RequestSourceLocationsForRenaming)
	_ = dispatch.On(table, s.CompleteCode)
}

func (c *ClientProxy) Alive() error {
	return c.Send(message.Alive{})
}

func (c *ClientProxy) DocumentAnnotationsChanged(m message.DocumentAnnotationsChanged) error {
	return c.Send(m)
}

func (c *ClientProxy) SourceLocationsForRenaming(m message.SourceLocationsForRenaming) error {
	return c.Send(m)
}

func (c *ClientProxy) CodeCompleted(m message.CodeCompleted) error {
	return c.Send(m)
}

func (c *ClientProxy) TranslationUnitDoesNotExist(container message.FileContainer) error {
	return c.Send(message.TranslationUnitDoesNotExist{FileContainer: container})
}
