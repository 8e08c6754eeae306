package proxy

import (
	"github.com/danmuck/clangipc/internal/protocol/channel"
	"github.com/danmuck/clangipc/internal/protocol/dispatch"
	"github.com/danmuck/clangipc/internal/protocol/message"
)

// Client receives backend -> client messages.
type Client interface {
	Alive()
	DocumentAnnotationsChanged(message.DocumentAnnotationsChanged)
	SourceLocationsForRenaming(message.SourceLocationsForRenaming)
	CodeCompleted(message.CodeCompleted)
	TranslationUnitDoesNotExist(message.TranslationUnitDoesNotExist)
}

// NopClient ignores every message. Embed it to implement part of Client.
type NopClient struct{}

func (NopClient) Alive()                                                          {}
func (NopClient) DocumentAnnotationsChanged(message.DocumentAnnotationsChanged)   {}
func (NopClient) SourceLocationsForRenaming(message.SourceLocationsForRenaming)   {}
func (NopClient) CodeCompleted(message.CodeCompleted)                             {}
func (NopClient) TranslationUnitDoesNotExist(message.TranslationUnitDoesNotExist) {}

// ServerProxy is the client's handle on the backend: typed senders for requests,
// incoming replies routed to a Client.
type ServerProxy struct {
	*Proxy
}

// NewServerProxy routes incoming messages to client. A nil client leaves every
// tag unhandled.
func NewServerProxy(stream channel.Stream, client Client, cfg Config) *ServerProxy {
	if cfg.Role == "" {
		cfg.Role = "client"
	}
	table := dispatch.NewTable()
	if client != nil {
		registerClient(table, client)
	}
	return &ServerProxy{Proxy: New(stream, table, cfg)}
}

func registerClient(table *dispatch.Table, c Client) {
	_ = dispatch.On(table, func(message.Alive) { c.Alive() })
	_ = dispatch.On(table, c.DocumentAnnotationsChanged)
	_ = dispatch.On(table, c.SourceLocationsForRenaming)
	_ = dispatch.On(table, c.CodeCompleted)
	_ = dispatch.On(table, c.TranslationUnitDoesNotExist)
}

func (s *ServerProxy) End() error {
	return s.Send(message.End{})
}

func (s *ServerProxy) Alive() error {
	return s.Send(message.Alive{})
}

func (s *ServerProxy) UpdateTranslationUnitsForEditor(containers []message.FileContainer) error {
	return s.Send(message.UpdateTranslationUnitsForEditor{FileContainers: containers})
}

func (s *ServerProxy) RemoveTranslationUnitsForEditor(containers []message.FileContainer) error {
	return s.Send(message.RemoveTranslationUnitsForEditor{FileContainers: containers})
}

func (s *ServerProxy) RequestDocumentAnnotations(container message.FileContainer) error {
	return s.Send(message.RequestDocumentAnnotations{FileContainer: container})
}

func (s *ServerProxy) RequestSourceLocationsForRenaming(m message.RequestSourceLocationsForRenaming) error {
	return s.Send(m)
}

func (s *ServerProxy) CompleteCode(m message.CompleteCode) error {
	return s.Send(m)
}
