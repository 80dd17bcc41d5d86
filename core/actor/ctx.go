package actor

import (
	"context"
	"log/slog"
)

type (
	// Meta is the delivery metadata attached to an envelope by its sender.
	Meta struct {
		Source    string `json:"source,omitempty"`
		Height    uint32 `json:"height"`
		MessageID string `json:"message_id,omitempty"`
	}

	HandlerCtx interface {
		context.Context
		Log() *slog.Logger
		// Meta describes the message currently being handled.
		Meta() Meta
	}
)

type handlerCtx struct {
	context.Context
	log  *slog.Logger
	meta Meta
}

func (hc *handlerCtx) Log() *slog.Logger { return hc.log }
func (hc *handlerCtx) Meta() Meta        { return hc.meta }

var _ HandlerCtx = (*handlerCtx)(nil)
