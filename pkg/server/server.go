package server

import (
	"context"

	"github.com/toastate/toastblog/internal/server"
)

type Server interface {
	Start(ctx context.Context, withBuilder bool) error
	TriggerReload()
}

type Options = server.Options

func NewServer(opts Options) Server {
	return server.NewServer(opts)
}
