package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"lean-assistant/internal/bootstrap"
	"lean-assistant/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx, func(ctx context.Context) (*cli.Runtime, error) {
		app, err := bootstrap.New(ctx, bootstrap.Options{})
		if err != nil {
			return nil, err
		}
		rt := &cli.Runtime{
			KnowledgeBase: app.Assistant,
			KnowledgeDir:  app.Config.RAG.KnowledgeDir,
			Close:         app.Close,
		}
		if app.IngestPublisher != nil {
			rt.Publisher = app.IngestPublisher
		}
		return rt, nil
	})
}
