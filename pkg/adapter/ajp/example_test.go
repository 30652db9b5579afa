package ajp_test

import (
	"context"
	"log"

	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
	"github.com/marmos91/ajpd/pkg/adapter/ajp"
	"github.com/marmos91/ajpd/pkg/metrics"
)

func ExampleNew() {
	config := ajp.AJPConfig{Address: "127.0.0.1", Port: ajp.DefaultPort}
	handler := ajpproto.EchoHandler{ServerName: "example"}

	// nil metrics falls back to the no-op collector.
	adapter, err := ajp.New(config, handler, nil)
	if err != nil {
		log.Fatal(err)
	}

	// An explicit collector is passed the same way.
	if _, err := ajp.New(config, handler, metrics.NewNoopAJPMetrics()); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = adapter.Serve(ctx) }()
}
