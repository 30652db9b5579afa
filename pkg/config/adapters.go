package config

import (
	"fmt"

	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
	"github.com/marmos91/ajpd/pkg/adapter"
	"github.com/marmos91/ajpd/pkg/adapter/ajp"
	"github.com/marmos91/ajpd/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete ajpd configuration
//   - handler: Serves forwarded requests (nil = ajp.EchoHandler)
//   - ajpMetrics: Optional AJP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, handler ajpproto.RequestHandler, ajpMetrics metrics.AJPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.AJP.Enabled {
		if err := CreateTransportOptions(&cfg.Adapters.AJP); err != nil {
			return nil, err
		}
		ajpAdapter, err := ajp.New(cfg.Adapters.AJP, handler, ajpMetrics)
		if err != nil {
			return nil, fmt.Errorf("create AJP adapter: %w", err)
		}
		adapters = append(adapters, ajpAdapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
