package config

import (
	"fmt"

	"github.com/marmos91/ajpd/pkg/adapter/ajp"
	"github.com/mitchellh/mapstructure"
)

// CreateTransportOptions decodes cfg.Transport.Options into the typed option
// struct of the selected transport and stores it on cfg.
//
// Options are merged over the transport's defaults. Durations may be given
// as strings ("30s"), and unknown keys are rejected.
func CreateTransportOptions(cfg *ajp.AJPConfig) error {
	switch cfg.Transport.Type {
	case ajp.TransportTCP, "":
		opts := ajp.DefaultTCPOptions()
		if err := decodeOptions(cfg.Transport.Options, &opts); err != nil {
			return fmt.Errorf("adapters.ajp.transport.options: %w", err)
		}
		cfg.TCP = opts
		return nil

	case ajp.TransportUnix:
		var opts ajp.UnixOptions
		if err := decodeOptions(cfg.Transport.Options, &opts); err != nil {
			return fmt.Errorf("adapters.ajp.transport.options: %w", err)
		}
		cfg.Unix = opts
		return nil

	default:
		return fmt.Errorf("adapters.ajp.transport.type: unknown transport %q (valid: tcp, unix)", cfg.Transport.Type)
	}
}

func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	return decoder.Decode(options)
}
