package main

import (
	"github.com/mrzor/wirestamp/internal/config"
	"github.com/mrzor/wirestamp/internal/correlation"
)

// buildFrame returns one outgoing frame: the identity tags followed by
// PayloadSize opaque bytes. Untagged frames carry only the payload.
func buildFrame(cfg *config.Config, identity string) []byte {
	payload := cfg.PayloadSize
	if cfg.Untagged && payload == 0 {
		payload = 1
	}

	var frame []byte
	if !cfg.Untagged {
		frame = correlation.AppendMetadata(frame, &correlation.Key{
			Identity:  identity,
			Direction: cfg.Direction,
			Operation: cfg.Operation,
		})
	}
	return append(frame, make([]byte, payload)...)
}
