// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"

	"github.com/anvilhq/anvil/pkg/mapping"
	mqttlistener "github.com/anvilhq/anvil/pkg/telemetry/listener/mqtt"
	pgsink "github.com/anvilhq/anvil/pkg/telemetry/sink/postgres"
)

type Config struct {
	Listener mqttlistener.Config
	Sink     pgsink.Config
	// Mappings drive the topic to row translation. A config without mappings
	// is valid, every message is still copied to the raw table.
	Mappings *mapping.Config
	// RawTable receives a copy of every message. Empty means the default.
	RawTable string
}

func (c *Config) IsValid() error {
	if c.Mappings == nil {
		return errors.New("mappings are required, use an empty list to only store raw messages")
	}
	if err := c.Listener.IsValid(); err != nil {
		return err
	}
	return c.Sink.IsValid()
}
