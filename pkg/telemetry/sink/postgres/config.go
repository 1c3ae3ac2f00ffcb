// SPDX-License-Identifier: Apache-2.0

package postgres

import "errors"

type Config struct {
	// URL is the connection string for the target database.
	URL string
}

func (c *Config) IsValid() error {
	if c.URL == "" {
		return errors.New("postgres URL is required")
	}
	return nil
}
