// SPDX-License-Identifier: Apache-2.0

package postgres

import "errors"

var (
	ErrMissingKey      = errors.New("upsert and update rows require a key column")
	ErrNoUpdateColumns = errors.New("update row has no columns to set besides the key")
)
