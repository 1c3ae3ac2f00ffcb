// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"strings"

	"github.com/lib/pq"
)

// QuoteIdentifier quotes an identifier (table or column name) so it can be
// safely interpolated into a statement.
func QuoteIdentifier(s string) string {
	// Remove any existing quotes to avoid double quoting
	s = strings.ReplaceAll(s, `"`, "")
	return pq.QuoteIdentifier(s)
}
