// SPDX-License-Identifier: MIT
package store

import "errors"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")
