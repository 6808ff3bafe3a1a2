// SPDX-License-Identifier: MIT
package state

import "fmt"

// New creates a snapshot store for the configured backend.
func New(backend, dir string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "badger":
		return OpenBadger(dir)
	default:
		return nil, fmt.Errorf("state: unknown backend %q", backend)
	}
}
