// Package timeouts defines shared timeout constants used across commands.
package timeouts

import "time"

// StoreOpen caps the wait time when connecting to the document store.
const StoreOpen = 10 * time.Second

// Shutdown limits how long the processor waits for the health server to
// drain during graceful shutdown.
const Shutdown = 5 * time.Second
