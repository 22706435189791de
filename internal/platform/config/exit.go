package config

import (
	"fmt"
	"os"
)

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	ExitWithCode(1, format, args...)
}

// ExitWithCode writes a formatted error message to stderr and exits with code.
// Command entry points use code 2 for usage errors.
func ExitWithCode(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
