// Package deps reads the generator's requirement manifest and installs it
// with the configured installer command.
package deps
