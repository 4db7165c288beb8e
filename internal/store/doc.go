// Package store defines the persistence contract for letters and their
// schedule state. The scheduling core depends only on these interfaces;
// concrete implementations live under internal/platform.
package store
