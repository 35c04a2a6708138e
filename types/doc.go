// Package types contains the public value types, interfaces, and sentinel
// errors of the nsbundle library.
//
// Keeping these in a leaf package lets internal packages depend on them
// without importing the root nsbundle package, avoiding import cycles.
// The root package re-exports the common names via type aliases.
package types
