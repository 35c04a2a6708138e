package nsbundle

import "github.com/arloliu/nsbundle/types"

// Re-export types from the internal types package.
//
// This file provides a stable public API for the library's core types
// and interfaces. It uses type aliases to re-export definitions from the
// `types` subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal
// packages to depend on `types` without depending on the root nsbundle
// package, while still providing a convenient `nsbundle.Bundle`,
// `nsbundle.Logger`, etc. for users.
type (
	Bundle                 = types.Bundle
	BundleTable            = types.BundleTable
	BundlesData            = types.BundlesData
	LocalPolicy            = types.LocalPolicy
	LocalPolicyWithVersion = types.LocalPolicyWithVersion
	Notification           = types.Notification
	BundleStats            = types.BundleStats
)

// Re-export interfaces from the internal types package for convenience.
type (
	MetadataGateway  = types.MetadataGateway
	LoadManager      = types.LoadManager
	TopicLister      = types.TopicLister
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
)

// Re-export hash-space sentinels.
const (
	FirstBoundary = types.FirstBoundary
	LastBoundary  = types.LastBoundary
)
