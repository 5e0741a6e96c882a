// Package concepts provides a runtime for entities that are defined
// declaratively: typed properties, trigger-driven behaviours, and
// composable action pipelines, all described in data and executed by a
// generic engine.
//
// The core code is in package 'core'.  Backing stores live under
// 'datastore', the definition-document loader is package 'def', and a
// command-line runner is in 'cmd/conceptd'.
package concepts
