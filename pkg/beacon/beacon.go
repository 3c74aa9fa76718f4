// Package beacon provides the public API for embedding the monitoring
// agent. This is the stable surface for external consumers.
package beacon

import (
	"github.com/tjfontaine/beacon-agent/internal/agent"
	"github.com/tjfontaine/beacon-agent/internal/capture"
	"github.com/tjfontaine/beacon-agent/internal/record"
	"github.com/tjfontaine/beacon-agent/internal/vitals"
)

// Agent is the monitoring facade. See internal/agent.Agent for full
// documentation.
type Agent = agent.Agent

// Option is a functional option for configuring an Agent.
type Option = agent.Option

// Status is the monitoring-status snapshot.
type Status = agent.Status

// Record types crossing the public surface.
type (
	ErrorRecord     = record.ErrorRecord
	MetricRecord    = record.MetricRecord
	CustomEvent     = record.CustomEvent
	Breadcrumb      = record.Breadcrumb
	User            = record.User
	Level           = record.Level
	ExceptionSignal = capture.ExceptionSignal
	ResourceSignal  = capture.ResourceSignal
	VitalSample     = vitals.Sample
	Rating          = vitals.Rating
)

const (
	LevelDebug   = record.LevelDebug
	LevelInfo    = record.LevelInfo
	LevelWarning = record.LevelWarning
	LevelError   = record.LevelError
)

// New creates an independent Agent with the given options.
// Example:
//
//	a, err := beacon.New(
//	    beacon.WithSQLite("./data/sessions.db"),
//	    beacon.WithLogger(logger),
//	)
var New = agent.New

// Init creates the process-wide default agent; a second call is a no-op
// returning the existing instance. Default retrieves it.
var (
	Init    = agent.Init
	Default = agent.Default
)

// Configuration options
var (
	WithConfig        = agent.WithConfig
	WithLogger        = agent.WithLogger
	WithStore         = agent.WithStore
	WithSQLite        = agent.WithSQLite
	WithMemoryStore   = agent.WithMemoryStore
	WithHTTPClient    = agent.WithHTTPClient
	WithBaseTransport = agent.WithBaseTransport
	WithClock         = agent.WithClock
	WithRand          = agent.WithRand
	WithUserAgent     = agent.WithUserAgent
)

// Rate buckets a Web Vitals value against the fixed thresholds.
var Rate = vitals.Rate
