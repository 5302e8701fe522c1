// Package normalizer provides the public API for embedding the request
// normalizer in another program.
//
// A host either serves the HTTP front door with Start, or calls the
// pipeline directly:
//
//	out := n.Runner().Run(ctx, &normalizer.StageInput{
//	    Payload:  payload,
//	    CallType: normalizer.CallCompletion,
//	})
package normalizer

import (
	"github.com/tjfontaine/polyglot-normalizer/internal/core/domain"
	"github.com/tjfontaine/polyglot-normalizer/internal/core/ports"
	"github.com/tjfontaine/polyglot-normalizer/internal/pipeline"
	"github.com/tjfontaine/polyglot-normalizer/internal/pkg/config"
	"github.com/tjfontaine/polyglot-normalizer/internal/runtime"
)

// Normalizer is the embeddable host.
// See internal/runtime.Normalizer for full documentation.
type Normalizer = runtime.Normalizer

// Option is a functional option for configuring a Normalizer.
type Option = runtime.Option

// New creates a new Normalizer with the given options.
// Example:
//
//	n, err := normalizer.New(
//	    normalizer.WithFileConfig("config.yaml"),
//	    normalizer.WithLogger(logger),
//	)
var New = runtime.New

// Configuration options
var (
	WithFileConfig = runtime.WithFileConfig
	WithConfig     = runtime.WithConfig
	WithLogger     = runtime.WithLogger

	// Pipeline collaborators
	WithSink           = runtime.WithSink
	WithStageRegistry  = runtime.WithStageRegistry
	WithTracerProvider = runtime.WithTracerProvider

	// Outbound HTTP
	WithWebhookClient  = runtime.WithWebhookClient
	WithUpstreamClient = runtime.WithUpstreamClient
)

// Configuration types
type (
	Config              = config.Config
	ServerConfig        = config.ServerConfig
	UpstreamConfig      = config.UpstreamConfig
	PipelineConfig      = config.PipelineConfig
	PipelineStageConfig = config.PipelineStageConfig
	SinkConfig          = config.SinkConfig
	SQLiteConfig        = config.SQLiteConfig
	PostgresConfig      = config.PostgresConfig
	TelemetryConfig     = config.TelemetryConfig
)

var (
	LoadConfig    = config.Load
	DefaultStages = config.DefaultStages
)

// Sink types accepted in SinkConfig.Type.
const (
	SinkLog      = runtime.SinkLog
	SinkSQLite   = runtime.SinkSQLite
	SinkPostgres = runtime.SinkPostgres
	SinkNone     = runtime.SinkNone
)

// Pipeline contract
type (
	StageInput     = ports.StageInput
	Stage          = ports.Stage
	RecordSink     = ports.RecordSink
	Runner         = pipeline.Runner
	Registry       = pipeline.Registry
	Constructor    = pipeline.Constructor
	Deps           = pipeline.Deps
	Payload        = domain.Payload
	Message        = domain.Message
	Role           = domain.Role
	CallType       = domain.CallType
	DispatchRecord = domain.DispatchRecord
)

var (
	NewRegistry   = pipeline.NewRegistry
	NewPayload    = domain.NewPayload
	NewMessage    = domain.NewMessage
	ParseCallType = domain.ParseCallType
)

// Call types
const (
	CallCompletion         = domain.CallCompletion
	CallTextCompletion     = domain.CallTextCompletion
	CallEmbeddings         = domain.CallEmbeddings
	CallImageGeneration    = domain.CallImageGeneration
	CallModeration         = domain.CallModeration
	CallAudioTranscription = domain.CallAudioTranscription
)

// Roles
const (
	RoleSystem    = domain.RoleSystem
	RoleUser      = domain.RoleUser
	RoleAssistant = domain.RoleAssistant
	RoleTool      = domain.RoleTool
	RoleFunction  = domain.RoleFunction
	RoleDeveloper = domain.RoleDeveloper
)
