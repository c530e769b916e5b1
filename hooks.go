package sigil

import "github.com/zoobzio/capitan"

// Signals for hook events.
const (
	RunStarted            = capitan.Signal("sigil.run.started")
	RunCompleted          = capitan.Signal("sigil.run.completed")
	RunFailed             = capitan.Signal("sigil.run.failed")
	RunRetrying           = capitan.Signal("sigil.run.retrying")
	ParseFailed           = capitan.Signal("sigil.parse.failed")
	ProviderCallStarted   = capitan.Signal("sigil.provider.call.started")
	ProviderCallCompleted = capitan.Signal("sigil.provider.call.completed")
	ProviderCallFailed    = capitan.Signal("sigil.provider.call.failed")
)

// Keys for hook event fields.
var (
	// Run identification.
	RunIDKey     = capitan.NewStringKey("sigil.run.id")
	SignatureKey = capitan.NewStringKey("sigil.signature")
	AdapterKey   = capitan.NewStringKey("sigil.adapter")
	AttemptKey   = capitan.NewIntKey("sigil.attempt")

	// Request data.
	TemperatureKey = capitan.NewFloat64Key("sigil.temperature")

	// Response data.
	ResponseKey = capitan.NewStringKey("sigil.response")

	// Error information.
	ErrorKey    = capitan.NewStringKey("sigil.error")
	ErrorTagKey = capitan.NewStringKey("sigil.error.tag")

	// Provider information.
	ProviderKey = capitan.NewStringKey("sigil.provider")
	ModelKey    = capitan.NewStringKey("sigil.model")

	// Provider metrics.
	PromptTokensKey     = capitan.NewIntKey("sigil.tokens.prompt")
	CompletionTokensKey = capitan.NewIntKey("sigil.tokens.completion")
	TotalTokensKey      = capitan.NewIntKey("sigil.tokens.total")
	DurationMsKey       = capitan.NewIntKey("sigil.duration.ms")

	// HTTP/API metadata, emitted by providers.
	HTTPStatusCodeKey = capitan.NewIntKey("sigil.http.status.code")
	APIErrorTypeKey   = capitan.NewStringKey("sigil.api.error.type")
)
