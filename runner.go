package sigil

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// callState flows through the transport pipeline for one provider call.
type callState struct {
	Request    *Request
	Completion *Completion

	RunID     string
	Signature string
	Adapter   string
	Attempt   int
}

// Result is a successful run: the validated output map plus metadata about
// how it was obtained.
type Result struct {
	Outputs  map[string]any
	Usage    TokenUsage // Summed over every attempt of this run
	Attempts int        // Provider calls made, 1 when no retry happened
	Raw      string     // The final completion's text
}

// Runner is the single execution boundary of the pipeline: it selects an
// adapter, formats the request, drives the transport, parses the
// completion, and — for signatures with typed outputs — retries with
// corrective feedback up to a bound.
//
// A Runner holds no per-run mutable state and is safe for concurrent use.
type Runner struct {
	provider Provider
	pipeline pipz.Chainable[*callState]
}

// New creates a runner bound to a provider. Options wrap the transport
// pipeline with reliability features.
func New(provider Provider, opts ...Option) *Runner {
	pipeline := newTerminal(provider)
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return &Runner{provider: provider, pipeline: pipeline}
}

// newTerminal builds the terminal processor that hands the request to the
// provider.
func newTerminal(provider Provider) pipz.Chainable[*callState] {
	return pipz.Apply("llm-call", func(ctx context.Context, st *callState) (*callState, error) {
		comp, err := provider.Call(ctx, st.Request)
		if err != nil {
			return st, err
		}
		st.Completion = comp
		return st, nil
	})
}

// GetPipeline returns the transport pipeline for composition.
// Implements TransportProvider.
func (r *Runner) GetPipeline() pipz.Chainable[*callState] {
	return r.pipeline
}

// RunOption adjusts a single run.
type RunOption func(*runConfig)

type runConfig struct {
	adapter     Adapter
	maxRetries  int
	hasRetries  bool
	temperature float32
}

// WithAdapter overrides the adapter for this run only. Per-call override
// takes precedence over the process-wide default.
func WithAdapter(a Adapter) RunOption {
	return func(c *runConfig) { c.adapter = a }
}

// WithMaxRetries overrides the corrective-retry bound for this run. The
// bound counts retries: 0 performs exactly one attempt.
func WithMaxRetries(n int) RunOption {
	return func(c *runConfig) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
		c.hasRetries = true
	}
}

// WithTemperature sets the sampling temperature for this run.
func WithTemperature(t float32) RunOption {
	return func(c *runConfig) { c.temperature = t }
}

// Run executes one signature invocation: format, call, parse, and — when
// the signature has typed outputs and parsing fails retryably — append
// corrective feedback and call again, up to the retry bound.
//
// The returned error is a tagged *Error identifying which contract was
// violated (transport, decode, missing outputs, value, validation, or
// configuration), never a panic for malformed model output.
func (r *Runner) Run(ctx context.Context, sig *Signature, inputs map[string]any, demos []Demo, opts ...RunOption) (*Result, error) {
	if sig == nil {
		return nil, &Error{Tag: TagInvalidSignature, Reason: "nil signature"}
	}

	// Snapshot process defaults once, so concurrent configuration changes
	// cannot affect this run's retries.
	snapAdapter, snapRetries := snapshotSettings()

	cfg := runConfig{temperature: TemperatureUnset}
	for _, opt := range opts {
		opt(&cfg)
	}
	adapter := cfg.adapter
	if adapter == nil {
		adapter = snapAdapter
	}
	maxRetries := snapRetries
	if cfg.hasRetries {
		maxRetries = cfg.maxRetries
	}
	temperature := cfg.temperature
	if temperature == TemperatureUnset || temperature == 0 {
		temperature = DefaultTemperature
	}

	runID := uuid.New().String()

	capitan.Info(ctx, RunStarted,
		RunIDKey.Field(runID),
		SignatureKey.Field(sig.Name()),
		AdapterKey.Field(adapter.Name()),
		ProviderKey.Field(r.provider.Name()),
		TemperatureKey.Field(float64(temperature)),
	)

	// Formatting: configuration errors abort here, before any model call.
	req, err := adapter.Format(sig, inputs, demos)
	if err != nil {
		r.emitFailed(ctx, runID, sig, adapter, err)
		return nil, err
	}
	req.Temperature = temperature

	retryEligible := sig.HasTypedOutputs()
	var usage TokenUsage

	for attempt := 0; ; attempt++ {
		st := &callState{
			Request:   req,
			RunID:     runID,
			Signature: sig.Name(),
			Adapter:   adapter.Name(),
			Attempt:   attempt + 1,
		}
		processed, callErr := r.pipeline.Process(ctx, st)
		if callErr != nil {
			terr := transportError(callErr)
			r.emitFailed(ctx, runID, sig, adapter, terr)
			return nil, terr
		}
		comp := processed.Completion
		usage.Prompt += comp.Usage.Prompt
		usage.Completion += comp.Usage.Completion
		usage.Total += comp.Usage.Total

		outputs, parseErr := adapter.Parse(sig, comp)
		if parseErr == nil {
			capitan.Info(ctx, RunCompleted,
				RunIDKey.Field(runID),
				SignatureKey.Field(sig.Name()),
				AdapterKey.Field(adapter.Name()),
				AttemptKey.Field(attempt+1),
				TotalTokensKey.Field(usage.Total),
			)
			return &Result{
				Outputs:  outputs,
				Usage:    usage,
				Attempts: attempt + 1,
				Raw:      comp.Text,
			}, nil
		}

		var tagged *Error
		if !errors.As(parseErr, &tagged) {
			tagged = &Error{Tag: TagOutputDecodeFailed, Err: parseErr}
		}
		capitan.Error(ctx, ParseFailed,
			RunIDKey.Field(runID),
			SignatureKey.Field(sig.Name()),
			AdapterKey.Field(adapter.Name()),
			AttemptKey.Field(attempt+1),
			ErrorTagKey.Field(string(tagged.Tag)),
			ErrorKey.Field(tagged.Error()),
			ResponseKey.Field(comp.Text),
		)

		if !retryEligible || !tagged.Retryable() || attempt >= maxRetries {
			r.emitFailed(ctx, runID, sig, adapter, tagged)
			return nil, tagged
		}

		capitan.Info(ctx, RunRetrying,
			RunIDKey.Field(runID),
			SignatureKey.Field(sig.Name()),
			AttemptKey.Field(attempt+2),
			ErrorTagKey.Field(string(tagged.Tag)),
		)
		req = correctiveRequest(req, sig, comp, tagged)
	}
}

func (r *Runner) emitFailed(ctx context.Context, runID string, sig *Signature, adapter Adapter, err error) {
	tag := ""
	var tagged *Error
	if errors.As(err, &tagged) {
		tag = string(tagged.Tag)
	}
	capitan.Error(ctx, RunFailed,
		RunIDKey.Field(runID),
		SignatureKey.Field(sig.Name()),
		AdapterKey.Field(adapter.Name()),
		ErrorTagKey.Field(tag),
		ErrorKey.Field(err.Error()),
	)
}

// correctiveRequest builds the next attempt's request: the original
// conversation, then the model's failed answer as an assistant turn, then a
// user turn restating the expected schemas and the exact violation. The
// original context is always preserved, never replaced.
func correctiveRequest(prev *Request, sig *Signature, comp *Completion, perr *Error) *Request {
	messages := make([]Message, 0, len(prev.Messages)+2)
	messages = append(messages, prev.Messages...)
	messages = append(messages, Message{Role: RoleAssistant, Content: comp.Text})

	var b strings.Builder
	b.WriteString("Your previous response could not be accepted.\n")
	fmt.Fprintf(&b, "Problem: %s\n", perr.Error())

	failed := failedFields(sig, perr)
	if len(failed) > 0 {
		b.WriteString("Expected:\n")
		for _, f := range failed {
			fmt.Fprintf(&b, "- %s\n", fieldDoc(f))
		}
	}
	b.WriteString("Respond again, following the originally requested format exactly.")
	messages = append(messages, Message{Role: RoleUser, Content: b.String()})

	return &Request{
		Messages:    messages,
		Tools:       prev.Tools,
		Temperature: prev.Temperature,
	}
}

// failedFields picks the output fields the corrective message should
// restate: the named field, the missing set, or on a whole-payload decode
// failure every text output.
func failedFields(sig *Signature, perr *Error) []Field {
	if perr.Field != "" {
		if f, ok := sig.Output(perr.Field); ok {
			return []Field{f}
		}
	}
	if len(perr.Missing) > 0 {
		fields := make([]Field, 0, len(perr.Missing))
		for _, name := range perr.Missing {
			if f, ok := sig.Output(name); ok {
				fields = append(fields, f)
			}
		}
		return fields
	}
	return textOutputs(sig)
}
