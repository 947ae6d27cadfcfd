// ABOUTME: ModelGateway contract consumed by the dialogue controller
// ABOUTME: Structured request and response with a tagged phase-transition signal

package tutor

import (
	"context"

	"github.com/2389/feynomenon-gateway/internal/session"
)

// Directive tells the gateway which phase's behavior to produce.
type Directive int

const (
	// DirectiveTopicGathering instructs the model to identify whether a
	// concrete learning topic has been stated, alongside a conversational reply.
	DirectiveTopicGathering Directive = iota
	// DirectiveTutoring instructs the model to evaluate the learner's
	// explanation Feynman-style and flag when understanding is confirmed.
	DirectiveTutoring
)

func (d Directive) String() string {
	switch d {
	case DirectiveTopicGathering:
		return "topic_gathering"
	case DirectiveTutoring:
		return "tutoring"
	default:
		return "unknown"
	}
}

// SignalKind tags the gateway's optional phase-transition signal.
type SignalKind int

const (
	// SignalNone means the model produced a reply with no transition.
	SignalNone SignalKind = iota
	// SignalTopicIdentified carries the topic the model extracted.
	SignalTopicIdentified
	// SignalUnderstandingConfirmed means the tutoring loop is complete.
	SignalUnderstandingConfirmed
)

// Signal is the tagged variant attached to a generation result. It is
// validated at the controller boundary; a signal that does not apply to the
// session's current phase is ignored.
type Signal struct {
	Kind  SignalKind
	Topic string
}

// GenerateRequest is the structured prompt handed to the gateway.
// History is already bounded to MaxContextTurns by the controller; the value
// is passed along so gateway implementations can enforce it too.
type GenerateRequest struct {
	History         []session.Turn
	Directive       Directive
	Topic           string
	MaxContextTurns int
}

// GenerateResult is the gateway's interpreted output for one turn.
type GenerateResult struct {
	ReplyText string
	Signal    Signal
}

// Gateway is the opaque model capability the controller depends on.
// Implementations fail with *GenerationError carrying a retryable flag.
type Gateway interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}
