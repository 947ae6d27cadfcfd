// ABOUTME: Tests for envelope parsing, content mapping, and retry classification
// ABOUTME: Pure functions only; no Gemini API calls are made

package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/2389/feynomenon-gateway/internal/session"
	"github.com/2389/feynomenon-gateway/internal/tutor"
)

func TestParseResult_TopicGathering(t *testing.T) {
	res := parseResult(tutor.DirectiveTopicGathering,
		`{"reply": "Entropy it is!", "topic": "entropy"}`)

	assert.Equal(t, "Entropy it is!", res.ReplyText)
	assert.Equal(t, tutor.SignalTopicIdentified, res.Signal.Kind)
	assert.Equal(t, "entropy", res.Signal.Topic)
}

func TestParseResult_TopicGatheringNullTopic(t *testing.T) {
	res := parseResult(tutor.DirectiveTopicGathering,
		`{"reply": "Can you narrow that down?", "topic": null}`)

	assert.Equal(t, "Can you narrow that down?", res.ReplyText)
	assert.Equal(t, tutor.SignalNone, res.Signal.Kind)
}

func TestParseResult_TutoringUnderstood(t *testing.T) {
	res := parseResult(tutor.DirectiveTutoring,
		`{"reply": "Nailed it!", "understood": true}`)

	assert.Equal(t, "Nailed it!", res.ReplyText)
	assert.Equal(t, tutor.SignalUnderstandingConfirmed, res.Signal.Kind)
}

func TestParseResult_TutoringNotUnderstood(t *testing.T) {
	res := parseResult(tutor.DirectiveTutoring,
		`{"reply": "What does disorder mean here?", "understood": false}`)

	assert.Equal(t, tutor.SignalNone, res.Signal.Kind)
}

func TestParseResult_TopicFieldIgnoredDuringTutoring(t *testing.T) {
	// A stray topic field in the tutoring phase must not produce a signal.
	res := parseResult(tutor.DirectiveTutoring,
		`{"reply": "Keep going.", "topic": "something else"}`)

	assert.Equal(t, tutor.SignalNone, res.Signal.Kind)
}

func TestParseResult_FencedJSON(t *testing.T) {
	res := parseResult(tutor.DirectiveTopicGathering,
		"```json\n{\"reply\": \"Got it.\", \"topic\": \"recursion\"}\n```")

	assert.Equal(t, "Got it.", res.ReplyText)
	assert.Equal(t, "recursion", res.Signal.Topic)
}

func TestParseResult_MalformedFallsBackToRawText(t *testing.T) {
	res := parseResult(tutor.DirectiveTopicGathering, "just plain prose, no JSON")

	assert.Equal(t, "just plain prose, no JSON", res.ReplyText)
	assert.Equal(t, tutor.SignalNone, res.Signal.Kind)
}

func TestParseResult_ValidJSONWithoutReply(t *testing.T) {
	res := parseResult(tutor.DirectiveTopicGathering, `{"topic": "entropy"}`)

	// Without a reply field the envelope is useless; fall back to raw text
	// and drop the signal with it.
	assert.Equal(t, `{"topic": "entropy"}`, res.ReplyText)
	assert.Equal(t, tutor.SignalNone, res.Signal.Kind)
}

func TestBuildContents(t *testing.T) {
	history := []session.Turn{
		{Role: session.RoleUser, Text: "hello"},
		{Role: session.RoleAssistant, Text: "hi"},
		{Role: session.RoleUser, Text: "teach me"},
	}

	contents := buildContents(history, 0)
	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, string(genai.RoleUser), contents[2].Role)
}

func TestBuildContents_EnforcesWindow(t *testing.T) {
	history := make([]session.Turn, 20)
	for i := range history {
		history[i] = session.Turn{Role: session.RoleUser, Text: "turn"}
	}

	contents := buildContents(history, 5)
	assert.Len(t, contents, 5)
}

func TestBuildContents_WindowOpensWithUserTurn(t *testing.T) {
	// Alternating history truncated at an assistant turn: the leading
	// assistant turn is dropped so the first content is user-role.
	history := make([]session.Turn, 21)
	for i := range history {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		history[i] = session.Turn{Role: role, Text: "turn"}
	}

	contents := buildContents(history, 4)
	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(genai.APIError{Code: 429}))
	assert.True(t, isRetryable(genai.APIError{Code: 503}))
	assert.False(t, isRetryable(genai.APIError{Code: 400}))
	assert.False(t, isRetryable(errors.New("something else")))
}

func TestSystemInstruction(t *testing.T) {
	gathering := systemInstruction(tutor.DirectiveTopicGathering, "")
	assert.Contains(t, gathering, "topic gathering")

	tutoring := systemInstruction(tutor.DirectiveTutoring, "entropy")
	assert.Contains(t, tutoring, "entropy")
	assert.Contains(t, tutoring, "Feynman")
}
