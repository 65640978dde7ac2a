package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	inner := errors.New("connection refused")
	err := Wrap("Navigate", CodeActionFailed, inner, nil)

	assert.Equal(t, "Navigate: connection refused", err.Error())
	assert.True(t, errors.Is(err, inner))
}

func TestErrorWithoutCause(t *testing.T) {
	err := &Error{Op: "Launch", Code: CodeSessionInit}

	assert.Equal(t, "Launch", err.Error())
	assert.Nil(t, err.Unwrap())
}

func TestWrapKeepsMetadata(t *testing.T) {
	err := Wrap("ResolveAndClick", CodeActionFailed, errors.New("boom"), map[string]any{
		MetaSelector: "#save",
		MetaStage:    StageInteraction,
	})

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "#save", e.Metadata[MetaSelector])
	assert.Equal(t, StageInteraction, e.Metadata[MetaStage])
}

func TestWrapNilMetadata(t *testing.T) {
	var e *Error
	require.True(t, errors.As(Wrap("Op", CodeInternal, nil, nil), &e))
	assert.NotNil(t, e.Metadata)
}

func TestCodeOfReturnsOutermostCode(t *testing.T) {
	inner := Wrap("Fill", CodeElementNotFound, errors.New("no matches"), nil)
	outer := Wrap("act", CodeActionFailed, inner, nil)

	assert.Equal(t, CodeActionFailed, CodeOf(outer))
	assert.Equal(t, CodeElementNotFound, CodeOf(inner))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestIsCodeWalksChain(t *testing.T) {
	inner := Wrap("Fill", CodeElementNotFound, errors.New("no matches"), nil)
	outer := Wrap("act", CodeActionFailed, inner, nil)

	assert.True(t, IsCode(outer, CodeActionFailed))
	assert.True(t, IsCode(outer, CodeElementNotFound))
	assert.False(t, IsCode(outer, CodeRateLimited))
	assert.False(t, IsCode(errors.New("plain"), CodeInternal))
	assert.False(t, IsCode(nil, CodeInternal))
}

func TestElementNotFound(t *testing.T) {
	err := ElementNotFound("ResolveAndClick", "#gone", errors.New("zero matches"))

	assert.True(t, IsCode(err, CodeElementNotFound))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "#gone", e.Metadata[MetaSelector])
}

func TestUnsupportedAction(t *testing.T) {
	err := UnsupportedAction("resolveAction", "delete")

	assert.True(t, IsCode(err, CodeUnsupported))
	assert.Contains(t, err.Error(), `"delete"`)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "delete", e.Metadata[MetaAction])
}

func TestDecisionParse(t *testing.T) {
	err := DecisionParse("decodeDecisionJSON", errors.New("unexpected end of JSON input"), "invalid_json")

	assert.True(t, IsCode(err, CodeDecisionParse))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "invalid_json", e.Metadata[MetaReason])
	assert.Equal(t, StageEngine, e.Metadata[MetaStage])
}

func TestInvalidReqError(t *testing.T) {
	err := InvalidReqError("Run", "task", errors.New("task cannot be empty"))

	assert.True(t, IsCode(err, CodeInvalidArgument))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "task", e.Metadata[MetaField])
}
