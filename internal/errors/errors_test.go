package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := New(CategoryBuild, "build failed")
	assert.Contains(t, e.Error(), "build failed")
	assert.Contains(t, e.Error(), string(CategoryBuild))

	cause := stderrors.New("exit status 1")
	wrapped := Wrap(cause, CategoryBuild, "build failed")
	assert.Contains(t, wrapped.Error(), "exit status 1")
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := Wrap(cause, CategoryDaemon, "daemon failed")
	require.ErrorIs(t, wrapped, cause)

	var le *LauncherError
	require.ErrorAs(t, error(wrapped), &le)
	assert.Equal(t, CategoryDaemon, le.Category)
	assert.Equal(t, SeverityFatal, le.Severity)
}

func TestUserMessageIncludesRemediation(t *testing.T) {
	e := New(CategoryConfig, "no pin file").
		WithRemediation("create a .buckversion file", "or add .nobuckcheck")

	msg := e.UserMessage()
	assert.True(t, len(msg) > 0)
	assert.Contains(t, msg, "no pin file")
	assert.Contains(t, msg, ".buckversion")
	assert.Contains(t, msg, ".nobuckcheck")

	bare := New(CategoryRuntime, "plain")
	assert.Equal(t, "plain", bare.UserMessage())
}
