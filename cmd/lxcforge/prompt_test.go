package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxcforge/lxcforge/internal/hostname"
)

func withPromptIO(t *testing.T, input string, interactiveMode bool) *bytes.Buffer {
	t.Helper()
	oldReader, oldWriter, oldInteractive := promptReader, promptWriter, interactive
	out := &bytes.Buffer{}
	promptReader = strings.NewReader(input)
	promptWriter = out
	interactive = func() bool { return interactiveMode }
	t.Cleanup(func() {
		promptReader, promptWriter, interactive = oldReader, oldWriter, oldInteractive
	})
	return out
}

func TestAcquireHostnamePresetUsedWithoutPrompt(t *testing.T) {
	out := withPromptIO(t, "should-not-be-read\n", true)

	got, err := acquireHostname("My_Host!!", "fallback")
	require.NoError(t, err)
	assert.Equal(t, hostname.Validated("myhost"), got)
	assert.Empty(t, out.String(), "preset must not trigger a prompt")
}

func TestAcquireHostnameInvalidPresetFails(t *testing.T) {
	withPromptIO(t, "", false)

	_, err := acquireHostname("!!!", "fallback")
	require.ErrorIs(t, err, hostname.ErrInvalidHostname)
}

func TestAcquireHostnameNonInteractiveFallback(t *testing.T) {
	withPromptIO(t, "", false)

	got, err := acquireHostname("", "CT-201")
	require.NoError(t, err)
	assert.Equal(t, hostname.Validated("ct-201"), got)
}

func TestAcquireHostnamePromptAccepted(t *testing.T) {
	out := withPromptIO(t, "webhost\n", true)

	got, err := acquireHostname("", "fallback")
	require.NoError(t, err)
	assert.Equal(t, hostname.Validated("webhost"), got)
	assert.Contains(t, out.String(), "Hostname [fallback]: ")
}

func TestAcquireHostnameEmptyAnswerUsesFallback(t *testing.T) {
	withPromptIO(t, "\n", true)

	got, err := acquireHostname("", "fallback")
	require.NoError(t, err)
	assert.Equal(t, hostname.Validated("fallback"), got)
}

func TestAcquireHostnameRepromptsOnInvalid(t *testing.T) {
	out := withPromptIO(t, "!!!\nstill badé!!!!--\nfinally-good\n", true)

	got, err := acquireHostname("", "fallback")
	require.NoError(t, err)
	// "still badé!!!!--" normalizes to "stillbad", which is acceptable on the
	// second attempt.
	assert.Equal(t, hostname.Validated("stillbad"), got)
	assert.Contains(t, out.String(), "invalid hostname")
}

func TestAcquireHostnameFallsBackAfterMaxAttempts(t *testing.T) {
	out := withPromptIO(t, "!!!\n???\n---\n", true)

	got, err := acquireHostname("", "fallback")
	require.NoError(t, err)
	assert.Equal(t, hostname.Validated("fallback"), got)
	assert.Contains(t, out.String(), "using default")
}

func TestAcquireHostnameNormalizationEchoed(t *testing.T) {
	out := withPromptIO(t, "My Web Host\n", true)

	got, err := acquireHostname("", "fallback")
	require.NoError(t, err)
	assert.Equal(t, hostname.Validated("mywebhost"), got)
	assert.Contains(t, out.String(), `using "mywebhost"`)
}
