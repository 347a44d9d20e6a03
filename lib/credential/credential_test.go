package credential

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProvider struct {
	password string
	err      error
}

func (s staticProvider) Password(context.Context) (string, error) {
	return s.password, s.err
}

func TestEnvUsesFirstSetName(t *testing.T) {
	t.Setenv("ESSENTIALS_TEST_PRIMARY", "")
	t.Setenv("ESSENTIALS_TEST_LEGACY", "hunter2")

	password, err := NewEnv("ESSENTIALS_TEST_PRIMARY", "ESSENTIALS_TEST_LEGACY").Password(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)
}

func TestEnvMissing(t *testing.T) {
	_, err := NewEnv("ESSENTIALS_TEST_UNSET_VARIABLE").Password(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "ESSENTIALS_TEST_UNSET_VARIABLE")
}

func TestEnvDefaults(t *testing.T) {
	assert.Equal(t, DefaultEnvNames, NewEnv().Names)
}

func TestTerminalRefusesPipes(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	_, err = (&Terminal{Prompt: "password: ", In: r, Out: w}).Password(context.Background())
	assert.ErrorIs(t, err, ErrNoTerminal)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEnv().Password(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = NewTerminal("password: ").Password(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	password, err := Chain{
		staticProvider{err: ErrNotFound},
		staticProvider{err: ErrNoTerminal},
		staticProvider{password: "secret"},
		staticProvider{password: "never-asked"},
	}.Password(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", password)

	_, err = Chain{staticProvider{err: ErrNotFound}, staticProvider{err: ErrNoTerminal}}.Password(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrNoTerminal)

	_, err = Chain{}.Password(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	broken := errors.New("keyring locked")
	_, err = Chain{staticProvider{err: broken}, staticProvider{password: "secret"}}.Password(ctx)
	assert.ErrorIs(t, err, broken)
}
