package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/project-dy/Essentials/lib/logger"
	"golang.org/x/term"
)

var Logger = logger.GetLogger("credential")

var (
	// ErrNotFound is returned when a provider has no password to offer
	ErrNotFound = errors.New("password not provided")

	// ErrNoTerminal is returned by Terminal when stdin is not a terminal
	ErrNoTerminal = errors.New("no terminal to read the password from")
)

// DefaultEnvNames are checked by NewEnv when no names are given. The lower
// case name is kept for existing deployments.
var DefaultEnvNames = []string{"ESSENTIALS_SUDO_PASSWORD", "sudopassword"}

// Provider returns a password
type Provider interface {
	Password(ctx context.Context) (string, error)
}

// --------------------------------------------------------------------------
// Environment
// --------------------------------------------------------------------------

// Env reads the password from the first non-empty environment variable.
type Env struct {
	Names []string
}

func NewEnv(names ...string) *Env {
	if len(names) == 0 {
		names = DefaultEnvNames
	}
	return &Env{Names: names}
}

func (e *Env) Password(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, name := range e.Names {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			Logger.Debugf("using password from $%s", name)
			return value, nil
		}
	}
	return "", fmt.Errorf("none of $%s set: %w", strings.Join(e.Names, ", $"), ErrNotFound)
}

// --------------------------------------------------------------------------
// Terminal
// --------------------------------------------------------------------------

// Terminal prompts for the password without echoing it.
type Terminal struct {
	Prompt string
	In     *os.File
	Out    io.Writer
}

func NewTerminal(prompt string) *Terminal {
	return &Terminal{Prompt: prompt, In: os.Stdin, Out: os.Stderr}
}

func (t *Terminal) Password(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fd := int(t.In.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}

	_, _ = fmt.Fprint(t.Out, t.Prompt)
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(t.Out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return "", ErrNotFound
	}
	return string(password), nil
}

// --------------------------------------------------------------------------
// Chain
// --------------------------------------------------------------------------

// Chain asks its providers in order. Providers without a password are
// skipped, any other error ends the search.
type Chain []Provider

func (c Chain) Password(ctx context.Context) (string, error) {
	var missing error
	for _, p := range c {
		password, err := p.Password(ctx)
		switch {
		case err == nil:
			return password, nil
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoTerminal):
			missing = errors.Join(missing, err)
		default:
			return "", err
		}
	}
	if missing == nil {
		return "", ErrNotFound
	}
	return "", fmt.Errorf("%w: %w", ErrNotFound, missing)
}
