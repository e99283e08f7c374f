package auth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Source acquires a fresh access token
type Source interface {
	FetchToken(ctx context.Context) (string, error)
}

var tokenPattern = regexp.MustCompile(`TOKEN=([A-Za-z0-9\-_.]+)`)

// CommandSource runs an external command that prints TOKEN=<value>
type CommandSource struct {
	Command string
}

// FetchToken runs the command and extracts the token from its output
func (s CommandSource) FetchToken(ctx context.Context) (string, error) {
	fields := strings.Fields(s.Command)
	if len(fields) == 0 {
		return "", fmt.Errorf("no token command configured")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to run token command: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return ParseTokenOutput(stdout.String())
}

// ParseTokenOutput finds the TOKEN= line in command output
func ParseTokenOutput(output string) (string, error) {
	match := tokenPattern.FindStringSubmatch(output)
	if match == nil {
		return "", fmt.Errorf("access token not found in token command output")
	}
	return match[1], nil
}

// StaticSource always returns the same token
type StaticSource string

// FetchToken returns the static token
func (s StaticSource) FetchToken(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no access token configured")
	}
	return string(s), nil
}
