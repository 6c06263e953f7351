package connectivity

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// NetworkDetector reports the name of the network the device is on.
// An empty name means no network.
type NetworkDetector interface {
	CurrentNetwork(ctx context.Context) (string, error)
}

// CommandDetector runs an external command, e.g. "iwgetid -r", and takes
// its trimmed stdout as the network name.
type CommandDetector struct {
	Command []string
}

func NewCommandDetector(command string) *CommandDetector {
	return &CommandDetector{Command: strings.Fields(command)}
}

func (d *CommandDetector) CurrentNetwork(ctx context.Context) (string, error) {
	if len(d.Command) == 0 {
		return "", errors.New("network detection command is empty")
	}
	out, err := exec.CommandContext(ctx, d.Command[0], d.Command[1:]...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Tools like iwgetid exit non-zero when not associated.
			return "", nil
		}
		return "", fmt.Errorf("run %s: %w", d.Command[0], err)
	}
	return normalize(string(out)), nil
}

// StaticDetector always reports Name.
type StaticDetector struct {
	Name string
}

func (d StaticDetector) CurrentNetwork(context.Context) (string, error) {
	return d.Name, nil
}

func normalize(name string) string {
	name = strings.TrimSpace(name)
	if len(name) >= 2 && strings.HasPrefix(name, `"`) && strings.HasSuffix(name, `"`) {
		name = name[1 : len(name)-1]
	}
	return name
}

// IsTrusted reports whether name is on the trusted list. Surrounding quotes
// and spaces are ignored; an empty name is never trusted.
func IsTrusted(name string, trusted []string) bool {
	name = normalize(name)
	if name == "" {
		return false
	}
	for _, t := range trusted {
		if normalize(t) == name {
			return true
		}
	}
	return false
}
