package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSink runs a shell command per event, e.g.
// "notify-send 'Dealyard' '{{.Subject}}'".
type CommandSink struct {
	Command string
}

// Name implements Sink.
func (CommandSink) Name() string { return "command" }

// Deliver implements Sink.
func (s CommandSink) Deliver(ctx context.Context, ev Event) error {
	if s.Command == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", templateEvent(s.Command, ev))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// templateEvent replaces placeholders in the command template with event values.
func templateEvent(command string, ev Event) string {
	r := strings.NewReplacer(
		"{{.Kind}}", string(ev.Kind),
		"{{.Subject}}", ev.Subject,
		"{{.Body}}", ev.Body,
		"{{.Recipient}}", ev.Recipient,
		"{{.EntityID}}", ev.EntityID,
	)
	return r.Replace(command)
}
