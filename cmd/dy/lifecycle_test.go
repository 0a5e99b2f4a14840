package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/zulandar/dealyard/internal/config"
	"github.com/zulandar/dealyard/internal/contract"
	"github.com/zulandar/dealyard/internal/db"
	"github.com/zulandar/dealyard/internal/models"
)

// writeConfig writes a sqlite-backed config into a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yaml := fmt.Sprintf(`database:
  driver: sqlite
  path: %s
auth:
  jwt_secret: cli-secret
log:
  level: error
`, filepath.Join(dir, "deals.db"))
	path := filepath.Join(dir, "dealyard.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// run executes dy with the given config and arguments.
func run(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := run(t, cfgPath, "", args...)
	if err != nil {
		t.Fatalf("dy %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func extractID(t *testing.T, prefix, out string) string {
	t.Helper()
	m := regexp.MustCompile(prefix + `-[0-9a-f]{12}`).FindString(out)
	if m == "" {
		t.Fatalf("no %s ID in output: %s", prefix, out)
	}
	return m
}

func TestDBInitAndReset(t *testing.T) {
	cfgPath := writeConfig(t)

	out := mustRun(t, cfgPath, "db", "init")
	if !strings.Contains(out, "Migrated 8 tables") {
		t.Errorf("init output = %s", out)
	}
	out = mustRun(t, cfgPath, "db", "migrate")
	if !strings.Contains(out, "Migrated 8 tables") {
		t.Errorf("migrate output = %s", out)
	}

	out, err := run(t, cfgPath, "no\n", "db", "reset")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("declined reset output = %s", out)
	}

	out, err = run(t, cfgPath, "yes\n", "db", "reset")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Reset 8 tables") {
		t.Errorf("confirmed reset output = %s", out)
	}
	if out := mustRun(t, cfgPath, "db", "reset", "--yes"); !strings.Contains(out, "Reset 8 tables") {
		t.Errorf("--yes reset output = %s", out)
	}
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "nope.yaml"), "", "proposal", "list", "--as", "alice")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v, want load config error", err)
	}
}

func TestToken(t *testing.T) {
	cfgPath := writeConfig(t)
	out := mustRun(t, cfgPath, "token", "--as", "alice")
	if !strings.Contains(out, "Expires:") || strings.Count(out, ".") < 2 {
		t.Errorf("token output = %s", out)
	}
	if _, err := run(t, cfgPath, "", "token"); err == nil {
		t.Error("token without --as should fail")
	}
}

// TestLifecycle drives a negotiation to a completed contract through the CLI.
func TestLifecycle(t *testing.T) {
	cfgPath := writeConfig(t)
	mustRun(t, cfgPath, "db", "init")

	out := mustRun(t, cfgPath, "proposal", "create", "--as", "alice", "--subject", "tech-1", "--counterpart", "bob", "--currency", "usd", "--title", "Sensor license")
	proposalID := extractID(t, "prp", out)

	out = mustRun(t, cfgPath, "message", "post", proposalID, "--as", "bob", "--body", "Our first price", "--amount", "10000")
	o1 := extractID(t, "off", out)
	if !strings.Contains(out, "100.00 USD") {
		t.Errorf("post output = %s", out)
	}
	out = mustRun(t, cfgPath, "message", "post", proposalID, "--as", "bob", "--body", "Revised", "--amount", "12000")
	o2 := extractID(t, "off", out)

	out = mustRun(t, cfgPath, "message", "list", proposalID)
	if !strings.Contains(out, o1) || !strings.Contains(out, o2) {
		t.Errorf("thread output = %s", out)
	}

	if _, err := run(t, cfgPath, "", "offer", "accept", o2, "--as", "bob"); err == nil {
		t.Error("author accepting their own offer should fail")
	}

	out = mustRun(t, cfgPath, "offer", "accept", o2, "--as", "alice")
	if !strings.Contains(out, "is accepted") {
		t.Errorf("accept output = %s", out)
	}
	contractID := extractID(t, "ctr", out)

	out = mustRun(t, cfgPath, "offer", "list", proposalID)
	if !strings.Contains(out, "rejected") || !strings.Contains(out, "accepted") {
		t.Errorf("offer list = %s", out)
	}
	if _, err := run(t, cfgPath, "", "offer", "accept", o1, "--as", "alice"); err == nil {
		t.Error("second accept should fail")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	gdb, err := db.Connect(cfg.Database)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c, err := contract.Get(context.Background(), gdb, contractID)
	if err != nil {
		t.Fatalf("contract.Get: %v", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}

	out = mustRun(t, cfgPath, "step", "files", c.Steps[0].ID, "contracts/signed.pdf", "--as", "alice")
	if !strings.Contains(out, "1 file(s)") {
		t.Errorf("files output = %s", out)
	}
	for _, st := range c.Steps {
		for _, user := range []string{"alice", "bob"} {
			mustRun(t, cfgPath, "step", "approve", st.ID, "--as", user, "--note", "ok")
		}
	}

	out = mustRun(t, cfgPath, "contract", "show", contractID)
	if !strings.Contains(out, "in_progress") || !strings.Contains(out, "contracts/signed.pdf") {
		t.Errorf("contract show = %s", out)
	}

	out = mustRun(t, cfgPath, "log", "append", "--as", "bob", "--contract", contractID, "--content", "All delivered", "--done")
	if !strings.Contains(out, "Contract "+contractID+" is completed") || !strings.Contains(out, "Proposal "+proposalID+" is completed") {
		t.Errorf("log append output = %s", out)
	}

	out = mustRun(t, cfgPath, "proposal", "show", proposalID)
	if !strings.Contains(out, string(models.ProposalCompleted)) {
		t.Errorf("proposal show = %s", out)
	}
	out = mustRun(t, cfgPath, "log", "list", "--contract", contractID)
	if !strings.Contains(out, "All delivered") {
		t.Errorf("log list = %s", out)
	}
	out = mustRun(t, cfgPath, "contract", "list", "--as", "alice", "--status", "completed")
	if !strings.Contains(out, contractID) {
		t.Errorf("contract list = %s", out)
	}

	out = mustRun(t, cfgPath, "inbox", "--as", "bob", "--mark-seen")
	if !strings.Contains(out, "offer.accepted") || !strings.Contains(out, "contract.completed") {
		t.Errorf("inbox = %s", out)
	}
	if out := mustRun(t, cfgPath, "inbox", "--as", "bob"); !strings.Contains(out, "Inbox is empty.") {
		t.Errorf("inbox after mark-seen = %s", out)
	}

	out = mustRun(t, cfgPath, "remind", "--as", "alice")
	if !strings.Contains(out, "Sent 0 reminder(s)") {
		t.Errorf("remind = %s", out)
	}
}

func TestProposalTransition_Refused(t *testing.T) {
	cfgPath := writeConfig(t)
	mustRun(t, cfgPath, "db", "init")

	out := mustRun(t, cfgPath, "proposal", "create", "--as", "alice", "--subject", "proj-9", "--kind", "project", "--counterpart", "bob")
	id := extractID(t, "prp", out)

	out, err := run(t, cfgPath, "", "proposal", "transition", id, "completed", "--as", "alice")
	if err == nil {
		t.Fatal("expected invalid transition")
	}
	if !strings.Contains(out, "remains pending") {
		t.Errorf("output = %s", out)
	}

	out = mustRun(t, cfgPath, "proposal", "transition", id, "cancelled", "--as", "bob")
	if !strings.Contains(out, "is now cancelled") {
		t.Errorf("output = %s", out)
	}
	out = mustRun(t, cfgPath, "proposal", "list", "--as", "bob", "--status", "cancelled")
	if !strings.Contains(out, id) {
		t.Errorf("list = %s", out)
	}
}
