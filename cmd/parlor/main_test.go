package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "parlor dev") {
		t.Errorf("expected output to contain 'parlor dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "parlor 1.0.0 (commit: abc123, built: 2026-01-01)") {
		t.Errorf("unexpected version output: %s", got)
	}
}

func TestRootCmdHelp_ListsSubcommands(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("root --help failed: %v", err)
	}
	for _, sub := range []string{"serve", "migrate", "slots", "notify-test", "version"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("root help should list %q", sub)
		}
	}
}

func TestSubcommandFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
	}{
		{"serve", []string{"config"}},
		{"migrate", []string{"config", "tenant"}},
		{"slots", []string{"config", "tenant", "date", "service"}},
		{"notify-test", []string{"platform", "token", "contact", "timeout"}},
	}
	root := newRootCmd()
	for _, tt := range tests {
		cmd, _, err := root.Find([]string{tt.name})
		if err != nil || cmd.Name() != tt.name {
			t.Fatalf("subcommand %s not found: %v", tt.name, err)
		}
		for _, f := range tt.flags {
			if cmd.Flags().Lookup(f) == nil {
				t.Errorf("%s: expected --%s flag", tt.name, f)
			}
		}
	}
}

func TestMissingConfigFails(t *testing.T) {
	for _, sub := range []string{"serve", "migrate"} {
		cmd := newRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs([]string{sub, "-c", "/nonexistent/parlor.yaml"})
		if err := cmd.Execute(); err == nil {
			t.Errorf("%s with missing config should fail", sub)
		}
	}
}

func TestExecute_ExitCode(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"no-such-command"})
	if code := execute(cmd); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
