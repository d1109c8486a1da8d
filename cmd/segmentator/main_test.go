package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/Adithya-Monish-Kumar-K/coherence-index/pkg/errors"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestDefaultStrategy(t *testing.T) {
	stdout, _, err := execute(t, "2")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"{0} | {0}", "{0} | {1}", "{0} | {0,1}",
		"{1} | {0}", "{1} | {1}", "{1} | {0,1}",
		"{0,1} | {0}", "{0,1} | {1}", "{0,1} | {0,1}",
	}
	if diff := cmp.Diff(want, strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")); diff != "" {
		t.Errorf("pairs Diff: (-want +got)\n%s", diff)
	}
}

func TestOutputs(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--count", "4"}, "225\n"},
		{[]string{"--count", "4", "one-one"}, "12\n"},
		{[]string{"4", "whole-set"}, "{0,1,2,3} | {0,1,2,3}\n"},
		{[]string{"--words", "a,b", "2", "one-one"}, "{a} | {b}\n{b} | {a}\n"},
		{[]string{"3", "ONE_PRECEDING"}, "{1} | {0}\n{2} | {0}\n{2} | {1}\n"},
	}
	for _, tt := range tests {
		stdout, _, err := execute(t, tt.args...)
		if err != nil {
			t.Errorf("args %v: %v", tt.args, err)
			continue
		}
		if stdout != tt.want {
			t.Errorf("args %v: stdout = %q, want %q", tt.args, stdout, tt.want)
		}
	}
}

func TestList(t *testing.T) {
	stdout, _, err := execute(t, "--list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stdout, "all-all\nwhole-set\n") || !strings.Contains(stdout, "any-any\n") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestInvalidArguments(t *testing.T) {
	for _, args := range [][]string{
		nil,
		{"0"},
		{"x"},
		{"21"},
		{"3", "bogus"},
		{"--words", "a,b", "3"},
		{"--bogus", "3"},
	} {
		_, _, err := execute(t, args...)
		if apperrors.ExitCode(err) != apperrors.ExitInvalidInput {
			t.Errorf("args %v: exit code %d, err %v", args, apperrors.ExitCode(err), err)
		}
	}
	if _, stderr, _ := execute(t); !strings.Contains(stderr, "segmentator <n> [strategy]") {
		t.Errorf("usage not printed, stderr:\n%s", stderr)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfiguredEngineMatchesSequential(t *testing.T) {
	for _, strategy := range []string{"all-all", "any-any", "one-any"} {
		want, _, err := execute(t, "6", strategy)
		if err != nil {
			t.Fatal(err)
		}
		configs := map[string]string{
			"parallel": "segmentation:\n  workers: 4\n  parallelThreshold: 1\n",
			"streamed": "segmentation:\n  workers: 4\n  maxPairs: 10\n",
		}
		for name, body := range configs {
			got, _, err := execute(t, "--config", writeConfig(t, body), "6", strategy)
			if err != nil {
				t.Fatalf("%s %s: %v", name, strategy, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("%s %s Diff: (-want +got)\n%s", name, strategy, diff)
			}
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	path := writeConfig(t, "segmentation:\n  workers: 0\n")
	_, _, err := execute(t, "--config", path, "3")
	if apperrors.ExitCode(err) != apperrors.ExitInvalidInput {
		t.Errorf("exit code %d, err %v", apperrors.ExitCode(err), err)
	}
}
