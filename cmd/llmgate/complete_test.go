package main

import (
	"strings"
	"testing"
)

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt([]string{"hello", "world"}, strings.NewReader("ignored"))
	if err != nil || got != "hello world" {
		t.Errorf("args: got %q, %v", got, err)
	}

	got, err = readPrompt(nil, strings.NewReader("  from stdin\n"))
	if err != nil || got != "from stdin" {
		t.Errorf("stdin: got %q, %v", got, err)
	}

	got, err = readPrompt([]string{"-"}, strings.NewReader("dash"))
	if err != nil || got != "dash" {
		t.Errorf("dash: got %q, %v", got, err)
	}

	if _, err := readPrompt(nil, strings.NewReader("   ")); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestSplitConfigFlag(t *testing.T) {
	tests := []struct {
		args     []string
		wantPath string
		wantRest []string
	}{
		{[]string{"--foreground"}, "", []string{"--foreground"}},
		{[]string{"--config", "/tmp/a.toml", "list"}, "/tmp/a.toml", []string{"list"}},
		{[]string{"set", "--config=/tmp/b.toml", "openai"}, "/tmp/b.toml", []string{"set", "openai"}},
		{[]string{"-config", "c.toml"}, "c.toml", nil},
	}
	for _, tt := range tests {
		path, rest := splitConfigFlag(tt.args)
		if path != tt.wantPath {
			t.Errorf("splitConfigFlag(%v) path = %q, want %q", tt.args, path, tt.wantPath)
		}
		if strings.Join(rest, ",") != strings.Join(tt.wantRest, ",") {
			t.Errorf("splitConfigFlag(%v) rest = %v, want %v", tt.args, rest, tt.wantRest)
		}
	}
}
