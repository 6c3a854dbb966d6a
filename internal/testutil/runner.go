package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// CommandResult is one scripted outcome of a command.
type CommandResult struct {
	Output string
	Err    error
}

type script struct {
	match   string
	results []CommandResult
}

// ScriptedRunner answers command lines from scripted results. Each script is
// matched by substring; its results are consumed in order and the last one
// repeats.
type ScriptedRunner struct {
	mu       sync.Mutex
	scripts  []*script
	commands []string
}

// NewScriptedRunner creates an empty runner.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{}
}

// On registers results for command lines containing match.
func (r *ScriptedRunner) On(match string, results ...CommandResult) *ScriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts = append(r.scripts, &script{match: match, results: results})
	return r
}

// Run answers cmd from the first matching script.
func (r *ScriptedRunner) Run(_ context.Context, cmd string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands = append(r.commands, cmd)

	for _, s := range r.scripts {
		if !strings.Contains(cmd, s.match) || len(s.results) == 0 {
			continue
		}
		res := s.results[0]
		if len(s.results) > 1 {
			s.results = s.results[1:]
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return []byte(res.Output), nil
	}

	return nil, fmt.Errorf("no script for command %q", cmd)
}

// Commands returns the command lines received so far.
func (r *ScriptedRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}
