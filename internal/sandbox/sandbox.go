// Package sandbox enforces the process-level command/cwd/env allowlist
// guardrail the spec requires for the pipe upstream transport. This is
// not an OS-level sandbox — it rejects configurations that would spawn
// disallowed commands, in disallowed directories, or with disallowed
// explicit environment keys, and assembles the filtered environment the
// child process actually receives.
package sandbox

import (
	"fmt"
	"runtime"
	"strings"
)

// defaultPOSIXInherit is the default inherited-env key set on POSIX
// systems per spec §6.
var defaultPOSIXInherit = []string{"HOME", "LOGNAME", "PATH", "SHELL", "TERM", "USER"}

// defaultWindowsInherit is the default inherited-env key set on Windows.
var defaultWindowsInherit = []string{"PATH", "PATHEXT", "SYSTEMROOT", "TEMP", "TMP", "USERPROFILE", "USERNAME", "COMSPEC"}

// Policy is the normalized sandbox.stdio config section.
type Policy struct {
	AllowedCommands []string
	AllowedCwdRoots []string
	AllowedEnvKeys  []string
	InheritEnvKeys  []string // overrides the OS default set when non-empty
}

// CheckCommand reports an error unless cmd is present in the allowlist.
// An empty allowlist denies everything — every command must be listed
// explicitly; the guardrail does not fail open.
func (p Policy) CheckCommand(cmd string) error {
	for _, c := range p.AllowedCommands {
		if c == cmd {
			return nil
		}
	}
	return fmt.Errorf("sandbox: command %q is not in allowedCommands", cmd)
}

// CheckCwd reports an error unless cwd is empty (no cwd override requested)
// or under one of the allowed roots.
func (p Policy) CheckCwd(cwd string) error {
	if cwd == "" {
		return nil
	}
	for _, root := range p.AllowedCwdRoots {
		if cwd == root || strings.HasPrefix(cwd, strings.TrimRight(root, "/")+"/") {
			return nil
		}
	}
	return fmt.Errorf("sandbox: cwd %q is not under any allowedCwdRoots", cwd)
}

// CheckEnv reports an error if any key in env is not in the allowlist.
func (p Policy) CheckEnv(env map[string]string) error {
	for k := range env {
		if !p.envKeyAllowed(k) {
			return fmt.Errorf("sandbox: env key %q is not in allowedEnvKeys", k)
		}
	}
	return nil
}

func (p Policy) envKeyAllowed(key string) bool {
	for _, k := range p.AllowedEnvKeys {
		if k == key {
			return true
		}
	}
	return false
}

// BuildChildEnv assembles the final environment the child process
// receives: the inherited keys (defaulted per OS, filtered through the
// "()"-prefix function-definition defense), overlaid by the explicit env
// map which always wins on key conflicts.
func BuildChildEnv(p Policy, hostEnv map[string]string, explicit map[string]string) []string {
	inheritKeys := p.InheritEnvKeys
	if len(inheritKeys) == 0 {
		if runtime.GOOS == "windows" {
			inheritKeys = defaultWindowsInherit
		} else {
			inheritKeys = defaultPOSIXInherit
		}
	}

	merged := make(map[string]string, len(inheritKeys)+len(explicit))
	for _, k := range inheritKeys {
		v, ok := hostEnv[k]
		if !ok {
			continue
		}
		if strings.HasPrefix(v, "()") {
			// a value starting with "()" looks like a shell function
			// definition smuggled through an environment variable; drop it.
			continue
		}
		merged[k] = v
	}
	for k, v := range explicit {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}
