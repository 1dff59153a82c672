package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCommand(t *testing.T) {
	p := Policy{AllowedCommands: []string{"npx", "uvx"}}
	require.NoError(t, p.CheckCommand("npx"))
	assert.Error(t, p.CheckCommand("bash"))
}

func TestCheckCwd(t *testing.T) {
	p := Policy{AllowedCwdRoots: []string{"/srv/tools"}}
	assert.NoError(t, p.CheckCwd(""))
	assert.NoError(t, p.CheckCwd("/srv/tools"))
	assert.NoError(t, p.CheckCwd("/srv/tools/sub"))
	assert.Error(t, p.CheckCwd("/etc"))
}

func TestCheckEnv(t *testing.T) {
	p := Policy{AllowedEnvKeys: []string{"API_KEY"}}
	assert.NoError(t, p.CheckEnv(map[string]string{"API_KEY": "x"}))
	assert.Error(t, p.CheckEnv(map[string]string{"SECRET": "x"}))
}

func TestBuildChildEnvExplicitWinsAndFunctionDefenseApplied(t *testing.T) {
	p := Policy{InheritEnvKeys: []string{"PATH", "EVIL"}}
	host := map[string]string{
		"PATH": "/usr/bin",
		"EVIL": "() { :; }; echo pwned",
	}
	explicit := map[string]string{"PATH": "/opt/tools/bin"}

	env := BuildChildEnv(p, host, explicit)

	asMap := map[string]string{}
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				asMap[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	assert.Equal(t, "/opt/tools/bin", asMap["PATH"])
	_, hasEvil := asMap["EVIL"]
	assert.False(t, hasEvil)
}
