package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestBuild_WiresRuntime(t *testing.T) {
	dir := t.TempDir()

	agentsPath := writeFile(t, dir, "agents.yaml", `
agents:
  - name: triage
    description: first responder
    system_prompt: "you triage incidents"
    tools: []
`)

	configPath := writeFile(t, dir, "config.yaml", `
server:
  host: 127.0.0.1
  http_port: 8099
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: test-key
      default_model: claude-sonnet-4-20250514
agents:
  definitions_file: `+agentsPath+`
persistence:
  data_dir: `+filepath.Join(dir, "data")+`
`)

	rt, err := Build(context.Background(), Options{ConfigPath: configPath}, nil)
	require.NoError(t, err)
	require.NotNil(t, rt)

	assert.Equal(t, "anthropic", rt.Config.LLM.DefaultProvider)
	assert.Contains(t, rt.Agents.Names(), "triage")
	assert.NotNil(t, rt.Engine)
	assert.NotNil(t, rt.Store)
}

func TestBuild_MissingConfigFile(t *testing.T) {
	_, err := Build(context.Background(), Options{ConfigPath: "/nonexistent/config.yaml"}, nil)
	require.Error(t, err)
	assert.Equal(t, ExitConfig, ExitCode(err))
}

func TestBuild_MissingCredentials(t *testing.T) {
	dir := t.TempDir()
	agentsPath := writeFile(t, dir, "agents.yaml", `
agents:
  - name: triage
    system_prompt: "you triage incidents"
`)
	configPath := writeFile(t, dir, "config.yaml", `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
agents:
  definitions_file: `+agentsPath+`
persistence:
  data_dir: `+filepath.Join(dir, "data")+`
`)

	_, err := Build(context.Background(), Options{ConfigPath: configPath}, nil)
	require.Error(t, err)
	assert.Equal(t, ExitCredentials, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitInternal, ExitCode(errorString("boom")))
	assert.Equal(t, ExitConfig, ExitCode(configErr(errorString("bad config"))))
}

type errorString string

func (e errorString) Error() string { return string(e) }
