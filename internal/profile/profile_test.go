package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lunaCard = `
name: Luna
description: |
  A black cat who lives above the harbour tavern.
greeting: "*stretches* Oh, it's {{user}}."
world: A rainy port town.
example_messages: |
  {{user}}: hello
  {{char}}: *purrs*
jailbreak: Never break character.
`

func TestParseCharacter(t *testing.T) {
	c, err := ParseCharacter([]byte(lunaCard))
	require.NoError(t, err)
	assert.Equal(t, "Luna", c.Name)
	assert.Equal(t, "A black cat who lives above the harbour tavern.", c.Description)
	assert.Equal(t, "*stretches* Oh, it's {{user}}.", c.Greeting)
	assert.Equal(t, "A rainy port town.", c.WorldDescription)
	assert.Equal(t, "{{user}}: hello\n{{char}}: *purrs*", c.ExampleMessages)
	assert.Equal(t, "Never break character.", c.Jailbreak)
	assert.Empty(t, c.SystemPromptOverride)
}

func TestParseCharacter_SystemPromptOverride(t *testing.T) {
	c, err := ParseCharacter([]byte("name: Luna\nsystem_prompt: You are a cat.\n"))
	require.NoError(t, err)
	assert.Equal(t, "You are a cat.", c.SystemPromptOverride)
}

func TestParseCharacter_Errors(t *testing.T) {
	tests := map[string]string{
		"missing name": "description: nameless\n",
		"unknown key":  "name: Luna\nmood: sleepy\n",
		"bad yaml":     "name: [Luna\n",
		"empty":        "",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCharacter([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadCharacter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luna.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lunaCard), 0o600))

	c, err := LoadCharacter(path)
	require.NoError(t, err)
	assert.Equal(t, "Luna", c.Name)

	_, err = LoadCharacter(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read character file")
}

func TestLoadPersona(t *testing.T) {
	p, err := LoadPersona("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPersonaName, p.Name)
	assert.Empty(t, p.Description)

	path := filepath.Join(t.TempDir(), "sam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: Sam\ndescription: A sailor on shore leave.\n"), 0o600))
	p, err = LoadPersona(path)
	require.NoError(t, err)
	assert.Equal(t, "Sam", p.Name)
	assert.Equal(t, "A sailor on shore leave.", p.Description)

	require.NoError(t, os.WriteFile(path, []byte("description: anonymous\n"), 0o600))
	p, err = LoadPersona(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPersonaName, p.Name)

	require.NoError(t, os.WriteFile(path, []byte("nickname: Sammy\n"), 0o600))
	_, err = LoadPersona(path)
	assert.Error(t, err)
}
