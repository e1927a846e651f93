// Package profile loads character cards and user personas from YAML files.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	ctxpkg "github.com/stupiduntilnot/rpchat/internal/context"
)

// DefaultPersonaName is used when a chat has no persona file.
const DefaultPersonaName = "User"

// characterFile is the on-disk layout of a character card.
type characterFile struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Greeting        string `yaml:"greeting"`
	SystemPrompt    string `yaml:"system_prompt"`
	World           string `yaml:"world"`
	ExampleMessages string `yaml:"example_messages"`
	Jailbreak       string `yaml:"jailbreak"`
}

type personaFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// LoadCharacter reads a character card from path.
func LoadCharacter(path string) (ctxpkg.CharacterProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ctxpkg.CharacterProfile{}, fmt.Errorf("failed to read character file: %w", err)
	}
	character, err := ParseCharacter(data)
	if err != nil {
		return ctxpkg.CharacterProfile{}, fmt.Errorf("%s: %w", path, err)
	}
	return character, nil
}

// ParseCharacter decodes a character card. Unknown keys and a missing
// name are errors.
func ParseCharacter(data []byte) (ctxpkg.CharacterProfile, error) {
	var f characterFile
	if err := decodeStrict(data, &f); err != nil {
		return ctxpkg.CharacterProfile{}, fmt.Errorf("failed to parse character file: %w", err)
	}
	if strings.TrimSpace(f.Name) == "" {
		return ctxpkg.CharacterProfile{}, errors.New("character name is required")
	}
	return ctxpkg.CharacterProfile{
		Name:                 strings.TrimSpace(f.Name),
		Description:          strings.TrimSpace(f.Description),
		Greeting:             strings.TrimSpace(f.Greeting),
		SystemPromptOverride: strings.TrimSpace(f.SystemPrompt),
		WorldDescription:     strings.TrimSpace(f.World),
		ExampleMessages:      strings.TrimSpace(f.ExampleMessages),
		Jailbreak:            strings.TrimSpace(f.Jailbreak),
	}, nil
}

// LoadPersona reads a persona from path. An empty path yields the
// default persona.
func LoadPersona(path string) (ctxpkg.PersonaProfile, error) {
	if path == "" {
		return ctxpkg.PersonaProfile{Name: DefaultPersonaName}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ctxpkg.PersonaProfile{}, fmt.Errorf("failed to read persona file: %w", err)
	}
	var f personaFile
	if err := decodeStrict(data, &f); err != nil {
		return ctxpkg.PersonaProfile{}, fmt.Errorf("%s: failed to parse persona file: %w", path, err)
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = DefaultPersonaName
	}
	return ctxpkg.PersonaProfile{Name: name, Description: strings.TrimSpace(f.Description)}, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
