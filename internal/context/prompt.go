package context

import (
	"fmt"
	"regexp"
	"strings"
)

// PromptVariant selects the system prompt skeleton.
type PromptVariant string

const (
	VariantXML      PromptVariant = "xml"
	VariantMarkdown PromptVariant = "markdown"
)

// CharacterProfile is the character card a chat is played with.
type CharacterProfile struct {
	Name                 string
	Description          string
	Greeting             string
	SystemPromptOverride string
	WorldDescription     string
	ExampleMessages      string
	Jailbreak            string
}

// PersonaProfile describes the user's side of the roleplay.
type PersonaProfile struct {
	Name        string
	Description string
}

type variantRule struct {
	pattern *regexp.Regexp
	variant PromptVariant
}

// variantRules is checked in order; the first match wins.
var variantRules = []variantRule{
	{pattern: regexp.MustCompile(`(?i)claude`), variant: VariantXML},
}

// SelectVariant picks the prompt skeleton for a model identifier.
func SelectVariant(modelID string) PromptVariant {
	for _, rule := range variantRules {
		if rule.pattern.MatchString(modelID) {
			return rule.variant
		}
	}
	return VariantMarkdown
}

const promptPreamble = "You are {{char}}. Write {{char}}'s next reply in a fictional roleplay chat with {{user}}. " +
	"Stay in character and never write {{user}}'s lines.\n"

var skeletons = map[PromptVariant]string{
	VariantMarkdown: promptPreamble + `{{#description}}

### Character Info
{{description}}
{{/description}}
{{#world}}

### World Info
{{world}}
{{/world}}
{{#persona}}

### User Info
{{persona}}
{{/persona}}
{{#memory}}

### Character Memory
{{memory}}
{{/memory}}
{{#examples}}

### Example Messages
{{examples}}
{{/examples}}
`,
	VariantXML: promptPreamble + `{{#description}}

<character_info>
{{description}}
</character_info>
{{/description}}
{{#world}}

<world_info>
{{world}}
</world_info>
{{/world}}
{{#persona}}

<user_info>
{{persona}}
</user_info>
{{/persona}}
{{#memory}}

<character_memory>
{{memory}}
</character_memory>
{{/memory}}
{{#examples}}

<example_messages>
{{examples}}
</example_messages>
{{/examples}}
`,
}

// RenderSystemPrompt builds the system prompt for a character and persona.
// A non-empty SystemPromptOverride is returned verbatim. Otherwise the
// variant's skeleton is rendered, leaving out sections whose field is
// empty, and {{user}} / {{char}} are expanded.
func RenderSystemPrompt(variant PromptVariant, character CharacterProfile, persona PersonaProfile, memory string) (string, error) {
	if character.SystemPromptOverride != "" {
		return character.SystemPromptOverride, nil
	}
	skeleton, ok := skeletons[variant]
	if !ok {
		return "", &RenderError{Variant: variant, Err: fmt.Errorf("no skeleton for variant")}
	}
	return renderSkeleton(variant, skeleton, character, persona, memory)
}

func renderSkeleton(variant PromptVariant, skeleton string, character CharacterProfile, persona PersonaProfile, memory string) (string, error) {
	rendered, err := RenderTemplate(skeleton, map[string]string{
		"description": character.Description,
		"world":       character.WorldDescription,
		"persona":     persona.Description,
		"memory":      memory,
		"examples":    character.ExampleMessages,
	})
	if err != nil {
		return "", &RenderError{Variant: variant, Err: err}
	}
	return ExpandMacros(strings.TrimSpace(rendered), persona.Name, character.Name), nil
}

// ExpandMacros replaces {{user}} and {{char}} (exact, case-sensitive) with
// the persona and character names. Other macros are left alone.
func ExpandMacros(text, userName, charName string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return strings.NewReplacer("{{user}}", userName, "{{char}}", charName).Replace(text)
}
