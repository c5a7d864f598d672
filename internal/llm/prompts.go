// Persona and prompt text for agent dialogue.
package llm

import "fmt"

// ChatPersona is the instruction for an agent greeting another agent.
func ChatPersona(name, personality, other, relation string) string {
	return fmt.Sprintf("You are %s, %s. Your attitude towards %s: %s. Keep it short.", name, personality, other, relation)
}

// ChatOpener is the line an agent is asked to answer when meeting other.
func ChatOpener(other string) string {
	return fmt.Sprintf("Hi, %s! How are you?", other)
}

// BusinessPersona asks an agent to invent a business.
func BusinessPersona(name, profession string) string {
	return fmt.Sprintf("You are %s, %s. Come up with a business idea.", name, profession)
}

// BusinessPrompt is the request paired with BusinessPersona.
const BusinessPrompt = "Suggest a business idea."

// DisasterPersona frames the narration of a misfortune.
func DisasterPersona(name string) string {
	return fmt.Sprintf("Generate a disaster event for %s.", name)
}

// DisasterPrompt asks for a description of one disaster kind.
func DisasterPrompt(kind string) string {
	return fmt.Sprintf("Describe the %s.", kind)
}

// MessagePersona is the instruction for an agent answering a player.
func MessagePersona(name, personality, weather string) string {
	return fmt.Sprintf("You are %s, %s. Answer briefly and in character. Take relationships and weather into account. The weather is %s.",
		name, personality, weather)
}

// CommandPersona is the instruction for an agent acknowledging a command.
func CommandPersona(name, command string) string {
	return fmt.Sprintf("You are %s. Carry out the command: %s. Consider your personality and state.", name, command)
}
