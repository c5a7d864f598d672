package city

// Change is the all-or-nothing result of one tick or command.
// A store applies every part of it in a single transaction or none of it.
type Change struct {
	Agent    *Agent         // Updated position and state, nil when unchanged
	Events   []Event        // News entries to append
	Dialogue []DialogueTurn // Conversation turns to append
}

// Empty reports whether the change has nothing to commit.
func (c Change) Empty() bool {
	return c.Agent == nil && len(c.Events) == 0 && len(c.Dialogue) == 0
}
