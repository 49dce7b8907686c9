// Package history implements undo/redo over reversible commands.
package history

// Command is a reversible mutation. Do may be called again after Undo to
// redo it; both must work from state captured on the first Do.
type Command interface {
	Name() string
	Do()
	Undo()
}

// History holds the undo and redo stacks.
type History struct {
	undo     []Command
	redo     []Command
	onChange []func()
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// Execute runs cmd, pushes it onto the undo stack and clears the redo stack.
func (h *History) Execute(cmd Command) {
	cmd.Do()
	h.undo = append(h.undo, cmd)
	h.redo = h.redo[:0]
	h.changed()
}

// Undo reverts the most recent command. It is a no-op on an empty stack.
func (h *History) Undo() bool {
	if len(h.undo) == 0 {
		return false
	}
	cmd := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	cmd.Undo()
	h.redo = append(h.redo, cmd)
	h.changed()
	return true
}

// Redo reapplies the most recently undone command. It is a no-op on an
// empty stack.
func (h *History) Redo() bool {
	if len(h.redo) == 0 {
		return false
	}
	cmd := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	cmd.Do()
	h.undo = append(h.undo, cmd)
	h.changed()
	return true
}

// CanUndo reports whether Undo would do anything.
func (h *History) CanUndo() bool { return len(h.undo) > 0 }

// CanRedo reports whether Redo would do anything.
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// UndoName returns the name of the command Undo would revert.
func (h *History) UndoName() string {
	if len(h.undo) == 0 {
		return ""
	}
	return h.undo[len(h.undo)-1].Name()
}

// RedoName returns the name of the command Redo would reapply.
func (h *History) RedoName() string {
	if len(h.redo) == 0 {
		return ""
	}
	return h.redo[len(h.redo)-1].Name()
}

// Clear empties both stacks.
func (h *History) Clear() {
	h.undo = nil
	h.redo = nil
	h.changed()
}

// OnChange registers fn to run whenever either stack changes.
func (h *History) OnChange(fn func()) {
	h.onChange = append(h.onChange, fn)
}

func (h *History) changed() {
	for _, fn := range h.onChange {
		fn()
	}
}
