package fsm

import (
	"fmt"
	"sort"
	"strings"
)

// Visualizer renders runtime definitions for documentation and
// debugging.
type Visualizer struct {
	def *RuntimeDefinition
}

// NewVisualizer creates a visualizer for one definition.
func NewVisualizer(def *RuntimeDefinition) *Visualizer {
	return &Visualizer{def: def}
}

// sortedStates returns state names in stable order.
func (v *Visualizer) sortedStates() []State {
	names := make([]State, 0, len(v.def.States))
	for name := range v.def.States {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func transitionLabel(t *TransitionDefinition) string {
	label := t.Name()
	if len(t.Guards) > 0 {
		label += " [guarded]"
	}
	if t.Behavior == TransitionQueued {
		label += " [queued]"
	}
	return label
}

// ToMermaid generates a Mermaid stateDiagram-v2 block.
func (v *Visualizer) ToMermaid() string {
	var sb strings.Builder

	sb.WriteString("```mermaid\n")
	sb.WriteString("stateDiagram-v2\n")

	if v.def.Initial != nil {
		sb.WriteString(fmt.Sprintf("    [*] --> %s\n", *v.def.Initial))
	}

	for _, name := range v.sortedStates() {
		if v.def.States[name].IsTerminal() {
			sb.WriteString(fmt.Sprintf("    %s --> [*]\n", name))
		}
	}

	for _, t := range v.def.Transitions {
		from := t.FromString()
		if t.From == nil {
			from = "[*]"
		} else if t.isWildcardFrom() {
			// Mermaid has no wildcard node; draw one edge per state.
			for _, name := range v.sortedStates() {
				sb.WriteString(fmt.Sprintf("    %s --> %s : %s\n", name, t.To, transitionLabel(t)))
			}
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s --> %s : %s\n", from, t.To, transitionLabel(t)))
	}

	sb.WriteString("```\n")
	return sb.String()
}

// ToASCII generates a plain-text summary.
func (v *Visualizer) ToASCII() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Machine: %s.%s\n", v.def.ModelClass, v.def.Column))
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	if v.def.Initial != nil {
		sb.WriteString(fmt.Sprintf("Initial State: %s\n\n", *v.def.Initial))
	}

	sb.WriteString("States:\n")
	for _, name := range v.sortedStates() {
		state := v.def.States[name]
		marker := ""
		if state.IsTerminal() {
			marker = " (terminal)"
		}
		sb.WriteString(fmt.Sprintf("  * %s%s\n", name, marker))

		for _, t := range v.def.TransitionsFrom(StateRef(name)) {
			sb.WriteString(fmt.Sprintf("      %s -> %s\n", transitionLabel(t), t.To))
		}
	}

	fromNone := 0
	for _, t := range v.def.Transitions {
		if t.From == nil {
			if fromNone == 0 {
				sb.WriteString("\nFrom no prior state:\n")
			}
			fromNone++
			sb.WriteString(fmt.Sprintf("      %s -> %s\n", transitionLabel(t), t.To))
		}
	}

	return sb.String()
}

// ToDOT generates a Graphviz representation.
func (v *Visualizer) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph fsm {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=circle];\n\n")

	if v.def.Initial != nil {
		sb.WriteString("  start [shape=point];\n")
		sb.WriteString(fmt.Sprintf("  start -> %q;\n\n", *v.def.Initial))
	}

	for _, name := range v.sortedStates() {
		shape := "circle"
		if v.def.States[name].IsTerminal() {
			shape = "doublecircle"
		}
		sb.WriteString(fmt.Sprintf("  %q [shape=%s];\n", name, shape))
	}
	sb.WriteByte('\n')

	for _, t := range v.def.Transitions {
		if t.From == nil || t.isWildcardFrom() {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", *t.From, t.To, transitionLabel(t)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// Stats summarizes the definition.
func (v *Visualizer) Stats() map[string]interface{} {
	terminal := 0
	guarded := 0
	for _, state := range v.def.States {
		if state.IsTerminal() {
			terminal++
		}
	}
	for _, t := range v.def.Transitions {
		if len(t.Guards) > 0 {
			guarded++
		}
	}

	stats := map[string]interface{}{
		"modelClass":         v.def.ModelClass,
		"column":             v.def.Column,
		"stateCount":         len(v.def.States),
		"transitionCount":    len(v.def.Transitions),
		"terminalStateCount": terminal,
		"guardedTransitions": guarded,
	}
	if v.def.Initial != nil {
		stats["initialState"] = string(*v.def.Initial)
	}
	return stats
}

// Lint reports definition smells that Validate does not reject:
// unreachable states, dead ends, and ambiguous duplicate edges.
func (v *Visualizer) Lint() []string {
	var issues []string

	reachable := make(map[State]bool)
	var queue []State
	if v.def.Initial != nil {
		reachable[*v.def.Initial] = true
		queue = append(queue, *v.def.Initial)
	}
	for _, t := range v.def.Transitions {
		if t.From == nil && !reachable[t.To] {
			reachable[t.To] = true
			queue = append(queue, t.To)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, t := range v.def.TransitionsFrom(StateRef(current)) {
			if !reachable[t.To] {
				reachable[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	for _, name := range v.sortedStates() {
		if !reachable[name] {
			issues = append(issues, fmt.Sprintf("State '%s' is unreachable", name))
		}
	}

	for _, name := range v.sortedStates() {
		state := v.def.States[name]
		if state.IsTerminal() || state.Type == StateTypeFinal {
			continue
		}
		if len(v.def.TransitionsFrom(StateRef(name))) == 0 {
			issues = append(issues, fmt.Sprintf("State '%s' has no outgoing transitions and is not terminal", name))
		}
	}

	seen := make(map[string]int)
	for _, t := range v.def.Transitions {
		seen[t.FromString()+"|"+t.Event]++
	}
	for key, count := range seen {
		if count > 1 {
			parts := strings.SplitN(key, "|", 2)
			issues = append(issues, fmt.Sprintf("State '%s' has %d transitions for event '%s' (selection uses definition order)", parts[0], count, parts[1]))
		}
	}

	sort.Strings(issues)
	return issues
}
