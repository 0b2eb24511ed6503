// Package controlcode translates in-band protocol markers embedded in
// assistant replies into UI-effecting commands. The token set is a closed,
// versioned enumeration: tokens are literal fixed strings mapped through a
// lookup table, never pattern-sniffed out of free text.
package controlcode

import "strings"

// Command is the effect a recognized token maps to.
type Command int

const (
	CommandStartNewConversation Command = iota
	CommandDisableInput
	CommandEnableInput
)

func (c Command) String() string {
	switch c {
	case CommandStartNewConversation:
		return "start_new_conversation"
	case CommandDisableInput:
		return "disable_input"
	case CommandEnableInput:
		return "enable_input"
	default:
		return "unknown"
	}
}

// Wire tokens. Version 1 of the protocol; additions must use fresh tokens so
// historical cleaned text never re-triggers commands.
const (
	TokenStartNewConversation = "#0001"
	TokenDisableInput         = "#0002"
	TokenEnableInput          = "#0003"
)

// Result is what Interpret produces: display text with every token removed,
// and the commands in the order their tokens appeared. The caller must honor
// that order when applying them.
type Result struct {
	CleanedText string
	Commands    []Command
}

type binding struct {
	token string
	cmd   Command
}

// Interpreter scans assistant text for registered tokens. It is pure and
// side-effect-free; it never touches session or UI state.
type Interpreter struct {
	bindings []binding
}

// NewInterpreter returns an interpreter with the version-1 token set.
func NewInterpreter() *Interpreter {
	in := &Interpreter{}
	in.Register(TokenStartNewConversation, CommandStartNewConversation)
	in.Register(TokenDisableInput, CommandDisableInput)
	in.Register(TokenEnableInput, CommandEnableInput)
	return in
}

// Register adds a token to the recognized set. Longer tokens win when one is
// a prefix of another.
func (in *Interpreter) Register(token string, cmd Command) {
	in.bindings = append(in.bindings, binding{token: token, cmd: cmd})
	// Keep longest-first so prefix tokens cannot shadow longer ones.
	for i := len(in.bindings) - 1; i > 0; i-- {
		if len(in.bindings[i].token) > len(in.bindings[i-1].token) {
			in.bindings[i], in.bindings[i-1] = in.bindings[i-1], in.bindings[i]
		}
	}
}

// Interpret scans raw left to right. Each token occurrence appends its
// command and is removed from the cleaned text; surrounding text is kept
// byte for byte. Duplicate tokens yield duplicate commands.
func (in *Interpreter) Interpret(raw string) Result {
	var cmds []Command
	var b strings.Builder

	i := 0
	for i < len(raw) {
		tok, cmd, ok := in.matchAt(raw, i)
		if ok {
			cmds = append(cmds, cmd)
			i += len(tok)
			continue
		}
		b.WriteByte(raw[i])
		i++
	}

	if len(cmds) == 0 {
		return Result{CleanedText: raw}
	}
	return Result{CleanedText: b.String(), Commands: cmds}
}

func (in *Interpreter) matchAt(s string, i int) (string, Command, bool) {
	for _, bd := range in.bindings {
		if strings.HasPrefix(s[i:], bd.token) {
			return bd.token, bd.cmd, true
		}
	}
	return "", 0, false
}
