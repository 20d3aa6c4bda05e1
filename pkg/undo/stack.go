// Package undo provides a bounded undo/redo stack of reversible commands.
package undo

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/proxyshape/internal/logging"
	"github.com/aretw0/proxyshape/pkg/domain"
)

// Command is a reversible change. Do must be safe to call again after Undo.
type Command interface {
	Do() error
	Undo() error
	Name() string
}

// DefaultLimit bounds the number of commands kept when no limit is configured.
const DefaultLimit = 100

// Stack records executed commands. Commands before the cursor are done and
// can be undone; commands after it were undone and can be redone.
//
// A Stack is not safe for concurrent use: callers serialize access.
type Stack struct {
	cmds   []Command
	cursor int
	limit  int
	gen    uint64
	logger *slog.Logger
}

// Option configures the Stack.
type Option func(*Stack)

// WithLimit bounds the number of recorded commands. Zero or less means unbounded.
func WithLimit(n int) Option {
	return func(s *Stack) {
		s.limit = n
	}
}

// WithLogger configures a logger for the Stack.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stack) {
		s.logger = logger
	}
}

// New creates an empty Stack.
func New(opts ...Option) *Stack {
	s := &Stack{
		limit:  DefaultLimit,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs cmd and records it. A failed command is not recorded.
func (s *Stack) Execute(cmd Command) error {
	if err := cmd.Do(); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	s.Push(cmd)
	return nil
}

// Push records a command that has already been applied. Any redo history
// is discarded.
func (s *Stack) Push(cmd Command) {
	s.cmds = append(s.cmds[:s.cursor], cmd)
	if s.limit > 0 && len(s.cmds) > s.limit {
		drop := len(s.cmds) - s.limit
		s.cmds = append([]Command(nil), s.cmds[drop:]...)
	}
	s.cursor = len(s.cmds)
	s.gen++
	s.logger.Debug("command recorded", "command", cmd.Name(), "depth", s.cursor)
}

// CanUndo reports whether there is a command to undo.
func (s *Stack) CanUndo() bool { return s.cursor > 0 }

// CanRedo reports whether there is a command to redo.
func (s *Stack) CanRedo() bool { return s.cursor < len(s.cmds) }

// Undo reverts the most recent command and returns it. If the command fails
// to undo the stack is left unchanged.
func (s *Stack) Undo() (Command, error) {
	if !s.CanUndo() {
		return nil, domain.ErrNothingToUndo
	}
	cmd := s.cmds[s.cursor-1]
	if err := cmd.Undo(); err != nil {
		return cmd, fmt.Errorf("undo %s: %w", cmd.Name(), err)
	}
	s.cursor--
	s.gen++
	s.logger.Debug("command undone", "command", cmd.Name(), "depth", s.cursor)
	return cmd, nil
}

// Redo reapplies the most recently undone command and returns it.
func (s *Stack) Redo() (Command, error) {
	if !s.CanRedo() {
		return nil, domain.ErrNothingToRedo
	}
	cmd := s.cmds[s.cursor]
	if err := cmd.Do(); err != nil {
		return cmd, fmt.Errorf("redo %s: %w", cmd.Name(), err)
	}
	s.cursor++
	s.gen++
	s.logger.Debug("command redone", "command", cmd.Name(), "depth", s.cursor)
	return cmd, nil
}

// Len returns the number of recorded commands, done and undone.
func (s *Stack) Len() int { return len(s.cmds) }

// Names lists the done commands, oldest first.
func (s *Stack) Names() []string {
	out := make([]string, 0, s.cursor)
	for _, c := range s.cmds[:s.cursor] {
		out = append(out, c.Name())
	}
	return out
}

// Clear forgets every recorded command.
func (s *Stack) Clear() {
	s.cmds = nil
	s.cursor = 0
	s.gen++
}

// Mark is a point in a Stack's history; see Rewind.
type Mark struct {
	done []Command
	gen  uint64
}

// Mark records the current point in the history.
func (s *Stack) Mark() Mark {
	return Mark{done: append([]Command(nil), s.cmds[:s.cursor]...), gen: s.gen}
}

// Rewind forgets whatever was recorded, undone or redone since m. If the
// commands done at m are all still done, the history is cut back to them,
// redo history included; otherwise it is cleared. It reports whether the
// history changed.
//
// Commands are compared by identity, so they must be comparable values
// such as pointers.
func (s *Stack) Rewind(m Mark) bool {
	if s.gen == m.gen {
		return false
	}
	n := len(m.done)
	if s.cursor >= n && sameCommands(s.cmds[:n], m.done) {
		s.cmds = append([]Command(nil), s.cmds[:n]...)
		s.cursor = n
	} else {
		s.cmds = nil
		s.cursor = 0
	}
	s.gen++
	s.logger.Debug("history rewound", "depth", s.cursor)
	return true
}

func sameCommands(a, b []Command) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
