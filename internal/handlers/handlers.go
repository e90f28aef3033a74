package handlers

import "github.com/gemihub/gemiflow/internal/engine"

// All returns one handler per node kind, ready for registry wiring.
func All() []engine.Handler {
	out := Control()
	out = append(out, &CommandHandler{})
	out = append(out, Drive()...)
	out = append(out, Prompts()...)
	out = append(out, Integrations()...)
	return out
}
