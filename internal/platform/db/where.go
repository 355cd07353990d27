package db

import (
	"fmt"
	"strings"
)

// Where accumulates AND-ed conditions with positional arguments.
type Where struct {
	conds []string
	args  []any
}

// Add appends a condition. format must contain a single %d that is replaced
// by the argument position.
func (w *Where) Add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

// AddRaw appends a condition without arguments.
func (w *Where) AddRaw(cond string) {
	w.conds = append(w.conds, cond)
}

// Clause renders "WHERE ..." or an empty string.
func (w *Where) Clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the collected arguments.
func (w *Where) Args() []any {
	return w.args
}

// Next returns the position the next argument would take.
func (w *Where) Next() int {
	return len(w.args) + 1
}
