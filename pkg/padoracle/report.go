package padoracle

import (
	"fmt"
	"io"
)

// reporter writes progress lines. Level 0 lines are always written.
type reporter struct {
	out       io.Writer
	verbosity int
}

func newReporter(cfg AttackConfig) *reporter {
	return &reporter{out: cfg.output(), verbosity: cfg.Verbosity}
}

func (r *reporter) printf(level int, format string, args ...interface{}) {
	if r.verbosity < level {
		return
	}
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *reporter) phase(format string, args ...interface{}) {
	r.printf(0, format, args...)
}

func (r *reporter) progress(format string, args ...interface{}) {
	r.printf(1, format, args...)
}

func (r *reporter) debug(format string, args ...interface{}) {
	r.printf(2, format, args...)
}

func (r *reporter) warn(err error) {
	r.printf(1, "warning: %v", err)
}

func (r *reporter) warnAll(errs []error) {
	for _, err := range errs {
		r.warn(err)
	}
}
