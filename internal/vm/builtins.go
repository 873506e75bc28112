// internal/vm/builtins.go
package vm

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"rzn/internal/errors"
)

// nativeFunc is a builtin implemented in Go and reached through Call.
type nativeFunc func(r *Runtime, args []Value) (Value, *errors.RuntimeError)

func nativeTable() map[string]nativeFunc {
	return map[string]nativeFunc{
		"printc":   nativePrintc(false),
		"printlnc": nativePrintc(true),
		"read":     nativeRead,
		"write":    nativeWrite,
	}
}

var ansiColors = map[string]string{
	"black":   "30",
	"red":     "31",
	"green":   "32",
	"yellow":  "33",
	"blue":    "34",
	"magenta": "35",
	"cyan":    "36",
	"white":   "37",
	"gray":    "90",
	"grey":    "90",
}

// colorize wraps text in an ANSI escape for a named color or #RRGGBB hex
// value. Unknown colors and non-terminal outputs pass the text through.
func colorize(w io.Writer, text, color string) string {
	f, isFile := w.(*os.File)
	if !isFile || !isatty.IsTerminal(f.Fd()) {
		return text
	}
	color = strings.ToLower(strings.TrimSpace(color))
	if code, ok := ansiColors[color]; ok {
		return "\x1b[" + code + "m" + text + "\x1b[0m"
	}
	if strings.HasPrefix(color, "#") && len(color) == 7 {
		rv, err1 := strconv.ParseUint(color[1:3], 16, 8)
		gv, err2 := strconv.ParseUint(color[3:5], 16, 8)
		bv, err3 := strconv.ParseUint(color[5:7], 16, 8)
		if err1 == nil && err2 == nil && err3 == nil {
			return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", rv, gv, bv, text)
		}
	}
	return text
}

func nativePrintc(newline bool) nativeFunc {
	return func(r *Runtime, args []Value) (Value, *errors.RuntimeError) {
		color := ""
		if len(args) > 1 {
			if s, ok := args[1].(Str); ok {
				color = s.S
			}
		}
		text := colorize(r.Stdout, Display(args[0]), color)
		if newline {
			text += "\n"
		}
		_, _ = io.WriteString(r.Stdout, text)
		return nil, nil
	}
}

func nativeRead(_ *Runtime, args []Value) (Value, *errors.RuntimeError) {
	path, ok := args[0].(Str)
	if !ok {
		return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"read expects a str path, found %s", TypeTag(args[0]))
	}
	data, err := os.ReadFile(path.S)
	if err != nil {
		return nil, errors.NewRuntimeError(errors.KeyNotFound, 0,
			"cannot read %q: %v", path.S, err)
	}
	return OwnedStr(string(data)), nil
}

func nativeWrite(_ *Runtime, args []Value) (Value, *errors.RuntimeError) {
	path, ok := args[0].(Str)
	if !ok {
		return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"write expects a str path, found %s", TypeTag(args[0]))
	}
	content, ok := args[1].(Str)
	if !ok {
		return nil, errors.NewRuntimeError(errors.TypeCoercionFailure, 0,
			"write expects str contents, found %s", TypeTag(args[1]))
	}
	if err := os.WriteFile(path.S, []byte(content.S), 0o644); err != nil {
		return false, nil
	}
	return true, nil
}
