package starlark

import (
	"time"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
)

// TimeLayout is the format of now().
const TimeLayout = "2006-01-02 15:04:05"

// Predeclared returns the builtin globals available to every template:
// the lowercase literals true/false/none, uuid() and now().
// Filters and macros are added separately.
func Predeclared(clock func() time.Time) starlark.StringDict {
	if clock == nil {
		clock = time.Now
	}

	return starlark.StringDict{
		"true":  starlark.True,
		"false": starlark.False,
		"none":  starlark.None,
		"uuid":  starlark.NewBuiltin("uuid", builtinUUID),
		"now":   starlark.NewBuiltin("now", builtinNow(clock)),
	}
}

// builtinUUID returns a random UUID string.
func builtinUUID(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.String(uuid.NewString()), nil
}

// builtinNow returns the current time, formatted with TimeLayout unless a
// Go layout is given.
func builtinNow(clock func() time.Time) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		layout := TimeLayout
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "layout?", &layout); err != nil {
			return nil, err
		}
		return starlark.String(clock().Format(layout)), nil
	}
}
