package imageio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fiasco-codec/fiasco/fiascoerr"
)

// ExpandTemplate expands a `prefix[start-end+step]suffix` (or `-step`
// for descending) file-name template into the numbered sequence of
// frame file names. A name without a
// bracket group expands to itself.
func ExpandTemplate(template string) ([]string, error) {
	open := strings.IndexByte(template, '[')
	if open < 0 {
		return []string{template}, nil
	}
	end := strings.IndexByte(template[open:], ']')
	if end < 0 {
		return nil, fiascoerr.New(fiascoerr.ParameterOutOfRange, "imageio.ExpandTemplate",
			fmt.Errorf("unterminated bracket in %q", template))
	}
	end += open
	prefix, group, suffix := template[:open], template[open+1:end], template[end+1:]

	start, end, step, err := parseRange(group)
	if err != nil {
		return nil, fiascoerr.New(fiascoerr.ParameterOutOfRange, "imageio.ExpandTemplate", err)
	}

	// Zero padding follows the start field's width.
	width := len(strings.SplitN(group, "-", 2)[0])

	var names []string
	if step > 0 {
		for i := start; i <= end; i += step {
			names = append(names, fmt.Sprintf("%s%0*d%s", prefix, width, i, suffix))
		}
	} else {
		for i := start; i >= end; i += step {
			names = append(names, fmt.Sprintf("%s%0*d%s", prefix, width, i, suffix))
		}
	}
	return names, nil
}

func parseRange(group string) (start, end, step int, err error) {
	dash := strings.IndexByte(group, '-')
	if dash < 0 {
		return 0, 0, 0, fmt.Errorf("missing '-' in range %q", group)
	}
	rest := group[dash+1:]
	step = 1
	if i := strings.IndexAny(rest, "+-"); i >= 0 {
		step, err = strconv.Atoi(rest[i:])
		if err != nil || step == 0 {
			return 0, 0, 0, fmt.Errorf("bad step in range %q", group)
		}
		rest = rest[:i]
	}
	start, err = strconv.Atoi(group[:dash])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad start in range %q", group)
	}
	end, err = strconv.Atoi(rest)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bad end in range %q", group)
	}
	if (step > 0 && end < start) || (step < 0 && end > start) {
		return 0, 0, 0, fmt.Errorf("empty range %q", group)
	}
	return start, end, step, nil
}
