package tdms

import "strings"

// parsePath splits a TDMS object path into its group and channel name
// components. Every path component is wrapped in single quotes, with an
// embedded quote escaped as a doubled quote (''); a slash inside quotes is
// just a character, not a delimiter. The root object's path is "/", a
// group's is "/'group'", and a channel's is "/'group'/'channel'".
func parsePath(path string) (group string, channel string, err error) {
	components := make([]string, 0, 2)

	i := 0
	for {
		if i >= len(path) {
			break
		}

		char := path[i]
		if char != '/' {
			return "", "", ErrInvalidPath
		}

		var nextChar byte
		if i+1 < len(path) {
			nextChar = path[i+1]
		}

		if nextChar == 0 {
			// Root path with no group or channel components.
			break
		}
		if nextChar != '\'' {
			return "", "", ErrInvalidPath
		}

		i += 2 // skip the / and the opening '

		var component strings.Builder
		closed := false
		for i < len(path) {
			char = path[i]
			var after byte
			if i+1 < len(path) {
				after = path[i+1]
			}

			if char == '\'' {
				if after == '\'' {
					component.WriteByte('\'')
					i += 2
					continue
				}
				closed = true
				i++
				break
			}

			component.WriteByte(char)
			i++
		}

		if !closed {
			return "", "", ErrInvalidPath
		}
		components = append(components, component.String())
	}

	if len(components) > 2 {
		return "", "", ErrInvalidPath
	}

	if len(components) > 0 {
		group = components[0]
	}
	if len(components) > 1 {
		channel = components[1]
	}
	return group, channel, nil
}

// encodePath is the inverse of parsePath: it renders a group name, and
// optionally a channel name, as the quoted TDMS object path, escaping any
// embedded quote as a doubled quote. Passing an empty group (and empty
// channel) yields the root path "/".
func encodePath(group, channel string) string {
	if group == "" {
		return "/"
	}

	var b strings.Builder
	b.WriteString("/'")
	b.WriteString(strings.ReplaceAll(group, "'", "''"))
	b.WriteByte('\'')

	if channel != "" {
		b.WriteString("/'")
		b.WriteString(strings.ReplaceAll(channel, "'", "''"))
		b.WriteByte('\'')
	}

	return b.String()
}
