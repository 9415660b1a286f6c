package dbus

import (
	"errors"
	"fmt"
	"strings"
)

const maxNameLen = 255

func isNameChar(c byte, allowDash bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return true
	case c == '-':
		return allowDash
	default:
		return false
	}
}

// validBusName checks that name is a valid unique or well-known bus
// name.
func validBusName(name string) error {
	if name == "" {
		return errors.New("empty bus name")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("bus name %q longer than %d bytes", name, maxNameLen)
	}
	unique := strings.HasPrefix(name, ":")
	elems := strings.Split(strings.TrimPrefix(name, ":"), ".")
	if len(elems) < 2 {
		return fmt.Errorf("bus name %q must have at least two elements", name)
	}
	for _, elem := range elems {
		if elem == "" {
			return fmt.Errorf("bus name %q has an empty element", name)
		}
		if !unique && elem[0] >= '0' && elem[0] <= '9' {
			return fmt.Errorf("bus name %q has an element starting with a digit", name)
		}
		for i := range len(elem) {
			if !isNameChar(elem[i], true) {
				return fmt.Errorf("bus name %q contains invalid character %q", name, elem[i])
			}
		}
	}
	return nil
}

// validInterfaceName checks that name is a valid interface or error
// name.
func validInterfaceName(name string) error {
	if name == "" {
		return errors.New("empty interface name")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("interface name %q longer than %d bytes", name, maxNameLen)
	}
	elems := strings.Split(name, ".")
	if len(elems) < 2 {
		return fmt.Errorf("interface name %q must have at least two elements", name)
	}
	for _, elem := range elems {
		if err := validMemberName(elem); err != nil {
			return fmt.Errorf("interface name %q: %w", name, err)
		}
	}
	return nil
}

// validMemberName checks that name is a valid method or signal name.
func validMemberName(name string) error {
	if name == "" {
		return errors.New("empty member name")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("member name %q longer than %d bytes", name, maxNameLen)
	}
	if name[0] >= '0' && name[0] <= '9' {
		return fmt.Errorf("member name %q starts with a digit", name)
	}
	for i := range len(name) {
		if !isNameChar(name[i], false) {
			return fmt.Errorf("member name %q contains invalid character %q", name, name[i])
		}
	}
	return nil
}
