package dbus

import (
	"errors"
	"fmt"
	"strings"
)

// ObjectPath is the path of an object exported by a bus peer.
type ObjectPath string

// Valid checks that p is a well-formed object path.
func (p ObjectPath) Valid() error {
	s := string(p)
	if s == "" {
		return errors.New("empty object path")
	}
	if s[0] != '/' {
		return fmt.Errorf("object path %q is not absolute", s)
	}
	if s == "/" {
		return nil
	}
	if strings.HasSuffix(s, "/") {
		return fmt.Errorf("object path %q has a trailing slash", s)
	}
	for _, elem := range strings.Split(s[1:], "/") {
		if elem == "" {
			return fmt.Errorf("object path %q has an empty element", s)
		}
		for i := range len(elem) {
			if !isNameChar(elem[i], false) {
				return fmt.Errorf("object path %q contains invalid character %q", s, elem[i])
			}
		}
	}
	return nil
}

// Child returns the path of the child object at the relative path
// rel under p.
func (p ObjectPath) Child(rel string) ObjectPath {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return p
	}
	if p == "/" {
		return ObjectPath("/" + rel)
	}
	return ObjectPath(string(p) + "/" + rel)
}

// IsChildOf reports whether p is a descendant of parent.
func (p ObjectPath) IsChildOf(parent ObjectPath) bool {
	if p == parent {
		return false
	}
	if parent == "/" {
		return strings.HasPrefix(string(p), "/")
	}
	return strings.HasPrefix(string(p), string(parent)+"/")
}

func (p ObjectPath) String() string {
	return string(p)
}
