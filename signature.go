package dbus

import (
	"errors"
	"fmt"
	"iter"
)

// A Signature describes the type of a sequence of DBus values, as a
// string of type codes.
//
// The zero Signature is the empty sequence of types, and describes a
// void value such as a method call with no arguments.
type Signature string

const (
	maxSignatureLen = 255
	maxArrayDepth   = 32
	maxStructDepth  = 32
)

// String returns the string encoding of the Signature, as described
// in the DBus specification.
func (s Signature) String() string {
	return string(s)
}

// IsZero reports whether the signature is the zero value.
func (s Signature) IsZero() bool {
	return s == ""
}

// Single reports whether s describes exactly one complete type.
func (s Signature) Single() bool {
	if s == "" {
		return false
	}
	_, rest, err := splitOne(string(s))
	return err == nil && rest == ""
}

// Split returns an iterator over the complete types in s.
//
// Split assumes s is a valid signature. Iteration stops early on
// malformed input.
func (s Signature) Split() iter.Seq[Signature] {
	return func(yield func(Signature) bool) {
		rest := string(s)
		for rest != "" {
			var one string
			var err error
			one, rest, err = splitOne(rest)
			if err != nil {
				return
			}
			if !yield(Signature(one)) {
				return
			}
		}
	}
}

var strToSignature cache[string, Signature]

// ParseSignature parses and validates a DBus type signature string.
func ParseSignature(sig string) (Signature, error) {
	if ret, err, ok := strToSignature.Get(sig); ok {
		return ret, err
	}

	if len(sig) > maxSignatureLen {
		err := fmt.Errorf("invalid type signature %q: longer than %d bytes", sig, maxSignatureLen)
		strToSignature.SetErr(sig, err)
		return "", err
	}
	rest := sig
	for rest != "" {
		var err error
		rest, err = parseOne(rest, false, 0, 0)
		if err != nil {
			err := fmt.Errorf("invalid type signature %q: %w", sig, err)
			strToSignature.SetErr(sig, err)
			return "", err
		}
	}

	ret := Signature(sig)
	strToSignature.Set(sig, ret)
	return ret, nil
}

// splitOne validates the first complete type at the front of sig, and
// returns it along with the remainder of sig.
func splitOne(sig string) (one, rest string, err error) {
	rest, err = parseOne(sig, false, 0, 0)
	if err != nil {
		return "", "", err
	}
	return sig[:len(sig)-len(rest)], rest, nil
}

// parseOne consumes the first complete type from the front of sig,
// and returns the remainder of the type string.
func parseOne(sig string, inArray bool, arrays, structs int) (rest string, err error) {
	if sig == "" {
		return "", errors.New("missing type")
	}
	if kindForCode(sig[0]) != KindInvalid || sig[0] == 'v' {
		return sig[1:], nil
	}

	switch sig[0] {
	case 'a':
		if arrays+1 > maxArrayDepth {
			return "", fmt.Errorf("arrays nested deeper than %d", maxArrayDepth)
		}
		return parseOne(sig[1:], true, arrays+1, structs)
	case '(':
		if structs+1 > maxStructDepth {
			return "", fmt.Errorf("structs nested deeper than %d", maxStructDepth)
		}
		rest := sig[1:]
		n := 0
		for rest != "" && rest[0] != ')' {
			rest, err = parseOne(rest, false, arrays, structs+1)
			if err != nil {
				return "", err
			}
			n++
		}
		if rest == "" {
			return "", errors.New("missing closing ) in struct definition")
		}
		if n == 0 {
			return "", errors.New("empty struct")
		}
		return rest[1:], nil
	case '{':
		if !inArray {
			return "", errors.New("dict entry type found outside array")
		}
		if len(sig) < 2 || kindForCode(sig[1]) == KindInvalid {
			return "", errors.New("invalid dict entry key type, must be a dbus basic type")
		}
		rest, err := parseOne(sig[2:], false, arrays, structs+1)
		if err != nil {
			return "", err
		}
		if rest == "" || rest[0] != '}' {
			return "", errors.New("missing closing } in dict entry definition")
		}
		return rest[1:], nil
	default:
		return "", fmt.Errorf("unknown type specifier %q", sig[0])
	}
}
