package dbus

import (
	"fmt"

	"github.com/creachadair/mds/mapset"
)

// A Tag is the single byte type code that identifies the type of a
// value on the wire.
//
// Most tags are the same as the corresponding type code in a
// [Signature]. Structs and dict entries, which signatures spell with
// paired brackets, use the single letter tags 'r' and 'e'.
type Tag byte

const (
	// TagInvalid marks the end of a sequence of values.
	TagInvalid    Tag = 0
	TagByte       Tag = 'y'
	TagBoolean    Tag = 'b'
	TagInt16      Tag = 'n'
	TagUint16     Tag = 'q'
	TagInt32      Tag = 'i'
	TagUint32     Tag = 'u'
	TagInt64      Tag = 'x'
	TagUint64     Tag = 't'
	TagDouble     Tag = 'd'
	TagUnixFD     Tag = 'h'
	TagString     Tag = 's'
	TagObjectPath Tag = 'o'
	TagSignature  Tag = 'g'
	TagVariant    Tag = 'v'
	TagArray      Tag = 'a'
	TagStruct     Tag = 'r'
	TagDictEntry  Tag = 'e'
)

func (t Tag) String() string {
	if t == TagInvalid {
		return "<end>"
	}
	return string(rune(t))
}

// A Kind is one of the kinds of value that a [Codec] produces or
// consumes.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindByte
	KindBool
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindDouble
	KindUnixFD
	KindString
	KindObjectPath
	KindSignature
	// KindIgnore is the kind of a value that is skipped without being
	// decoded.
	KindIgnore
	KindVariant
	KindArray
	KindStruct
	KindDictEntry
	// KindMap is an array of dict entries, collected into a Go map.
	KindMap
)

var kindInfo = [...]struct {
	name  string
	tag   Tag
	align int
}{
	KindInvalid:    {"invalid", TagInvalid, 1},
	KindByte:       {"byte", TagByte, 1},
	KindBool:       {"bool", TagBoolean, 4},
	KindInt16:      {"int16", TagInt16, 2},
	KindUint16:     {"uint16", TagUint16, 2},
	KindInt32:      {"int32", TagInt32, 4},
	KindUint32:     {"uint32", TagUint32, 4},
	KindInt64:      {"int64", TagInt64, 8},
	KindUint64:     {"uint64", TagUint64, 8},
	KindDouble:     {"double", TagDouble, 8},
	KindUnixFD:     {"unix_fd", TagUnixFD, 4},
	KindString:     {"string", TagString, 4},
	KindObjectPath: {"object_path", TagObjectPath, 4},
	KindSignature:  {"signature", TagSignature, 1},
	KindIgnore:     {"ignore", TagInvalid, 1},
	KindVariant:    {"variant", TagVariant, 1},
	KindArray:      {"array", TagArray, 4},
	KindStruct:     {"struct", TagStruct, 8},
	KindDictEntry:  {"dict_entry", TagDictEntry, 8},
	KindMap:        {"map", TagArray, 4},
}

func (k Kind) String() string {
	if int(k) >= len(kindInfo) {
		return fmt.Sprintf("Kind(%d)", k)
	}
	return kindInfo[k].name
}

// basicKinds is the set of kinds that can be used as the key of a
// dict entry.
var basicKinds = mapset.New(
	KindByte,
	KindBool,
	KindInt16,
	KindUint16,
	KindInt32,
	KindUint32,
	KindInt64,
	KindUint64,
	KindDouble,
	KindUnixFD,
	KindString,
	KindObjectPath,
	KindSignature,
)

// IsBasic reports whether k is a DBus basic type.
func (k Kind) IsBasic() bool {
	return basicKinds.Has(k)
}

// TagFor returns the wire tag of values of kind k.
//
// Values of KindIgnore have no single tag, and TagFor returns
// TagInvalid for them.
func TagFor(k Kind) Tag {
	if int(k) >= len(kindInfo) {
		return TagInvalid
	}
	return kindInfo[k].tag
}

// Accepts reports whether a codec of kind k can decode a value with
// wire tag t.
func Accepts(k Kind, t Tag) bool {
	switch k {
	case KindIgnore:
		return true
	case KindInvalid:
		return false
	}
	return TagFor(k) == t
}

// alignOf returns the wire alignment of the type whose signature
// begins with code.
func alignOf(code byte) int {
	switch code {
	case 'y', 'g', 'v':
		return 1
	case 'n', 'q':
		return 2
	case 'x', 't', 'd', '(', '{':
		return 8
	default:
		return 4
	}
}

// tagOf returns the wire tag of the type whose signature begins with
// code.
func tagOf(code byte) Tag {
	switch code {
	case '(':
		return TagStruct
	case '{':
		return TagDictEntry
	default:
		return Tag(code)
	}
}

// kindForCode returns the Kind of the basic type with the given
// signature code, or KindInvalid if code isn't a basic type.
func kindForCode(code byte) Kind {
	for k := KindByte; k <= KindSignature; k++ {
		if byte(kindInfo[k].tag) == code {
			return k
		}
	}
	return KindInvalid
}
