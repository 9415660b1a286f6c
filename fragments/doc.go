// Package fragments provides low-level encoding and decoding helpers
// to construct and parse DBus messages.
//
// The provided encoder and decoder are very low level, and do not
// encode any DBus semantics beyond alignment and framing. It is the
// caller's responsibility to produce valid DBus messages using these
// tools.
//
// You should not need to use this package directly unless you are
// writing your own low-level codecs. The typed codecs in the parent
// package are built on top of [Encoder] and [Decoder].
package fragments
