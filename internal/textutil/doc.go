// Package textutil provides text helpers for user-supplied artifact names.
//
// Names are normalized to Unicode NFC before they are stored or compared so
// that visually identical names collide on the per-owner uniqueness check.
package textutil
