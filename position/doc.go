// Package position converts cursor coordinates between the host editor and
// the headless engine.
//
// The host addresses text with 0-based (line, column) pairs. The engine uses
// 1-based lines and 1-based columns. Both conversions clamp columns to the
// line and reject lines outside the document; neither guesses the document
// length, callers pass a Lines view of the content they currently know.
package position
