// Package book derives the complement-side order book from a primary
// instrument's book update.
//
// Binary markets quote only one canonical outcome; the opposite outcome's
// book is fully determined by price' = 1 - price applied level by level,
// with sides swapped. Derivation is a pure function: no state, no I/O.
package book
