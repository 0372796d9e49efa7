// Package model defines shared domain types for the recorder.
//
// Types here are plain data with no behavior beyond trivial accessors.
// Price and size values stay decimal strings end to end; nothing in this
// system does arithmetic on them except the book deriver.
package model
