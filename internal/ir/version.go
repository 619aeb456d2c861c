package ir

// Version constants for the triple encoding and the library.
const (
	// EncodingVersion is the triple wire encoding version.
	EncodingVersion = "1"

	// LibraryVersion is the lattice library version.
	LibraryVersion = "0.1.0"
)
