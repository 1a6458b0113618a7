package container

// Core format constants that never change.
// A V2 container is laid out as:
//
//	[player executable][media blobs][icon?][project document][manifest][manifest length][magic]
//
// The trailer is parsed backward from EOF: the magic marker occupies the
// final bytes of the file, and the 8 bytes immediately before it hold the
// byte length of the manifest that precedes them.
const (
	// MagicMarker terminates every V2 container. It carries no meaning
	// beyond presence detection; its absence means "not a container".
	MagicMarker = "TMAKPKG2"

	// MagicSize is the byte length of MagicMarker.
	MagicSize = 8

	// LengthFieldSize is the fixed width of the little-endian manifest
	// length field preceding the magic marker.
	LengthFieldSize = 8

	// TrailerFixedSize is the size of the fixed-width portion of the
	// trailer (length field + magic). A file shorter than this cannot
	// be a container.
	TrailerFixedSize = LengthFieldSize + MagicSize

	// FormatVersion - immutable for the V2 generation.
	FormatVersion = 2
)

const (
	// ExecutablePerms is applied to built containers so the artifact
	// stays directly launchable.
	ExecutablePerms = 0o755

	// DefaultWorkers bounds concurrent media-source reads during a build.
	DefaultWorkers = 4
)
