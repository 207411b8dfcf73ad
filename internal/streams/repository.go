package streams

// Store persists stream specifications.
type Store interface {
	// Load reads the configuration from the backing file. A missing file
	// is not an error and yields an empty configuration.
	Load() error

	// Save writes the configuration back to the backing file.
	Save() error

	// GetStream returns a stream spec by name.
	GetStream(name string) (StreamSpec, bool)

	// GetAllStreams returns a copy of all stream specs keyed by name.
	GetAllStreams() map[string]StreamSpec

	// SetStream adds or replaces a stream spec.
	SetStream(spec StreamSpec)

	// DeleteStream removes a stream spec. Returns false if absent.
	DeleteStream(name string) bool
}
