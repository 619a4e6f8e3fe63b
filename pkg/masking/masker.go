package masking

// Masker is the interface for code-based maskers that need awareness
// beyond regex pattern matching, such as redacting the literal values
// of secrets known to the process.
type Masker interface {
	// Name returns the unique identifier for this masker.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker
	// should process the data. Should be fast (string contains, not parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result.
	Mask(data string) string
}
