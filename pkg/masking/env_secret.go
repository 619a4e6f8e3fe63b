package masking

import (
	"os"
	"regexp"
	"strings"
)

// envSecretPattern matches environment variable names that hold
// credentials: API keys, tokens, secrets, passwords.
var envSecretPattern = regexp.MustCompile(`(?i)(_API_KEY|_TOKEN|_SECRET|_PASSWORD|_CREDENTIALS)$`)

// minSecretLength guards against masking trivially short values that
// would shred unrelated text (e.g. TOKEN=dev).
const minSecretLength = 8

// EnvSecretMasker redacts the literal values of credential-bearing
// environment variables wherever they appear in text. Provider SDKs
// sometimes echo the configured key back in authentication errors;
// matching by value catches those regardless of surrounding format.
type EnvSecretMasker struct {
	secrets map[string]string // literal value -> env var name
}

// NewEnvSecretMasker snapshots credential values from the current
// process environment. The snapshot is taken once; rotated secrets
// require a restart to be picked up, same as the providers using them.
func NewEnvSecretMasker() *EnvSecretMasker {
	m := &EnvSecretMasker{secrets: make(map[string]string)}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || len(value) < minSecretLength {
			continue
		}
		if envSecretPattern.MatchString(name) {
			m.secrets[value] = name
		}
	}
	return m
}

// Name returns the unique identifier for this masker.
func (m *EnvSecretMasker) Name() string { return "env_secret" }

// AppliesTo reports whether any known secret value occurs in the data.
func (m *EnvSecretMasker) AppliesTo(data string) bool {
	for value := range m.secrets {
		if strings.Contains(data, value) {
			return true
		}
	}
	return false
}

// Mask replaces each known secret value with a placeholder naming the
// originating environment variable.
func (m *EnvSecretMasker) Mask(data string) string {
	for value, name := range m.secrets {
		if strings.Contains(data, value) {
			data = strings.ReplaceAll(data, value, "__MASKED_"+name+"__")
		}
	}
	return data
}
