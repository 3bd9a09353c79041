package index

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// CredentialSource resolves an authentication token for an index host.
// Prompting is the launcher's concern; the engine only reads tokens that
// already exist.
type CredentialSource interface {
	// Token returns the token for host. The second return is false when
	// no credential is configured for that host.
	Token(host string) (string, bool)
}

// FileCredentials reads tokens from per-host files named
// "depstage_<host>" in a directory (default ~/.ssh). File contents are
// trimmed; dots in hostnames are kept as written.
type FileCredentials struct {
	Dir string // Directory holding token files; empty means ~/.ssh
}

// Token reads the token file for host.
func (f *FileCredentials) Token(host string) (string, bool) {
	dir := f.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", false
		}
		dir = filepath.Join(home, ".ssh")
	}

	data, err := os.ReadFile(filepath.Join(dir, "depstage_"+strings.ToLower(host)))
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(string(data))
	return token, token != ""
}

// NoCredentials never returns a token.
type NoCredentials struct{}

// Token always reports no credential.
func (NoCredentials) Token(string) (string, bool) { return "", false }

// hostOf extracts the hostname from an index base URL, or "" when the URL
// does not parse.
func hostOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
