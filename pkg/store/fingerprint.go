package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/matzehuels/depstage/pkg/index"
)

// fingerprintInput is the serialized identity of one environment. Field
// order is fixed; changing it invalidates every existing store entry.
type fingerprintInput struct {
	ManifestSHA256 string         `json:"manifest_sha256"`
	Mode           string         `json:"mode"`
	ForcedLibs     []string       `json:"forced_libs"`
	Indexes        []indexIdentity `json:"indexes"`
}

type indexIdentity struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Rank     int    `json:"rank"`
}

// Fingerprint computes the stable hash identifying a unique (manifest,
// mode, forced libs, index configuration) combination. Identical inputs
// always produce the identical fingerprint; anything else would split the
// cache or, worse, alias two different environments onto one entry.
func Fingerprint(manifestSHA256, mode string, forcedLibs []string, indexes []index.Index) string {
	in := fingerprintInput{
		ManifestSHA256: manifestSHA256,
		Mode:           mode,
		ForcedLibs:     forcedLibs,
	}
	if in.ForcedLibs == nil {
		in.ForcedLibs = []string{}
	}
	for _, ix := range indexes {
		in.Indexes = append(in.Indexes, indexIdentity{URL: ix.URL, Username: ix.Username, Rank: ix.Rank})
	}
	if in.Indexes == nil {
		in.Indexes = []indexIdentity{}
	}

	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
