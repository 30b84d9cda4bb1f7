// Package credentials resolves integration references to secret values.
package credentials

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// EnvPrefix prefixes environment overrides: FLOWRUN_CRED_<REF>_<KEY>.
const EnvPrefix = "FLOWRUN_CRED_"

// StaticFetcher serves credentials from configuration, overridden per key by
// environment variables.
type StaticFetcher struct {
	static  map[string]map[string]string
	environ func() []string
}

// NewStaticFetcher creates a fetcher over the configured integrations.
func NewStaticFetcher(static map[string]map[string]string) *StaticFetcher {
	normalized := make(map[string]map[string]string, len(static))
	for ref, values := range static {
		m := make(map[string]string, len(values))
		for k, v := range values {
			m[strings.ToLower(k)] = v
		}
		normalized[strings.ToLower(ref)] = m
	}
	return &StaticFetcher{static: normalized, environ: os.Environ}
}

// FetchCredentials implements core.CredentialFetcher.
func (f *StaticFetcher) FetchCredentials(ctx context.Context, ref string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, core.ErrCredential(ref, "empty integration reference")
	}

	out := make(map[string]string)
	for k, v := range f.static[strings.ToLower(ref)] {
		out[k] = v
	}

	prefix := EnvPrefix + EnvKey(ref) + "_"
	for _, kv := range f.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, prefix))
		if key != "" {
			out[key] = value
		}
	}

	if len(out) == 0 {
		return nil, core.ErrCredential(ref, "no credentials configured")
	}
	return out, nil
}

// References lists the integrations configured statically.
func (f *StaticFetcher) References() []string {
	refs := make([]string, 0, len(f.static))
	for ref := range f.static {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// EnvKey upper-cases ref and replaces every character that is not a letter or
// digit with an underscore.
func EnvKey(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
