// Package stealth performs one-time environment setup that helps browser
// automation avoid detection. It sits outside the fetch data path; backends
// only consume the patched binary it leaves in the working directory.
package stealth

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultDriverPaths lists where distro packages install chromedriver.
var DefaultDriverPaths = []string{
	"/usr/bin/chromedriver",
	"/usr/local/bin/chromedriver",
}

// Sites fingerprint automated browsers through cdc_-prefixed identifiers the
// driver injects into the page. Rewriting them in the binary defeats the
// check without touching driver behavior.
var cdcPattern = regexp.MustCompile(`cdc_[^' ]+`)

const asciiLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// PatchChromedriver copies the first driver binary found among srcPaths into
// destDir and rewrites every detection marker with a random same-length
// identifier. Re-running simply refreshes the copy, so it is safe to call on
// every startup. The patched binary's path is returned.
func PatchChromedriver(srcPaths []string, destDir string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(srcPaths) == 0 {
		srcPaths = DefaultDriverPaths
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("create driver directory: %w", err)
	}

	for _, src := range srcPaths {
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		patched := rewriteMarkers(data, logger)
		dest := filepath.Join(destDir, "chromedriver")
		if err := os.WriteFile(dest, patched, 0o755); err != nil {
			return "", fmt.Errorf("write patched driver: %w", err)
		}
		logger.Debug("patched chromedriver",
			zap.String("src", src),
			zap.String("dest", dest))
		return dest, nil
	}
	return "", fmt.Errorf("chromedriver not found at %s", strings.Join(srcPaths, " or "))
}

func rewriteMarkers(data []byte, logger *zap.Logger) []byte {
	seen := map[string]struct{}{}
	out := data
	for _, match := range cdcPattern.FindAll(data, -1) {
		variable := string(match)
		if _, ok := seen[variable]; ok {
			continue
		}
		seen[variable] = struct{}{}
		replacement := randomIdentifier(len(variable))
		logger.Debug("found variable in chromedriver",
			zap.String("variable", variable),
			zap.String("replacement", replacement))
		out = bytes.ReplaceAll(out, match, []byte(replacement))
	}
	return out
}

// randomIdentifier keeps the byte length identical so binary offsets survive.
func randomIdentifier(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = asciiLetters[rand.Intn(len(asciiLetters))]
	}
	return string(b)
}
