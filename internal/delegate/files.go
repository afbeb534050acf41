package delegate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandContextFiles turns a comma-separated list of paths and glob patterns
// into concrete file paths, relative to workDir for relative entries.
// Uses doublestar for recursive ** support. Patterns that match nothing are
// kept verbatim so the execution engine can report them.
func ExpandContextFiles(spec, workDir string) ([]string, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}

	var files []string
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		pattern := part
		if !filepath.IsAbs(pattern) && workDir != "" {
			pattern = filepath.Join(workDir, pattern)
		}

		if !strings.ContainsAny(part, "*?[{") {
			files = append(files, pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", part, err)
		}
		if len(matches) == 0 {
			files = append(files, pattern)
			continue
		}
		files = append(files, matches...)
	}

	return files, nil
}
