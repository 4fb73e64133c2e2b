package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// validatePath checks a caller-supplied relative path and resolves it
// against the allowed root. Absolute paths, traversal segments and
// symlinked components are all rejected; the final open also refuses
// to follow a symlink, so a link racing in after this check still
// cannot redirect the write.
func validatePath(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute path %q not allowed", path)
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the allowed root", path)
	}
	for _, seg := range strings.Split(clean, string(filepath.Separator)) {
		if seg == ".." {
			return "", fmt.Errorf("path %q contains a traversal segment", path)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	resolved := filepath.Join(absRoot, clean)
	if resolved != absRoot && !strings.HasPrefix(resolved, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the allowed root", path)
	}

	if err := rejectSymlinkComponents(absRoot, clean); err != nil {
		return "", err
	}
	return resolved, nil
}

// rejectSymlinkComponents walks each existing component of the path
// under root and fails if any is a symlink. Missing components are
// fine; they will be created.
func rejectSymlinkComponents(absRoot, rel string) error {
	current := absRoot
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, seg)
		info, err := os.Lstat(current)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stat %q: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path component %q is a symlink", seg)
		}
	}
	return nil
}
