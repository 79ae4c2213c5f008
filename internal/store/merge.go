package store

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

const (
	markerOurs   = "<<<<<<<"
	markerBase   = "|||||||"
	markerSplit  = "======="
	markerTheirs = ">>>>>>>"
)

// ThreeWayMerge computes the merged string for (base, store, target) using
// the standard three-way algorithm via `git merge-file`, the same fallback
// the gateway uses elsewhere when go-git's porcelain does not cover a
// git-CLI-only operation.
func (g *Gateway) ThreeWayMerge(base, storeContent, targetContent string) (MergeResult, error) {
	dir, err := os.MkdirTemp("", "confsync-merge-*")
	if err != nil {
		return MergeResult{}, err
	}
	defer os.RemoveAll(dir)

	oursPath := filepath.Join(dir, "ours")
	basePath := filepath.Join(dir, "base")
	theirsPath := filepath.Join(dir, "theirs")
	if err := os.WriteFile(oursPath, []byte(storeContent), 0o600); err != nil {
		return MergeResult{}, err
	}
	if err := os.WriteFile(basePath, []byte(base), 0o600); err != nil {
		return MergeResult{}, err
	}
	if err := os.WriteFile(theirsPath, []byte(targetContent), 0o600); err != nil {
		return MergeResult{}, err
	}

	merged, mergeErr := g.runGitIn(dir, "merge-file", "-p", oursPath, basePath, theirsPath)
	hasConflicts := mergeErr != nil || containsConflictMarkers(merged)
	return MergeResult{Content: merged, HasConflicts: hasConflicts}, nil
}

func (g *Gateway) runGitIn(dir string, args ...string) (string, error) {
	orig := g.root
	g.root = dir
	out, err := g.runGit(args...)
	g.root = orig
	return out, err
}

// ContainsConflictMarkers reports whether content embeds a full
// <<<<<<</=======/>>>>>>> conflict block, the telltale of a "successful"
// VCS merge that actually left marker text behind (§4.H.3).
func ContainsConflictMarkers(content string) bool {
	return containsConflictMarkers(content)
}

func containsConflictMarkers(content string) bool {
	scanner := bufio.NewScanner(strings.NewReader(content))
	sawOurs, sawSplit, sawTheirs := false, false, false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, markerOurs):
			sawOurs = true
		case strings.HasPrefix(line, markerSplit):
			sawSplit = true
		case strings.HasPrefix(line, markerTheirs):
			sawTheirs = true
		}
	}
	return sawOurs && sawSplit && sawTheirs
}

// ParseConflictMarkers extracts the "ours" and "theirs" sides from a string
// that may contain <<<<<<<, |||||||, =======, >>>>>>> markers. Lines outside
// conflict blocks belong to both sides.
func ParseConflictMarkers(content string) (ours, theirs string) {
	var oursLines, theirsLines []string
	scanner := bufio.NewScanner(strings.NewReader(content))

	inOurs, inBase, inTheirs := false, false, false
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, markerOurs):
			inOurs, inBase, inTheirs = true, false, false
			continue
		case strings.HasPrefix(line, markerBase):
			inOurs, inBase, inTheirs = false, true, false
			continue
		case strings.HasPrefix(line, markerSplit):
			inOurs, inBase, inTheirs = false, false, true
			continue
		case strings.HasPrefix(line, markerTheirs):
			inOurs, inBase, inTheirs = false, false, false
			continue
		}
		switch {
		case inOurs:
			oursLines = append(oursLines, line)
		case inBase:
			// base-only lines belong to neither side explicitly.
		case inTheirs:
			theirsLines = append(theirsLines, line)
		default:
			oursLines = append(oursLines, line)
			theirsLines = append(theirsLines, line)
		}
	}
	return joinLines(oursLines), joinLines(theirsLines)
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
