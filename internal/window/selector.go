package window

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bryanchriswhite/downscaler/internal/logger"
)

const processPrefix = "process:"

// Query selects a source window by title or by process name, optionally
// narrowed by window class.
type Query struct {
	Text  string `json:"text"`
	Class string `json:"class,omitempty"`
}

// ByProcess reports whether Text names a process. Anything containing ".exe"
// or prefixed with "process:" is a process name; everything else is a title.
func (q Query) ByProcess() bool {
	return strings.HasPrefix(q.Text, processPrefix) || strings.Contains(strings.ToLower(q.Text), ".exe")
}

func (q Query) processName() string {
	return strings.TrimPrefix(q.Text, processPrefix)
}

func (q Query) String() string {
	if q.Class != "" {
		return fmt.Sprintf("%q (class %q)", q.Text, q.Class)
	}
	return fmt.Sprintf("%q", q.Text)
}

// Find resolves q against the live window tree. Top-level windows are tried
// first; when none match, each top-level subtree is searched depth-first.
func Find(dir Directory, q Query) (Node, error) {
	if strings.TrimSpace(q.Text) == "" {
		return Node{}, fmt.Errorf("%w: empty query", ErrWindowNotFound)
	}

	top, err := dir.TopLevel()
	if err != nil {
		return Node{}, fmt.Errorf("failed to enumerate windows: %w", err)
	}

	log := logger.WithComponent("window-selector")
	log.Debug().
		Str("query", q.Text).
		Str("class", q.Class).
		Bool("by_process", q.ByProcess()).
		Int("candidates", len(top)).
		Msg("Searching for source window")

	for _, n := range top {
		if q.matches(n, true) {
			return n, nil
		}
	}

	for _, n := range top {
		if found, ok := q.searchChildren(dir, n, false, 0); ok {
			return found, nil
		}
	}

	return Node{}, fmt.Errorf("%w: %s", ErrWindowNotFound, q)
}

// matches checks the primary key (title or process) and, when withClass is
// set, the class filter.
func (q Query) matches(n Node, withClass bool) bool {
	var primary bool
	if q.ByProcess() {
		primary = sameProcess(n.Process, q.processName())
	} else {
		primary = n.Title == q.Text
	}
	if !primary {
		return false
	}
	if withClass && q.Class != "" {
		return strings.EqualFold(n.Class, q.Class)
	}
	return true
}

// searchChildren walks below n. A process search only descends through
// windows of that process. A title search remembers an ancestor with the
// title so a descendant carrying only the class still matches.
func (q Query) searchChildren(dir Directory, n Node, ancestorHasTitle bool, depth int) (Node, bool) {
	if depth > maxSearchDepth {
		return Node{}, false
	}
	if q.matches(n, true) {
		return n, true
	}
	if ancestorHasTitle && q.Class != "" && strings.EqualFold(n.Class, q.Class) {
		return n, true
	}
	if q.ByProcess() {
		if !q.matches(n, false) {
			return Node{}, false
		}
	} else if q.matches(n, false) {
		ancestorHasTitle = true
	}

	children, err := dir.Children(n.Handle)
	if err != nil {
		return Node{}, false
	}
	for _, c := range children {
		if found, ok := q.searchChildren(dir, c, ancestorHasTitle, depth+1); ok {
			return found, true
		}
	}
	return Node{}, false
}

const maxSearchDepth = 64

// sameProcess compares process names case-insensitively, ignoring any
// directory and treating a trailing ".exe" as optional.
func sameProcess(have, want string) bool {
	norm := func(s string) string {
		s = strings.ToLower(filepath.Base(strings.ReplaceAll(s, `\`, "/")))
		return strings.TrimSuffix(s, ".exe")
	}
	if have == "" || want == "" {
		return false
	}
	return norm(have) == norm(want)
}
