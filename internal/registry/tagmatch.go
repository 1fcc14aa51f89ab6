package registry

import (
	"regexp"
	"strings"

	"github.com/papermill-ai/papermill/pkg/models"
)

// While note content streams token by token, the note's raw marker (a
// bracketed tag with attributes) is visible in the text before the backend
// has assigned the action a stable ID. FindByRawTag bridges that gap by
// structurally comparing the candidate marker against the markers recorded
// on registered note actions.

var attrPattern = regexp.MustCompile(`([\w-]+)\s*=\s*"([^"]*)"`)

// parseRawTag splits a raw marker like `<note title="X" page="3">` or
// `[note title="X"]` into its tag name and attribute map. Attribute order in
// the source text carries no meaning.
func parseRawTag(raw string) (name string, attrs map[string]string, ok bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "<>[]/ \t")
	if s == "" {
		return "", nil, false
	}

	end := strings.IndexAny(s, " \t")
	if end == -1 {
		return s, map[string]string{}, true
	}
	name = s[:end]

	attrs = make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s[end:], -1) {
		attrs[m[1]] = m[2]
	}
	return name, attrs, true
}

// tagsMatch reports whether two raw markers are structurally equal: same tag
// name and the same attribute set as unordered key/value pairs. Extra or
// missing attributes break the match.
func tagsMatch(a, b string) bool {
	aName, aAttrs, ok := parseRawTag(a)
	if !ok {
		return false
	}
	bName, bAttrs, ok := parseRawTag(b)
	if !ok {
		return false
	}
	if aName != bName || len(aAttrs) != len(bAttrs) {
		return false
	}
	for k, v := range aAttrs {
		if bAttrs[k] != v {
			return false
		}
	}
	return true
}

// FindByRawTag returns the first note action within the run whose recorded
// raw marker structurally matches the candidate marker. Only zotero_note
// actions carry raw markers.
func (r *Registry) FindByRawTag(runID, rawTag string) (models.AgentAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.actions))
	for _, id := range r.order {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, ok := r.actions[id]
		if !ok || a.RunID != runID || a.Type != models.ActionZoteroNote {
			continue
		}
		if a.Proposed.Note == nil || a.Proposed.Note.RawTag == "" {
			continue
		}
		if tagsMatch(a.Proposed.Note.RawTag, rawTag) {
			return a.Clone(), true
		}
	}
	return models.AgentAction{}, false
}
