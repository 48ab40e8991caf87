// Package naming allocates MCP tool names for API operations.
//
// Allocation is a pure function of the operation, the Options value and the
// set of names already handed out. Callers that traverse modules and
// operations in a fixed order therefore get identical names on every run.
package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kolah/mcpforge/internal/diag"
	"github.com/kolah/mcpforge/internal/model"
)

// DefaultMaxLength is the tool name length cap when Options leaves it unset.
const DefaultMaxLength = 64

const hashLength = 8

var validToolName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// verbs maps a leading HTTP method in a synthesized name to the action it
// performs. GET is handled separately.
var verbs = map[string]string{
	"post":   "create",
	"put":    "replace",
	"patch":  "update",
	"delete": "delete",
}

// Options is the naming configuration threaded through allocation.
type Options struct {
	// Abbreviations maps a long substring to its replacement.
	Abbreviations map[string]string
	// Overrides maps an operation id to the exact tool name to use.
	Overrides map[string]string
	// MaxLength caps the tool name length; zero means DefaultMaxLength.
	MaxLength int
}

// Provenance records which rules shaped a tool name.
type Provenance struct {
	Override      bool `json:"override,omitempty"`
	Abbreviated   bool `json:"abbreviated,omitempty"`
	Truncated     bool `json:"truncated,omitempty"`
	Disambiguator int  `json:"disambiguator,omitempty"`
}

// Tool is the allocated name of one operation inside one module.
type Tool struct {
	Name        string     `json:"name"`
	OperationID string     `json:"operation_id"`
	Module      string     `json:"module"`
	Provenance  Provenance `json:"provenance"`
}

// Used maps every allocated name to the operation id that owns it.
type Used map[string]string

// Group is one module's operations in traversal order.
type Group struct {
	Module     string
	Operations []model.Operation
}

type abbreviation struct {
	long, short string
}

// Allocator derives tool names. It holds no state between calls.
type Allocator struct {
	maxLength     int
	overrides     map[string]string
	abbreviations []abbreviation
}

// NewAllocator prepares an allocator. Abbreviations are ordered longest
// first, ties broken lexically, so replacement never depends on map order.
func NewAllocator(opts Options) *Allocator {
	a := &Allocator{
		maxLength: opts.MaxLength,
		overrides: opts.Overrides,
	}
	if a.maxLength <= 0 {
		a.maxLength = DefaultMaxLength
	}
	for long, short := range opts.Abbreviations {
		long = strings.ToLower(long)
		if long == "" {
			continue
		}
		a.abbreviations = append(a.abbreviations, abbreviation{long: long, short: strings.ToLower(short)})
	}
	sort.Slice(a.abbreviations, func(i, j int) bool {
		li, lj := a.abbreviations[i].long, a.abbreviations[j].long
		if len(li) != len(lj) {
			return len(li) > len(lj)
		}
		return li < lj
	})
	return a
}

// MaxLength returns the effective length cap.
func (a *Allocator) MaxLength() int {
	return a.maxLength
}

// Candidate computes the name op would get if nothing else were allocated.
func (a *Allocator) Candidate(op model.Operation) (string, Provenance) {
	var prov Provenance
	if name, ok := a.override(op.ID); ok {
		prov.Override = true
		return name, prov
	}

	id := op.ID
	synthesized := op.IDSynthesized
	if id == "" {
		id = model.SynthesizeOperationID(op.Method, op.Path)
		synthesized = true
	}

	name, abbreviated := a.derive(id, synthesized)
	if name == "" && !synthesized {
		name, abbreviated = a.derive(model.SynthesizeOperationID(op.Method, op.Path), true)
	}
	prov.Abbreviated = abbreviated
	if name == "" {
		name = "tool"
	}

	if len(name) > a.maxLength {
		name = truncate(name, a.maxLength)
		prov.Truncated = true
	}
	return name, prov
}

// Allocate assigns a unique name to op within module and records it in used.
func (a *Allocator) Allocate(module string, op model.Operation, used Used) (Tool, error) {
	base, prov := a.Candidate(op)

	var owners []string
	taken := func(s string) bool {
		owner, ok := used[s]
		if ok {
			owners = append(owners, owner)
		}
		return ok
	}
	name, n, ok := Disambiguate(base, a.maxLength, taken)
	if !ok {
		return Tool{}, &diag.NameAllocationError{
			Name:       base,
			Operations: conflicting(op.ID, owners),
			Reason:     fmt.Sprintf("no unique name within %d characters", a.maxLength),
		}
	}
	prov.Disambiguator = n

	used[name] = op.ID
	return Tool{
		Name:        name,
		OperationID: op.ID,
		Module:      module,
		Provenance:  prov,
	}, nil
}

// AllocateAll names every operation, traversing groups and their operations
// in the order given. Overrides that cannot apply are returned as warnings.
func (a *Allocator) AllocateAll(groups []Group) ([]Tool, diag.Warnings, error) {
	warnings := a.checkOverrides(groups)

	used := make(Used)
	var tools []Tool
	for _, g := range groups {
		for _, op := range g.Operations {
			tool, err := a.Allocate(g.Module, op, used)
			if err != nil {
				return nil, warnings, err
			}
			tools = append(tools, tool)
		}
	}
	return tools, warnings, nil
}

// derive shapes id into a tool name limited to [a-z0-9_]. Letters with
// diacritics lose their marks; any other rune outside the set separates
// words. The result is empty when nothing usable is left.
func (a *Allocator) derive(id string, synthesized bool) (string, bool) {
	name := SnakeCase(id)
	if synthesized {
		name = mapVerb(name)
	}
	abbreviated := a.abbreviate(name)
	return foldASCII(abbreviated), abbreviated != name
}

func (a *Allocator) override(opID string) (string, bool) {
	name, ok := a.overrides[opID]
	if !ok || len(name) > a.maxLength || !validToolName.MatchString(name) {
		return "", false
	}
	return name, true
}

func (a *Allocator) checkOverrides(groups []Group) diag.Warnings {
	known := make(map[string]bool)
	for _, g := range groups {
		for _, op := range g.Operations {
			known[op.ID] = true
		}
	}

	ids := make([]string, 0, len(a.overrides))
	for id := range a.overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var warnings diag.Warnings
	for _, id := range ids {
		name := a.overrides[id]
		key := "tools.overrides." + id
		switch {
		case !known[id]:
			warnings.Add(&diag.ConfigurationError{Key: key, Reason: "no operation with this id"})
		case len(name) > a.maxLength:
			warnings.Add(&diag.ConfigurationError{Key: key, Reason: fmt.Sprintf("override %q exceeds %d characters and was ignored", name, a.maxLength)})
		case !validToolName.MatchString(name):
			warnings.Add(&diag.ConfigurationError{Key: key, Reason: fmt.Sprintf("override %q is not a valid tool name and was ignored", name)})
		}
	}
	return warnings
}

func (a *Allocator) abbreviate(name string) string {
	if len(a.abbreviations) == 0 {
		return name
	}
	for _, ab := range a.abbreviations {
		name = strings.ReplaceAll(name, ab.long, ab.short)
	}
	return cleanUnderscores(name)
}

// mapVerb turns a leading HTTP method into the action it performs: a GET
// without "_by_" lists a collection, one with it fetches a single resource.
func mapVerb(name string) string {
	verb, rest, ok := strings.Cut(name, "_")
	if !ok || rest == "" {
		return name
	}
	if verb == "get" {
		if strings.Contains(name, "_by_") {
			return name
		}
		return "list_" + rest
	}
	if mapped, ok := verbs[verb]; ok {
		return mapped + "_" + rest
	}
	return name
}

// truncate keeps a prefix of name and appends a short hash of the full
// name so that distinct long names stay distinct after cutting.
func truncate(name string, maxLength int) string {
	sum := sha256.Sum256([]byte(name))
	hash := hex.EncodeToString(sum[:])[:hashLength]
	keep := maxLength - hashLength - 1
	if keep <= 0 {
		return hash[:min(maxLength, hashLength)]
	}
	prefix := strings.TrimRight(name[:keep], "_")
	return prefix + "_" + hash
}

func cleanUnderscores(s string) string {
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// conflicting lists the operation that failed to get a name followed by
// the sorted, distinct owners of every name it tried.
func conflicting(opID string, owners []string) []string {
	seen := map[string]bool{opID: true}
	var rest []string
	for _, owner := range owners {
		if !seen[owner] {
			seen[owner] = true
			rest = append(rest, owner)
		}
	}
	sort.Strings(rest)
	return append([]string{opID}, rest...)
}
