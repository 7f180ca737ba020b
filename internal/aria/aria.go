// Package aria implements the ARIA Snapshot & Ref System: in-page tree
// walking and ref assignment driven from injected JavaScript, with
// Go-side serialization, page-hash computation, and search.
package aria

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
)

// Evaluator is the subset of pagectl.Controller the builder needs.
type Evaluator interface {
	Evaluate(expression string, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
}

// Detail selects how much of the tree a snapshot reports (spec.md §4.3).
type Detail string

const (
	DetailFull        Detail = "full"
	DetailInteractive Detail = "interactive"
	DetailSummary     Detail = "summary"
	DetailViewport    Detail = "viewportOnly"
)

// DefaultInlineLimit is the byte threshold above which a serialized tree is
// file-routed instead of inlined (spec.md §4.3).
const DefaultInlineLimit = 9000

const defaultMaxNameLength = 150

// BuildOptions parameterizes one tree walk.
type BuildOptions struct {
	Explicit      bool // true increments the snapshot generation counter
	RootSelector  string
	PierceShadow  bool
	Detail        Detail
	InlineLimit   int
	MaxNameLength int
	TabAlias      string
	TmpDir        string
}

// Node is one element's record, arena-addressed: Parent is an index into
// the same slice, never a pointer, to keep the tree acyclic and trivially
// serializable (spec.md §9, Design Notes).
type Node struct {
	Role       string                 `json:"role"`
	Name       string                 `json:"name"`
	Ref        string                 `json:"ref"`
	Depth      int                    `json:"depth"`
	Parent     int                    `json:"parent"`
	Visible    bool                   `json:"visible"`
	States     map[string]interface{} `json:"states"`
	Box        *Box                   `json:"box"`
	InViewport bool                   `json:"inViewport"`
}

// Box is a CSS pixel bounding rectangle.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type rawSnapshot struct {
	Nodes            []Node  `json:"nodes"`
	SnapshotID       int     `json:"snapshotId"`
	FrameID          string  `json:"frameId"`
	URL              string  `json:"url"`
	ScrollY          float64 `json:"scrollY"`
	ViewportElements int     `json:"viewportElements"`
}

// Snapshot is a serialized accessibility tree plus its bookkeeping.
type Snapshot struct {
	ID               string
	Nodes            []Node
	URL              string
	ScrollY          float64
	ViewportElements int
	Hash             string
	Text             string
	ArtifactPath     string
	Detail           Detail
	TotalElements    int
	InteractiveCount int
}

// Builder drives tree construction for one attached target.
type Builder struct {
	eval Evaluator
}

func New(eval Evaluator) *Builder { return &Builder{eval: eval} }

// Bootstrap returns the bootstrap script (spec.md §4.2, §4.3), suitable for
// pagectl.Controller.AddInitScript. Nothing in this module installs it as an
// init script; Build runs it inline instead (see ensureBootstrapped).
func Bootstrap() string { return bootstrapJS }

// ensureBootstrapped re-runs the bootstrap inline; Build calls it before
// every snapshot.
func (b *Builder) ensureBootstrapped() error {
	_, exc, err := b.eval.Evaluate(bootstrapJS, false)
	if err != nil {
		return err
	}
	if exc != nil {
		return cdperrs.New(cdperrs.KindProtocol, "aria: bootstrap exception: %s", exc.Text)
	}
	return nil
}

// Build walks the DOM and returns a fully serialized Snapshot.
func (b *Builder) Build(opts BuildOptions) (*Snapshot, error) {
	if err := b.ensureBootstrapped(); err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "aria: bootstrap")
	}
	if opts.MaxNameLength == 0 {
		opts.MaxNameLength = defaultMaxNameLength
	}
	if opts.InlineLimit == 0 {
		opts.InlineLimit = DefaultInlineLimit
	}

	optsJSON, err := json.Marshal(struct {
		Explicit      bool   `json:"explicit"`
		RootSelector  string `json:"rootSelector"`
		PierceShadow  bool   `json:"pierceShadow"`
		MaxNameLength int    `json:"maxNameLength"`
	}{opts.Explicit, opts.RootSelector, opts.PierceShadow, opts.MaxNameLength})
	if err != nil {
		return nil, err
	}

	obj, exc, err := b.eval.Evaluate(fmt.Sprintf(snapshotJS, string(optsJSON)), true)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "aria: evaluate snapshot script")
	}
	if exc != nil {
		return nil, cdperrs.New(cdperrs.KindProtocol, "aria: snapshot script exception: %s", exc.Text)
	}

	var quoted string
	if obj == nil || json.Unmarshal(obj.Value, &quoted) != nil {
		quoted = string(obj.Value)
	}

	var rs rawSnapshot
	if err := json.Unmarshal([]byte(quoted), &rs); err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "aria: decode snapshot payload")
	}

	snap := &Snapshot{
		ID:               fmt.Sprintf("%ss%d", rs.FrameID, rs.SnapshotID),
		Nodes:            rs.Nodes,
		URL:              rs.URL,
		ScrollY:          rs.ScrollY,
		ViewportElements: rs.ViewportElements,
		Detail:           opts.Detail,
	}
	for _, n := range rs.Nodes {
		snap.TotalElements++
		if n.Ref != "" {
			snap.InteractiveCount++
		}
	}
	snap.Hash = computeHash(snap)
	snap.Text = serialize(snap)

	if len(snap.Text) > opts.InlineLimit && opts.TabAlias != "" {
		path, werr := writeArtifact(opts.TmpDir, opts.TabAlias, "snapshot.yaml", snap.Text)
		if werr != nil {
			return nil, cdperrs.Wrap(cdperrs.KindProtocol, werr, "aria: write snapshot artifact")
		}
		snap.ArtifactPath = path
		snap.Text = ""
	}

	return snap, nil
}

func writeArtifact(tmpDir, tabAlias, suffix, content string) (string, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	path := filepath.Join(tmpDir, tabAlias+"."+suffix)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// computeHash computes the page hash (spec.md §3, "Page Hash"): URL, node
// count, scroll, total and interactive counts, and an XOR-fold of state
// bits and a name hash over ref-bearing nodes. Input values are not part
// of it. The result is stored in Snapshot.Hash; no step compares it with
// an earlier snapshot's hash.
func computeHash(s *Snapshot) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%.0f|%d|%d", s.URL, len(s.Nodes), s.ScrollY, s.TotalElements, s.InteractiveCount)

	var fold uint64
	refs := make([]string, 0, len(s.Nodes))
	byRef := make(map[string]Node, len(s.Nodes))
	for _, n := range s.Nodes {
		if n.Ref == "" {
			continue
		}
		refs = append(refs, n.Ref)
		byRef[n.Ref] = n
	}
	sort.Strings(refs)
	for _, ref := range refs {
		n := byRef[ref]
		var bits uint64
		if v, ok := n.States["checked"].(bool); ok && v {
			bits |= 1 << 0
		}
		if v, ok := n.States["disabled"].(bool); ok && v {
			bits |= 1 << 1
		}
		if v, ok := n.States["expanded"].(bool); ok && v {
			bits |= 1 << 2
		}
		if v, ok := n.States["selected"].(bool); ok && v {
			bits |= 1 << 3
		}
		nameBits := crc32ish(n.Name)
		fold ^= bits ^ nameBits
	}
	fmt.Fprintf(h, "|%d", fold)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func crc32ish(s string) uint64 {
	var acc uint64 = 2166136261
	for i := 0; i < len(s); i++ {
		acc ^= uint64(s[i])
		acc *= 16777619
	}
	return acc
}

// serialize produces the YAML-like indented text form: "role \"name\"
// [ref=...] [state]" per line, filtered by Detail.
func serialize(s *Snapshot) string {
	var sb strings.Builder
	for i, n := range s.Nodes {
		switch s.Detail {
		case DetailSummary:
			continue // summary never includes node lines
		case DetailInteractive:
			if n.Ref == "" {
				continue
			}
		case DetailViewport:
			if !n.InViewport {
				continue
			}
		}
		if n.Role == "" && n.Name == "" {
			continue
		}
		sb.WriteString(strings.Repeat("  ", n.Depth))
		sb.WriteString(n.Role)
		if n.Name != "" {
			fmt.Fprintf(&sb, " %q", n.Name)
		}
		if n.Ref != "" {
			fmt.Fprintf(&sb, " [ref=%s]", n.Ref)
		}
		if len(n.States) > 0 {
			sb.WriteString(" [")
			sb.WriteString(statesString(n.States))
			sb.WriteString("]")
		}
		sb.WriteString("\n")
		_ = i
	}
	if s.Detail == DetailSummary {
		fmt.Fprintf(&sb, "total=%d interactive=%d viewportElements=%d\n", s.TotalElements, s.InteractiveCount, s.ViewportElements)
	}
	return sb.String()
}

func statesString(states map[string]interface{}) string {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := states[k].(type) {
		case bool:
			if k == "expanded" {
				parts = append(parts, fmt.Sprintf("expanded=%v", v))
			} else if v {
				parts = append(parts, k)
			}
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

// ParsedLine is one line recovered by ParseSerialized, the inverse of
// serialize for ref-bearing lines (spec.md §8, round-trip property).
type ParsedLine struct {
	Ref    string
	Role   string
	Name   string
	States []string
}

var lineRe = regexp.MustCompile(`^(\s*)(\S+)(?:\s+"((?:[^"\\]|\\.)*)")?(?:\s+\[ref=([^\]]+)\])?(?:\s+\[([^\]]*)\])?\s*$`)

// ParseSerialized recovers {ref, role, name, states} for every ref-bearing
// line of a serialized snapshot.
func ParseSerialized(text string) []ParsedLine {
	var out []ParsedLine
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := lineRe.FindStringSubmatch(line)
		if m == nil || m[4] == "" {
			continue
		}
		var states []string
		if m[5] != "" {
			states = strings.Fields(m[5])
		}
		out = append(out, ParsedLine{Ref: m[4], Role: m[2], Name: m[3], States: states})
	}
	return out
}
