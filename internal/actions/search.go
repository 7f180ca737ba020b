package actions

import (
	"math"
	"regexp"
	"strings"

	"github.com/cdpskill/cdpskill/internal/aria"
)

// SearchQuery is the snapshotSearch parameter set (spec.md §4.3).
type SearchQuery struct {
	Text    string
	Pattern string
	Role    string
	NearX   *float64
	NearY   *float64
	Radius  float64
	Exact   bool
	Limit   int
	Context int
}

// SearchMatch is one snapshotSearch result.
type SearchMatch struct {
	Ref   string
	Role  string
	Name  string
	Depth int
}

// Search walks snap.Nodes applying SearchQuery's matching rules:
// word-boundary case-insensitive text matching by default, exact equality
// when Exact is set, regex when Pattern is set, role filtering, and
// distance filtering when NearX/NearY are set.
func Search(snap *aria.Snapshot, q SearchQuery) ([]SearchMatch, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	var re *regexp.Regexp
	if q.Pattern != "" {
		r, err := regexp.Compile(q.Pattern)
		if err != nil {
			return nil, err
		}
		re = r
	}

	var wordRe *regexp.Regexp
	if q.Text != "" && !q.Exact && re == nil {
		wordRe = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(q.Text) + `\b`)
	}

	var out []SearchMatch
	for _, n := range snap.Nodes {
		if q.Role != "" && n.Role != q.Role {
			continue
		}
		if re != nil && !re.MatchString(n.Name) {
			continue
		}
		if q.Text != "" {
			if q.Exact {
				if !strings.EqualFold(strings.TrimSpace(n.Name), strings.TrimSpace(q.Text)) {
					continue
				}
			} else if wordRe != nil && !wordRe.MatchString(n.Name) {
				continue
			}
		}
		if q.NearX != nil && q.NearY != nil && n.Box != nil {
			dx := n.Box.X + n.Box.W/2 - *q.NearX
			dy := n.Box.Y + n.Box.H/2 - *q.NearY
			dist := math.Sqrt(dx*dx + dy*dy)
			radius := q.Radius
			if radius == 0 {
				radius = 100
			}
			if dist > radius {
				continue
			}
		}
		out = append(out, SearchMatch{Ref: n.Ref, Role: n.Role, Name: n.Name, Depth: n.Depth})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
