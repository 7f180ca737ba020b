// Package resolver implements the Lazy Element Resolver (spec.md §4.4):
// given a ref, it re-finds the live DOM element from stored metadata at
// the moment of use rather than trusting any cached handle.
package resolver

import (
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/cdperrs"
)

// Evaluator is the subset of pagectl.Controller the resolver needs.
type Evaluator interface {
	Evaluate(expression string, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error)
}

// Handle is a live, resolved DOM element: an allocated remote object id
// that MUST be released by the caller on every exit path (spec.md §5).
type Handle struct {
	ObjectID runtime.RemoteObjectID
}

// Resolver resolves refs against one frame context via an Evaluator.
type Resolver struct {
	eval Evaluator
}

func New(eval Evaluator) *Resolver { return &Resolver{eval: eval} }

type verifyResult struct {
	Found bool `json:"found"`
}

// Resolve implements the two-pass algorithm spec.md §5 calls the
// "double-fetch pattern": a cheap returnByValue existence check, then
// (only on success) a second evaluate that allocates the real object
// handle. This keeps a failed resolution from ever allocating a remote
// object id that would need releasing.
func (r *Resolver) Resolve(ref string) (*Handle, error) {
	refJSON, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}

	vobj, exc, err := r.eval.Evaluate(fmt.Sprintf(verifyJS, string(refJSON)), true)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "resolver: verify %s", ref)
	}
	if exc != nil {
		return nil, cdperrs.New(cdperrs.KindElement, "resolver: exception verifying %s: %s", ref, exc.Text)
	}
	var vr verifyResult
	if vobj != nil {
		var quoted string
		if json.Unmarshal(vobj.Value, &quoted) == nil {
			json.Unmarshal([]byte(quoted), &vr)
		} else {
			json.Unmarshal(vobj.Value, &vr)
		}
	}
	if !vr.Found {
		return nil, cdperrs.New(cdperrs.KindStale, "ref %s could not be resolved", ref)
	}

	obj, exc2, err := r.eval.Evaluate(fmt.Sprintf(findJS, string(refJSON)), false)
	if err != nil {
		return nil, cdperrs.Wrap(cdperrs.KindProtocol, err, "resolver: resolve %s", ref)
	}
	if exc2 != nil {
		return nil, cdperrs.New(cdperrs.KindElement, "resolver: exception resolving %s: %s", ref, exc2.Text)
	}
	if obj == nil || obj.ObjectID == "" {
		return nil, cdperrs.New(cdperrs.KindStale, "ref %s vanished between verify and resolve", ref)
	}
	return &Handle{ObjectID: obj.ObjectID}, nil
}
