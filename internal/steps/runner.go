package steps

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cdpskill/cdpskill/internal/actions"
	"github.com/cdpskill/cdpskill/internal/aria"
	"github.com/cdpskill/cdpskill/internal/cdperrs"
)

// Step is one parsed request step: the action name plus its raw parameter
// object, kept around for dispatch and the registry validator.
type Step struct {
	Action string
	Raw    json.RawMessage
}

// ValidationFailure is one invalid step, by index, with every error found.
type ValidationFailure struct {
	Index  int      `json:"index"`
	Errors []string `json:"errors"`
}

// Validate runs the registry's validator over every step without touching
// Chrome (spec.md §4.6). Any non-empty result must abort the run.
func Validate(steps []Step) []ValidationFailure {
	var failures []ValidationFailure
	for i, s := range steps {
		entry, ok := Registry[s.Action]
		if !ok {
			failures = append(failures, ValidationFailure{Index: i, Errors: []string{"unknown action " + s.Action}})
			continue
		}
		if errs := entry.Validate(s.Raw); len(errs) > 0 {
			failures = append(failures, ValidationFailure{Index: i, Errors: errs})
		}
	}
	return failures
}

// StepError is the {kind, message} shape attached to a failed step result.
type StepError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is one step's outcome, matching the response shape spec.md §6
// defines: {action, status, result|error, context, viewportSnapshot?, changes?}.
type Result struct {
	Action           string      `json:"action"`
	Status           string      `json:"status"`
	Result           interface{} `json:"result,omitempty"`
	Error            *StepError  `json:"error,omitempty"`
	Context          interface{} `json:"context,omitempty"`
	ViewportSnapshot string      `json:"viewportSnapshot,omitempty"`
	Changes          *Diff       `json:"changes,omitempty"`
	Stale            bool        `json:"stale,omitempty"`
}

// Response is the full invocation result.
type Response struct {
	Tab       string              `json:"tab"`
	Steps     []Result            `json:"steps"`
	Errors    []ValidationFailure `json:"errors,omitempty"`
	Artifacts []string            `json:"artifacts,omitempty"`
}

// Hooks carries the optional readyWhen/settledWhen/observe/maxItems
// parameters a visual step may set, pulled out of its raw parameters.
type Hooks struct {
	ReadyWhen   string
	SettledWhen string
	Observe     string
	MaxItems    int
	Timeout     time.Duration
}

func decodeHooks(raw json.RawMessage) Hooks {
	m, _ := decodeFields(raw)
	h := Hooks{
		ReadyWhen:   fieldString(m, "readyWhen"),
		SettledWhen: fieldString(m, "settledWhen"),
		Observe:     fieldString(m, "observe"),
		MaxItems:    fieldInt(m, "maxItems"),
		Timeout:     fieldDuration(m, "timeout", 5*time.Second),
	}
	if h.MaxItems == 0 {
		h.MaxItems = 50
	}
	return h
}

// Run validates every step, then executes steps in order, applying the
// around-step protocol to visual steps and stopping at the first failure
// (spec.md §4.6, §7).
func Run(ctx context.Context, d Deps, tab string, steps []Step) Response {
	resp := Response{Tab: tab}

	if failures := Validate(steps); len(failures) > 0 {
		resp.Errors = failures
		return resp
	}

	for _, s := range steps {
		entry := Registry[s.Action]
		res := runOne(ctx, d, entry, s)
		resp.Steps = append(resp.Steps, res)
		if res.Status == "error" {
			break
		}
	}
	return resp
}

func runOne(ctx context.Context, d Deps, entry Entry, s Step) Result {
	res := Result{Action: s.Action, Status: "ok"}
	hooks := decodeHooks(s.Raw)

	wantVisualDiff := entry.IsVisual && hooks.Observe == "visualDiff"

	var before *aria.Snapshot
	var beforePNG []byte
	if entry.IsVisual && d.Snap != nil {
		before, _ = d.Snap.Build(aria.BuildOptions{Detail: aria.DetailInteractive})
		if wantVisualDiff {
			beforePNG, _ = actions.CaptureScreenshotPNG(ctx, d.Ctl)
		}
		if hooks.ReadyWhen != "" {
			if err := waitPoll(ctx, d, hooks.ReadyWhen, hooks.Timeout); err != nil {
				return failResult(s.Action, err)
			}
		}
	}

	value, err := dispatch(ctx, d, s.Action, s.Raw)
	if err != nil {
		if isStale(err) && s.Action != "assert" {
			res.Status = "ok"
			res.Stale = true
			res.Error = &StepError{Kind: string(cdperrs.KindStale), Message: err.Error()}
			return res
		}
		return failResult(s.Action, err)
	}
	res.Result = value

	if entry.IsVisual {
		if hooks.SettledWhen != "" {
			if err := waitPoll(ctx, d, hooks.SettledWhen, hooks.Timeout); err != nil {
				return failResult(s.Action, err)
			}
		}
		if d.Snap != nil {
			after, err := d.Snap.Build(aria.BuildOptions{Detail: aria.DetailInteractive})
			if err == nil {
				diff := computeDiff(before, after, hooks.MaxItems)
				if wantVisualDiff && beforePNG != nil {
					if afterPNG, err := actions.CaptureScreenshotPNG(ctx, d.Ctl); err == nil {
						if ratio, err := actions.VisualDiffRatio(beforePNG, afterPNG); err == nil {
							diff.VisualDiffRatio = &ratio
						}
					}
				}
				res.Changes = &diff
				res.Context = map[string]interface{}{"url": after.URL}
				res.ViewportSnapshot = after.Text
			}
		}
		if hooks.Observe != "" && !wantVisualDiff {
			obs, err := evaluateObserve(ctx, d, hooks.Observe)
			if err == nil {
				if res.Context == nil {
					res.Context = map[string]interface{}{}
				}
				ctxMap, _ := res.Context.(map[string]interface{})
				ctxMap["observe"] = obs
				res.Context = ctxMap
			}
		}
	}

	return res
}

func failResult(action string, err error) Result {
	kind := string(cdperrs.KindProtocol)
	var ce *cdperrs.Error
	if errors.As(err, &ce) {
		kind = string(ce.Kind)
	}
	return Result{Action: action, Status: "error", Error: &StepError{Kind: kind, Message: err.Error()}}
}

func isStale(err error) bool {
	return cdperrs.Is(err, cdperrs.KindStale)
}

func waitPoll(ctx context.Context, d Deps, expr string, timeout time.Duration) error {
	return actions.Wait(ctx, d.Ctl, expr, timeout)
}

func evaluateObserve(ctx context.Context, d Deps, expr string) (json.RawMessage, error) {
	return actions.Get(ctx, d.Ctl, expr)
}
