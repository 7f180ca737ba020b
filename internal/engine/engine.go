// Package engine ties the transport, session, page controller, snapshot
// builder, resolver, and step runner into one Invoke(Request) Response
// entry point (spec.md §6).
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto/runtime"

	"github.com/cdpskill/cdpskill/internal/actions"
	"github.com/cdpskill/cdpskill/internal/aria"
	"github.com/cdpskill/cdpskill/internal/cdperrs"
	"github.com/cdpskill/cdpskill/internal/config"
	"github.com/cdpskill/cdpskill/internal/discover"
	"github.com/cdpskill/cdpskill/internal/pagectl"
	"github.com/cdpskill/cdpskill/internal/resolver"
	"github.com/cdpskill/cdpskill/internal/session"
	"github.com/cdpskill/cdpskill/internal/steps"
	"github.com/cdpskill/cdpskill/internal/wire"
)

// Request is one invocation's JSON document (spec.md §6).
type Request struct {
	Tab         string            `json:"tab,omitempty"`
	Steps       []json.RawMessage `json:"steps"`
	InlineLimit int               `json:"inlineLimit,omitempty"`
	Host        string            `json:"host,omitempty"`
	Port        int               `json:"port,omitempty"`
}

// Engine holds the configuration shared across invocations; a fresh
// transport/session/controller is attached per Invoke call.
type Engine struct {
	Config *config.Config
	Log    *slog.Logger
}

// New builds an Engine from cfg, defaulting to config.Default() when nil.
func New(cfg *config.Config, log *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Config: cfg, Log: log}
}

// boundEvaluator adapts pagectl.Controller's context-taking Evaluate to the
// context-free Evaluator interface aria and resolver depend on, binding
// one request's context for the controller's lifetime.
type boundEvaluator struct {
	ctx context.Context
	ctl *pagectl.Controller
}

func (b boundEvaluator) Evaluate(expression string, returnByValue bool) (*runtime.RemoteObject, *runtime.ExceptionDetails, error) {
	return b.ctl.Evaluate(b.ctx, expression, returnByValue)
}

// parseSteps extracts the {action, ...} shape of each raw step object.
func parseSteps(raw []json.RawMessage) ([]steps.Step, error) {
	out := make([]steps.Step, 0, len(raw))
	for i, r := range raw {
		var head struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if head.Action == "" {
			return nil, fmt.Errorf("step %d: missing action", i)
		}
		out = append(out, steps.Step{Action: head.Action, Raw: r})
	}
	return out, nil
}

// Invoke resolves the request's target tab, attaches a CDP session to it,
// and runs every step in order, returning the aggregated response.
func (e *Engine) Invoke(ctx context.Context, req Request) (steps.Response, error) {
	host := req.Host
	if host == "" {
		host = e.Config.Chrome.Host
	}
	port := req.Port
	if port == 0 {
		port = e.Config.Chrome.Port
	}
	inlineLimit := req.InlineLimit
	if inlineLimit == 0 {
		inlineLimit = e.Config.Step.InlineLimit
	}

	parsedSteps, err := parseSteps(req.Steps)
	if err != nil {
		return steps.Response{}, cdperrs.Wrap(cdperrs.KindValidation, err, "parsing steps")
	}

	client := discover.New(host, port)
	registry := discover.OpenRegistry(e.Config.Storage.TmpDir)

	targetID, tabAlias, err := resolveTarget(ctx, client, registry, req.Tab)
	if err != nil {
		return steps.Response{}, cdperrs.Wrap(cdperrs.KindTransport, err, "resolving tab")
	}
	info, err := client.ByID(ctx, targetID)
	if err != nil {
		return steps.Response{}, cdperrs.Wrap(cdperrs.KindTransport, err, "looking up target")
	}

	conn, err := wire.DialContext(ctx, info.WebSocketDebuggerURL)
	if err != nil {
		return steps.Response{}, cdperrs.Wrap(cdperrs.KindTransport, err, "dialing target")
	}
	defer conn.Close()

	sess := session.New(conn, session.WithTimeout(e.Config.Step.Timeout), session.WithLogger(e.Log))
	defer sess.Close()

	ctl := pagectl.New(ctx, sess, e.Log)
	defer ctl.Close()
	if err := ctl.Bootstrap(ctx); err != nil {
		return steps.Response{}, cdperrs.Wrap(cdperrs.KindProtocol, err, "bootstrapping page controller")
	}

	console := actions.NewConsoleWatcher(ctl)
	defer console.Close()

	eval := boundEvaluator{ctx: ctx, ctl: ctl}
	deps := steps.Deps{
		Ctl:         ctl,
		Snap:        aria.New(eval),
		Resolver:    resolver.New(eval),
		Tabs:        &actions.Tabs{Client: client, Registry: registry},
		Console:     console,
		TabAlias:    tabAlias,
		TmpDir:      e.Config.Storage.TmpDir,
		Host:        host,
		InlineLimit: inlineLimit,
	}

	return steps.Run(ctx, deps, tabAlias, parsedSteps), nil
}

func resolveTarget(ctx context.Context, client *discover.Client, registry *discover.Registry, tab string) (targetID, alias string, err error) {
	if tab != "" {
		id, err := registry.Resolve(tab)
		if err != nil {
			return "", "", err
		}
		return id, tab, nil
	}
	info, err := client.Page(ctx)
	if err != nil {
		return "", "", err
	}
	return info.ID, info.ID, nil
}
