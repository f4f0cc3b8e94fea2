// Package command parses operator command lines and runs them against the
// engine.
package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mr1hm/go-threat-telemetry/internal/engine"
	"github.com/mr1hm/go-threat-telemetry/internal/filter"
	"github.com/mr1hm/go-threat-telemetry/internal/models"
)

// Target is the engine surface commands can reach.
type Target interface {
	Enable(ctx context.Context) error
	Disable()
	ScanNow() bool
	ToggleFilter(ctx context.Context, name string) (bool, error)
	TogglePrediction(ctx context.Context) bool
	RunForecast(ctx context.Context) (engine.ForecastOutcome, error)
	Train() bool
	Scram(ctx context.Context) error
	SetDefcon(level int) error
	SetUserLocation(ctx context.Context, lat, lon float64) (engine.LocationUpdate, error)
	SetViewport(lat, lon float64) error
	NearestThreat() engine.NearestThreat
	Status() engine.StatusReport
}

type Reply struct {
	Command string `json:"command"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type handler struct {
	usage string
	args  int
	run   func(ctx context.Context, t Target, args []string) (Reply, error)
}

type Router struct {
	target   Target
	handlers map[string]handler
}

func NewRouter(t Target) *Router {
	r := &Router{target: t}
	r.handlers = map[string]handler{
		"link":     {usage: "link on|off", args: 1, run: link},
		"scan":     {usage: "scan", run: scan},
		"filter":   {usage: filterUsage(), args: 1, run: toggleFilter},
		"predict":  {usage: "predict", run: predict},
		"forecast": {usage: "forecast", run: runForecast},
		"train":    {usage: "train", run: train},
		"scram":    {usage: "scram", run: scram},
		"defcon":   {usage: "defcon <1-5>", args: 1, run: defcon},
		"locate":   {usage: "locate <lat> <lon>", args: 2, run: locate},
		"view":     {usage: "view <lat> <lon>", args: 2, run: view},
		"nearest":  {usage: "nearest", run: nearest},
		"status":   {usage: "status", run: status},
		"help":     {usage: "help", run: r.help},
	}
	return r
}

func filterUsage() string {
	keys := filter.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return "filter <" + strings.Join(names, "|") + ">"
}

// Execute runs one command line. Words are whitespace separated and the
// command name is case-insensitive.
func (r *Router) Execute(ctx context.Context, line string) (Reply, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Reply{}, fmt.Errorf("%w: empty command", models.ErrUnknownCommand)
	}

	name := strings.ToLower(fields[0])
	h, ok := r.handlers[name]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", models.ErrUnknownCommand, fields[0])
	}

	args := fields[1:]
	if len(args) != h.args {
		return Reply{}, fmt.Errorf("%w: usage: %s", models.ErrUnknownCommand, h.usage)
	}

	reply, err := h.run(ctx, r.target, args)
	reply.Command = name
	return reply, err
}

func (r *Router) help(context.Context, Target, []string) (Reply, error) {
	usages := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		usages = append(usages, h.usage)
	}
	sort.Strings(usages)
	return Reply{Message: strings.Join(usages, "\n"), Data: usages}, nil
}

func link(ctx context.Context, t Target, args []string) (Reply, error) {
	switch strings.ToLower(args[0]) {
	case "on":
		if err := t.Enable(ctx); err != nil {
			return Reply{Message: "LINK ESTABLISHED (telemetry stream unavailable)", Data: t.Status()}, nil
		}
		return Reply{Message: "LINK ESTABLISHED", Data: t.Status()}, nil
	case "off":
		t.Disable()
		return Reply{Message: "LINK OFFLINE", Data: t.Status()}, nil
	default:
		return Reply{}, fmt.Errorf("%w: usage: link on|off", models.ErrUnknownCommand)
	}
}

func scan(_ context.Context, t Target, _ []string) (Reply, error) {
	if !t.ScanNow() {
		return Reply{Message: "link is offline"}, nil
	}
	return Reply{Message: "scanning"}, nil
}

func toggleFilter(ctx context.Context, t Target, args []string) (Reply, error) {
	on, err := t.ToggleFilter(ctx, args[0])
	if err != nil {
		return Reply{}, err
	}
	return Reply{Message: fmt.Sprintf("%s %s", strings.ToUpper(args[0]), onOff(on)), Data: on}, nil
}

func predict(ctx context.Context, t Target, _ []string) (Reply, error) {
	on := t.TogglePrediction(ctx)
	return Reply{Message: "prediction " + onOff(on), Data: on}, nil
}

func runForecast(ctx context.Context, t Target, _ []string) (Reply, error) {
	out, err := t.RunForecast(ctx)
	if err != nil {
		return Reply{}, err
	}
	if out.Result.Skipped {
		return Reply{Message: "prediction is off", Data: out}, nil
	}
	return Reply{
		Message: fmt.Sprintf("risk %.2f (%s) at %.3f, %.3f [%s]",
			out.Result.Risk, out.Result.AlertLevel, out.Target.Lat, out.Target.Lon, out.Target.Source),
		Data: out,
	}, nil
}

func train(_ context.Context, t Target, _ []string) (Reply, error) {
	if !t.Train() {
		return Reply{Message: "training already in progress"}, nil
	}
	return Reply{Message: "training started"}, nil
}

func scram(ctx context.Context, t Target, _ []string) (Reply, error) {
	if err := t.Scram(ctx); err != nil {
		return Reply{}, err
	}
	return Reply{Message: "SCRAM acknowledged"}, nil
}

func defcon(_ context.Context, t Target, args []string) (Reply, error) {
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %q", models.ErrInvalidDefcon, args[0])
	}
	if err := t.SetDefcon(level); err != nil {
		return Reply{}, err
	}
	return Reply{Message: fmt.Sprintf("DEFCON %d", level), Data: level}, nil
}

func locate(ctx context.Context, t Target, args []string) (Reply, error) {
	lat, lon, err := parseCoords(args)
	if err != nil {
		return Reply{}, err
	}
	update, err := t.SetUserLocation(ctx, lat, lon)
	if err != nil && update.Marker.Kind == "" {
		return Reply{}, err
	}
	msg := describeNearest(update.Nearest)
	if err != nil {
		// the marker is placed even when the follow-up forecast fails
		msg += fmt.Sprintf(" (forecast failed: %v)", err)
	}
	return Reply{Message: msg, Data: update}, nil
}

func view(_ context.Context, t Target, args []string) (Reply, error) {
	lat, lon, err := parseCoords(args)
	if err != nil {
		return Reply{}, err
	}
	if err := t.SetViewport(lat, lon); err != nil {
		return Reply{}, err
	}
	return Reply{Message: fmt.Sprintf("viewport %.3f, %.3f", lat, lon)}, nil
}

func nearest(_ context.Context, t Target, _ []string) (Reply, error) {
	n := t.NearestThreat()
	return Reply{Message: describeNearest(n), Data: n}, nil
}

func status(_ context.Context, t Target, _ []string) (Reply, error) {
	s := t.Status()
	return Reply{
		Message: fmt.Sprintf("link %s, reactor %s, DEFCON %d, %d events", s.Link, s.Reactor, s.Defcon, s.CachedEvents),
		Data:    s,
	}, nil
}

func describeNearest(n engine.NearestThreat) string {
	if !n.Found {
		return "nearest threat: none"
	}
	return fmt.Sprintf("nearest threat: %s (%s) %.0f km %s", n.Label, n.Place, n.DistanceKm, n.Sector)
}

func parseCoords(args []string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: latitude %q", models.ErrInvalidLocation, args[0])
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: longitude %q", models.ErrInvalidLocation, args[1])
	}
	return lat, lon, nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
