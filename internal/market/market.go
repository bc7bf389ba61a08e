// Package market exposes read-only exchange data as agent tools.
package market

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/betfair"
	"github.com/dotcommander/betbox/internal/tools"
)

// Session is an authenticated exchange session. *betfair.Client satisfies it.
type Session interface {
	ListEventTypes(ctx context.Context, filter betfair.MarketFilter) ([]betfair.EventTypeResult, error)
	ListCompetitions(ctx context.Context, filter betfair.MarketFilter) ([]betfair.CompetitionResult, error)
}

// Adapter turns exchange calls into tool specs.
type Adapter struct {
	session Session
	logger  *zap.Logger
}

// New wraps session. A nil logger discards.
func New(session Session, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{session: session, logger: logger}
}

// EventType is the tool-facing form of a sport.
type EventType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tools returns get_event_types and get_competitions.
func (a *Adapter) Tools() []tools.Spec {
	return []tools.Spec{
		{
			Name: "get_event_types",
			Description: "Use this to retrieve the list of all event types and their IDs. " +
				"Event Types are a synonym for a Sport. The output will contain lines in the form 'ID: 100, Name: soccer', etc.",
			Schema: tools.Infer[struct{}](),
			Invoke: a.invokeEventTypes,
		},
		{
			Name: "get_competitions",
			Description: "Use this to retrieve all competitions for a list of event type ids. " +
				"If you need a list of competitions for a specific sport then just pass the event type id " +
				"that relates to the sport you're looking for",
			Schema: tools.Infer[competitionsArgs](),
			Invoke: a.invokeCompetitions,
		},
	}
}

// EventTypes lists every sport with open markets.
func (a *Adapter) EventTypes(ctx context.Context) ([]EventType, error) {
	a.logger.Info("getting event types")
	results, err := a.session.ListEventTypes(ctx, betfair.MarketFilter{})
	if err != nil {
		return nil, fmt.Errorf("list event types: %w", err)
	}
	out := make([]EventType, 0, len(results))
	for _, r := range results {
		a.logger.Debug(r.String())
		out = append(out, EventType{ID: r.EventType.ID, Name: r.EventType.Name})
	}
	return out, nil
}

// Competitions lists the competitions for the given sports.
func (a *Adapter) Competitions(ctx context.Context, eventTypeIDs []string) ([]betfair.Competition, error) {
	a.logger.Info("getting competitions", zap.Strings("event_type_ids", eventTypeIDs))
	results, err := a.session.ListCompetitions(ctx, betfair.MarketFilter{EventTypeIDs: eventTypeIDs})
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	out := make([]betfair.Competition, 0, len(results))
	for _, r := range results {
		a.logger.Debug(r.String())
		out = append(out, r.Competition)
	}
	return out, nil
}

func (a *Adapter) invokeEventTypes(ctx context.Context, _ json.RawMessage) (any, error) {
	return a.EventTypes(ctx)
}

type competitionsArgs struct {
	EventTypeIDs []string `json:"event_type_ids" jsonschema:"a list of event type ids for which we want to get a list of competitions"`
}

func (a *Adapter) invokeCompetitions(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := tools.DecodeArgs[competitionsArgs](raw)
	if err != nil {
		return nil, err
	}
	return a.Competitions(ctx, args.EventTypeIDs)
}
