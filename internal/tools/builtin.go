package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// PriceQuote is the fixed quote returned by get_prices.
const PriceQuote = "home team is 1.4, the draw is 2.4 and the away team is 4.8"

type weatherArgs struct {
	City string `json:"city" jsonschema:"The city to get the weather for."`
}

// Weather is the get_weather demo tool. Only nyc and sf are known.
func Weather() Spec {
	return Spec{
		Name:        "get_weather",
		Description: "Use this to get weather information.",
		Schema:      WithEnum(Infer[weatherArgs](), "city", "nyc", "sf"),
		Invoke: func(_ context.Context, raw json.RawMessage) (any, error) {
			args, err := DecodeArgs[weatherArgs](raw)
			if err != nil {
				return nil, err
			}
			switch args.City {
			case "nyc":
				return "It might be cloudy in nyc", nil
			case "sf":
				return "It's always sunny in sf", nil
			default:
				return nil, fmt.Errorf("unknown city %q", args.City)
			}
		},
	}
}

type pricesArgs struct {
	Query string `json:"query" jsonschema:"The event to price."`
}

// Prices is the get_prices tool. It answers every query with PriceQuote.
func Prices() Spec {
	return Spec{
		Name:        "get_prices",
		Description: "Use this to get the prices of a sporting event.",
		Schema:      Infer[pricesArgs](),
		Invoke: func(_ context.Context, raw json.RawMessage) (any, error) {
			if _, err := DecodeArgs[pricesArgs](raw); err != nil {
				return nil, err
			}
			return PriceQuote, nil
		},
	}
}
