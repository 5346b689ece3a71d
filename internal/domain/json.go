package domain

import (
	"encoding/json"
	"fmt"
)

// Leg is an interface, so trips carry their legs on the wire inside a
// tagged envelope.
const (
	legKindPublic     = "public"
	legKindIndividual = "individual"
)

type legEnvelope struct {
	Kind       string         `json:"kind"`
	Public     *PublicLeg     `json:"public,omitempty"`
	Individual *IndividualLeg `json:"individual,omitempty"`
}

type tripJSON struct {
	ID         string        `json:"id"`
	Network    NetworkID     `json:"network,omitempty"`
	From       Location      `json:"from"`
	To         Location      `json:"to"`
	Legs       []legEnvelope `json:"legs"`
	Capacity   []int         `json:"capacity,omitempty"`
	NumChanges int           `json:"numChanges"`
}

func (t *Trip) MarshalJSON() ([]byte, error) {
	out := tripJSON{
		ID:         t.ID,
		Network:    t.Network,
		From:       t.From,
		To:         t.To,
		Legs:       make([]legEnvelope, 0, len(t.Legs)),
		Capacity:   t.Capacity,
		NumChanges: t.NumChanges,
	}
	for _, leg := range t.Legs {
		switch l := leg.(type) {
		case *PublicLeg:
			out.Legs = append(out.Legs, legEnvelope{Kind: legKindPublic, Public: l})
		case *IndividualLeg:
			out.Legs = append(out.Legs, legEnvelope{Kind: legKindIndividual, Individual: l})
		default:
			return nil, fmt.Errorf("marshal trip %s: unknown leg type %T", t.ID, leg)
		}
	}
	return json.Marshal(out)
}

func (t *Trip) UnmarshalJSON(data []byte) error {
	var in tripJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	t.ID = in.ID
	t.Network = in.Network
	t.From = in.From
	t.To = in.To
	t.Capacity = in.Capacity
	t.NumChanges = in.NumChanges
	t.Legs = make([]Leg, 0, len(in.Legs))
	for i, env := range in.Legs {
		switch {
		case env.Kind == legKindPublic && env.Public != nil:
			t.Legs = append(t.Legs, env.Public)
		case env.Kind == legKindIndividual && env.Individual != nil:
			t.Legs = append(t.Legs, env.Individual)
		default:
			return fmt.Errorf("unmarshal trip %s: leg %d has kind %q without a body", in.ID, i, env.Kind)
		}
	}
	return nil
}
