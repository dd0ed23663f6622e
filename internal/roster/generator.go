package roster

import (
	"fmt"

	"github.com/duskmantle/courtmind/api/schemas"
)

// Name parts for procedurally generated courtiers. Selection order is
// fixed so the same seed always produces the same cast.
var (
	givenNames = []string{
		"Mavren", "Odile", "Casmir", "Iseult", "Renwick", "Thessaly",
		"Aldous", "Verine", "Lucan", "Morwenna", "Edric", "Sabelle",
	}
	houseNames = []string{
		"Kestrel", "Vane", "Marrow", "Duskwell", "Crane", "Ashford",
		"Loriven", "Harrow", "Belmore", "Quill",
	}
	drives = []string{
		"to stand closest to the throne when it changes hands",
		"to bury an old debt before it surfaces",
		"to be the one voice the court cannot ignore",
		"to see a rival house ruined and call it justice",
		"to survive the season with name and skin intact",
		"to turn every secret in the palace into currency",
	}
	weaknesses = []string{
		"drinks to quiet a guilty memory",
		"cannot resist an audience",
		"trusts letters more than people, and keeps them all",
		"owes the wrong moneylender",
		"loves someone far below their station",
		"believes their own flattery",
	}
)

// generateAgent builds one procedural profile from the roster's seeded
// generator. Must only be called during construction, before concurrent use.
func (r *Roster) generateAgent(ordinal int) schemas.AgentProfile {
	given := givenNames[r.rng.Intn(len(givenNames))]
	house := houseNames[r.rng.Intn(len(houseNames))]
	archetype := schemas.Archetypes[r.rng.Intn(len(schemas.Archetypes))]

	return schemas.AgentProfile{
		ID:        fmt.Sprintf("agent-%02d", ordinal),
		Name:      given + " " + house,
		Archetype: archetype,
		Traits: schemas.TraitVector{
			Ambition:  r.rng.Float64(),
			Cunning:   r.rng.Float64(),
			Loyalty:   r.rng.Float64(),
			Cruelty:   r.rng.Float64(),
			Composure: r.rng.Float64(),
		},
		Drive:    drives[r.rng.Intn(len(drives))],
		Weakness: weaknesses[r.rng.Intn(len(weaknesses))],
		Favor:    20 + r.rng.Float64()*40,
		Emotions: schemas.EmotionalState{
			Paranoia:    r.rng.Float64() * 0.4,
			Desperation: r.rng.Float64() * 0.4,
			Confidence:  0.3 + r.rng.Float64()*0.4,
		},
		Relationships: make(map[string]float64),
	}
}

// canonAgents returns the hand-authored fixed cast present in every
// session regardless of seed.
func canonAgents() []schemas.AgentProfile {
	return []schemas.AgentProfile{
		{
			ID:        "canon-corvin",
			Name:      "Seneschal Corvin",
			Archetype: schemas.ArchetypeSchemer,
			Traits:    schemas.TraitVector{Ambition: 0.9, Cunning: 0.85, Loyalty: 0.2, Cruelty: 0.6, Composure: 0.8},
			Drive:     "to run the household so completely that the throne becomes ornamental",
			Weakness:  "keeps a ledger of every favor, and it can be stolen",
			Favor:     55,
			Emotions:  schemas.EmotionalState{Paranoia: 0.3, Desperation: 0.1, Confidence: 0.8},
			Relationships: map[string]float64{
				"canon-halvence": -0.4,
			},
		},
		{
			ID:        "canon-halvence",
			Name:      "Sister Halvence",
			Archetype: schemas.ArchetypeZealot,
			Traits:    schemas.TraitVector{Ambition: 0.4, Cunning: 0.5, Loyalty: 0.9, Cruelty: 0.7, Composure: 0.6},
			Drive:     "to scour the court of its rot, one confession at a time",
			Weakness:  "her certainty can be turned against anyone, including herself",
			Favor:     45,
			Emotions:  schemas.EmotionalState{Paranoia: 0.5, Desperation: 0.2, Confidence: 0.6},
			Relationships: map[string]float64{
				"canon-corvin": -0.4,
			},
		},
		{
			ID:        "canon-ilka",
			Name:      "Ilka",
			Archetype: schemas.ArchetypeSurvivor,
			Traits:    schemas.TraitVector{Ambition: 0.3, Cunning: 0.7, Loyalty: 0.5, Cruelty: 0.2, Composure: 0.9},
			Drive:     "to be overlooked until the day it matters not to be",
			Weakness:  "sends coin to a family the court must never learn of",
			Favor:     25,
			Emotions:  schemas.EmotionalState{Paranoia: 0.6, Desperation: 0.3, Confidence: 0.4},
			Relationships: map[string]float64{
				"canon-corvin":   0.2,
				"canon-halvence": 0.1,
			},
		},
	}
}
