// Package model contains domain models passed between layers.
package model

import "time"

// EntityKind discriminates what an embedding or stored record belongs to.
type EntityKind string

// Entity kinds recognized by the engine.
const (
	KindUser        EntityKind = "user"
	KindOpportunity EntityKind = "opportunity"
)

// Action classifies a user interaction with an opportunity.
type Action string

// Interaction actions, strongest intent first.
const (
	ActionApplied Action = "applied"
	ActionSaved   Action = "saved"
	ActionViewed  Action = "viewed"
)

// CanonicalSkill is a normalized skill identity, distinct from the raw
// textual mentions that resolve to it. ParentID, when set, points at a
// category skill; parent links form a forest.
type CanonicalSkill struct {
	ID          string
	DisplayName string
	Synonyms    []string
	ParentID    string // empty for roots
}

// Interaction is one entry of a user's interaction history.
type Interaction struct {
	OpportunityID string
	Action        Action
	At            time.Time
}

// UserProfile is the engine's read-only projection of a platform user.
// Version is bumped by the owning platform on any edit.
type UserProfile struct {
	UserID    string
	Skills    map[string]float64 // canonical skill id -> proficiency weight
	Interests []string           // free-text interest terms
	History   []Interaction      // ordered oldest to newest
	Version   int64
}

// Opportunity is a job, project, event or collaboration open for matching.
type Opportunity struct {
	OpportunityID string
	Required      map[string]float64 // canonical skill id -> required weight
	Description   string
	Category      string
	PostedAt      time.Time
	ExpiresAt     time.Time // zero means no expiry
	Version       int64
}

// Expired reports whether the opportunity is past its expiry at now.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && o.ExpiresAt.Before(now)
}

// EmbeddingVector is a fixed-dimension representation of an entity.
// Vectors are comparable only within the same ModelVersion.
type EmbeddingVector struct {
	EntityID     string
	Kind         EntityKind
	Vector       []float64
	ModelVersion int
}

// RankedEntry is one row of a ranked result.
type RankedEntry struct {
	OpportunityID string
	Score         float64
	Breakdown     map[string]float64 // signal name -> contributing score
}

// RankedResult is the ordered outcome of one match request. It lives for
// the duration of the request plus an optional short-lived cache entry.
type RankedResult struct {
	UserID  string
	Entries []RankedEntry
}
