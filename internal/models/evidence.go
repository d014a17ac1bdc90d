package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// EvidenceKind classifies the origin of a piece of retrieved data.
type EvidenceKind string

const (
	EvidencePrice       EvidenceKind = "price"
	EvidenceFundamental EvidenceKind = "fundamental"
	EvidenceNews        EvidenceKind = "news"
	EvidenceSocial      EvidenceKind = "social"
)

// EvidenceItem is an immutable, provenance-tagged unit of externally
// retrieved data. Once stored it is never mutated or deleted; corrections
// are appended as new items carrying a Supersedes back-reference.
type EvidenceItem struct {
	ID          string          `json:"id"`
	Ticker      string          `json:"ticker"`
	Kind        EvidenceKind    `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	SourceURI   string          `json:"source_uri"`
	RetrievedAt time.Time       `json:"retrieved_at"`
	AsOfDate    time.Time       `json:"as_of_date"`
	Supersedes  string          `json:"supersedes,omitempty"`
}

// PriceBar is the payload for EvidencePrice items.
type PriceBar struct {
	Symbol   string          `json:"symbol"`
	Date     time.Time       `json:"date"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	AdjClose decimal.Decimal `json:"adj_close"`
	Volume   int64           `json:"volume"`
}

// NewsItem is the payload for EvidenceNews items.
type NewsItem struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// SocialPost is the payload for EvidenceSocial items.
type SocialPost struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	Platform  string    `json:"platform"`
	Author    string    `json:"author"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// FundamentalRecord is the payload for EvidenceFundamental items.
type FundamentalRecord struct {
	Symbol     string             `json:"symbol"`
	Period     string             `json:"period"`
	ReportDate time.Time          `json:"report_date"`
	Metrics    map[string]float64 `json:"metrics"`
}

// DateRange bounds an evidence query by as-of date, inclusive on both ends.
// A zero Start or End leaves that side unbounded.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}
