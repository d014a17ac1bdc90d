package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/verdictlab/verdictgo/internal/evidence"
	"github.com/verdictlab/verdictgo/internal/models"
)

const (
	smaShortWindow = 5
	smaLongWindow  = 20
)

// TechnicalAnalyst derives claims from price bars alone. It is fully
// deterministic: no model call, same evidence in, same claims out.
type TechnicalAnalyst struct{}

func NewTechnicalAnalyst() *TechnicalAnalyst { return &TechnicalAnalyst{} }

func (a *TechnicalAnalyst) Name() string { return AnalystTechnical }

func (a *TechnicalAnalyst) Kinds() []models.EvidenceKind {
	return AllowedKinds(AnalystTechnical)
}

type pricePoint struct {
	id   string
	date time.Time
	bar  models.PriceBar
}

func (a *TechnicalAnalyst) Produce(ctx context.Context, ticker string, runDate time.Time, view *evidence.View) (*models.ClaimSet, models.AnalystRecommendation, error) {
	set := &models.ClaimSet{
		Agent:   AnalystTechnical,
		Ticker:  ticker,
		RunDate: runDate,
	}
	rec := models.AnalystRecommendation{
		Agent:  AnalystTechnical,
		Action: models.ActionHold,
	}

	var points []pricePoint
	for item := range view.Items(models.EvidencePrice) {
		if err := ctx.Err(); err != nil {
			return nil, rec, err
		}
		var bar models.PriceBar
		if err := json.Unmarshal(item.Payload, &bar); err != nil {
			continue
		}
		points = append(points, pricePoint{id: item.ID, date: item.AsOfDate, bar: bar})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].date.Before(points[j].date) })

	if len(points) == 0 {
		set.Summary = fmt.Sprintf("No price history available for %s.", ticker)
		set.Degraded = true
		rec.Degraded = true
		return set, rec, nil
	}

	last := points[len(points)-1]
	lastClose := last.bar.Close

	smaShort, shortIDs := trailingAverage(points, smaShortWindow)
	smaLong, longIDs := trailingAverage(points, smaLongWindow)

	set.Claims = append(set.Claims, models.Claim{
		ID: uuid.NewString(),
		Statement: fmt.Sprintf("%s closed at %s on %s.",
			ticker, lastClose.StringFixed(2), last.date.Format("2006-01-02")),
		SupportingEvidenceIDs: []string{last.id},
		Confidence:            1.0,
		ClaimedDate:           &last.date,
	})

	aboveShort := lastClose.GreaterThan(smaShort)
	set.Claims = append(set.Claims, models.Claim{
		ID: uuid.NewString(),
		Statement: fmt.Sprintf("%s is trading %s its %d-day average of %s.",
			ticker, aboveBelow(aboveShort), len(shortIDs), smaShort.StringFixed(2)),
		SupportingEvidenceIDs: shortIDs,
		Confidence:            0.9,
	})

	var action models.Action
	var confidence float64
	switch {
	case len(points) < smaShortWindow:
		action = models.ActionHold
		confidence = 0.3
		set.Summary = fmt.Sprintf("Only %d bars of history for %s; no trend signal.", len(points), ticker)
	case smaShort.GreaterThan(smaLong) && aboveShort:
		action = models.ActionBuy
		confidence = 0.7
		set.Summary = fmt.Sprintf("%s short-term trend is above the longer average with price confirming.", ticker)
	case smaShort.LessThan(smaLong) && !aboveShort:
		action = models.ActionSell
		confidence = 0.7
		set.Summary = fmt.Sprintf("%s short-term trend is below the longer average with price confirming.", ticker)
	default:
		action = models.ActionHold
		confidence = 0.5
		set.Summary = fmt.Sprintf("%s trend signals are mixed.", ticker)
	}

	if len(points) >= smaShortWindow {
		set.Claims = append(set.Claims, models.Claim{
			ID: uuid.NewString(),
			Statement: fmt.Sprintf("%s %d-day average (%s) is %s the %d-day average (%s).",
				ticker, len(shortIDs), smaShort.StringFixed(2),
				aboveBelow(smaShort.GreaterThan(smaLong)), len(longIDs), smaLong.StringFixed(2)),
			SupportingEvidenceIDs: longIDs,
			Confidence:            0.8,
		})
	}

	rec.Action = action
	rec.Confidence = confidence
	return set, rec, nil
}

// trailingAverage computes the close average over the last n points,
// shrinking the window when history is short.
func trailingAverage(points []pricePoint, n int) (decimal.Decimal, []string) {
	if n > len(points) {
		n = len(points)
	}
	window := points[len(points)-n:]
	sum := decimal.Zero
	ids := make([]string, 0, n)
	for _, p := range window {
		sum = sum.Add(p.bar.Close)
		ids = append(ids, p.id)
	}
	return sum.Div(decimal.NewFromInt(int64(n))), ids
}

func aboveBelow(above bool) string {
	if above {
		return "above"
	}
	return "below"
}
