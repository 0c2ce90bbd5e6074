// README: Pricing service computes tiered fare quotes and the platform fee split.
package pricing

import (
	"errors"
	"math"
)

var ErrUnknownTier = errors.New("unknown service tier")

// DefaultRates are the launch rates per tier, in centavos.
var DefaultRates = map[Tier]Rate{
	TierUrgent:    {Base: 2900, PerKm: 180, ETAMinutes: 45},
	TierStandard:  {Base: 1950, PerKm: 120, ETAMinutes: 120},
	TierScheduled: {Base: 1500, PerKm: 95, ETAMinutes: 240},
}

const DefaultFeePercent = 15

type Service struct {
	rates      map[Tier]Rate
	feePercent int
}

func NewService(rates map[Tier]Rate, feePercent int) *Service {
	if rates == nil {
		rates = DefaultRates
	}
	if feePercent <= 0 {
		feePercent = DefaultFeePercent
	}
	return &Service{rates: rates, feePercent: feePercent}
}

// Quote prices a single tier for the given distance. The fee is rounded to
// the nearest centavo and the payout is the exact remainder, so
// fare == payout + fee holds for every input.
func (s *Service) Quote(distanceKm float64, tier Tier) (Quote, error) {
	rate, ok := s.rates[tier]
	if !ok {
		return Quote{}, ErrUnknownTier
	}
	fare := int64(math.Round(float64(rate.Base) + float64(rate.PerKm)*distanceKm))
	fee := int64(math.Round(float64(fare) * float64(s.feePercent) / 100.0))
	return Quote{
		Tier:       tier,
		DistanceKm: distanceKm,
		Fare:       fare,
		Payout:     fare - fee,
		Fee:        fee,
		ETAMinutes: rate.ETAMinutes,
	}, nil
}

// QuoteAll prices every tier from the same distance so the three offers shown
// to the shipper can never disagree on distance.
func (s *Service) QuoteAll(distanceKm float64) ([]Quote, error) {
	tiers := []Tier{TierUrgent, TierStandard, TierScheduled}
	out := make([]Quote, 0, len(tiers))
	for _, t := range tiers {
		q, err := s.Quote(distanceKm, t)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}
