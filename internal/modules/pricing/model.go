// README: Service tiers and rate definitions for delivery pricing.
package pricing

// Tier is one of the three delivery service levels.
type Tier string

const (
	TierUrgent    Tier = "urgent"
	TierStandard  Tier = "standard"
	TierScheduled Tier = "scheduled"
)

// Rate holds a tier's fixed base amount and per-kilometre rate, both in
// centavos, plus the advertised ETA.
type Rate struct {
	Base       int64
	PerKm      int64
	ETAMinutes int
}

// Quote is the computed offer for a single tier. Fare, Payout and Fee are
// centavos and always satisfy Fare == Payout + Fee.
type Quote struct {
	Tier       Tier    `json:"tier"`
	DistanceKm float64 `json:"distance_km"`
	Fare       int64   `json:"fare"`
	Payout     int64   `json:"payout"`
	Fee        int64   `json:"fee"`
	ETAMinutes int     `json:"eta_minutes"`
}

func (t Tier) Valid() bool {
	switch t {
	case TierUrgent, TierStandard, TierScheduled:
		return true
	}
	return false
}
