package inventory

import "time"

// PrebatchStatus is derived from a prebatch's age or expiry date.
type PrebatchStatus string

const (
	StatusFresh   PrebatchStatus = "FRESCO"
	StatusWarning PrebatchStatus = "ADVERTENCIA"
	StatusExpired PrebatchStatus = "VENCIDO"
)

const (
	freshFor      = 14 * 24 * time.Hour
	usableFor     = 28 * 24 * time.Hour
	expiryWarning = 7 * 24 * time.Hour
)

// Status classifies p at now. An explicit expiry date wins over age.
func (p Prebatch) Status(now time.Time) PrebatchStatus {
	if p.ExpiresAt != nil {
		left := p.ExpiresAt.Sub(now)
		switch {
		case left <= 0:
			return StatusExpired
		case left <= expiryWarning:
			return StatusWarning
		default:
			return StatusFresh
		}
	}
	age := now.Sub(p.ProducedAt)
	switch {
	case age < freshFor:
		return StatusFresh
	case age < usableFor:
		return StatusWarning
	default:
		return StatusExpired
	}
}
