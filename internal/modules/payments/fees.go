package payments

import "math"

// PlatformFeePerTicket is the flat service fee the platform keeps per ticket,
// in cents. Deducted from the organizer payout, never charged to the buyer.
const PlatformFeePerTicket int64 = 500

// All amounts are integer cents. Only presentation layers divide by 100.

// StripeProcessingFee approximates Stripe's US card fee: 2.9% + $0.30.
// The percentage part is rounded half away from zero (math.Round), so
// e.g. a 333-cent subtotal yields round(9.657)+30 = 40.
func StripeProcessingFee(amount int64) int64 {
	return int64(math.Round(float64(amount)*0.029)) + 30
}

type BuyerTotal struct {
	Subtotal      int64
	ProcessingFee int64
	Total         int64
}

// CalculateBuyerTotal prices qty tickets for the buyer. The processing fee is
// computed once on the aggregate subtotal, not per ticket, so there is no
// per-unit rounding drift.
func CalculateBuyerTotal(unitPrice int64, qty int64) BuyerTotal {
	subtotal := unitPrice * qty
	fee := StripeProcessingFee(subtotal)
	return BuyerTotal{
		Subtotal:      subtotal,
		ProcessingFee: fee,
		Total:         subtotal + fee,
	}
}

type OrganizerPayout struct {
	Subtotal    int64
	PlatformFee int64
	Payout      int64
}

// CalculateOrganizerPayout is what the organizer receives: ticket revenue
// minus the flat platform fee. The buyer-side processing fee never enters it.
func CalculateOrganizerPayout(unitPrice int64, qty int64) OrganizerPayout {
	subtotal := unitPrice * qty
	platformFee := PlatformFeePerTicket * qty
	return OrganizerPayout{
		Subtotal:    subtotal,
		PlatformFee: platformFee,
		Payout:      subtotal - platformFee,
	}
}

// splitEvenly divides total across n shares, putting the remainder on the
// first share. Summing the shares always reconstructs total exactly; ticket
// rows must use this rather than re-deriving per-unit amounts.
func splitEvenly(total int64, n int64) []int64 {
	shares := make([]int64, n)
	base := total / n
	rem := total % n
	for i := range shares {
		shares[i] = base
	}
	shares[0] += rem
	return shares
}
