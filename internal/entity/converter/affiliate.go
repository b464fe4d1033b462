package converter

import (
	"melodyverse/internal/entity/db"
	"melodyverse/internal/entity/dto"
)

// CommissionToSummary converts a db.Commission to dto.CommissionSummary.
func CommissionToSummary(c *db.Commission) dto.CommissionSummary {
	if c == nil {
		return dto.CommissionSummary{}
	}
	return dto.CommissionSummary{
		ID:           c.ID,
		ReferredID:   c.ReferredID,
		SourceEvent:  c.SourceEvent,
		AmountEarned: c.AmountEarned,
		CreatedAt:    c.CreatedAt,
	}
}

// CommissionsToSummaries converts a slice of db.Commission.
func CommissionsToSummaries(commissions []db.Commission) []dto.CommissionSummary {
	summaries := make([]dto.CommissionSummary, len(commissions))
	for i, c := range commissions {
		summaries[i] = CommissionToSummary(&c)
	}
	return summaries
}

// PayoutToSummary converts a db.PayoutRequest to dto.PayoutSummary.
func PayoutToSummary(p *db.PayoutRequest) dto.PayoutSummary {
	if p == nil {
		return dto.PayoutSummary{}
	}
	return dto.PayoutSummary{
		ID:              p.ID,
		AffiliateID:     p.AffiliateID,
		RequestedAmount: p.RequestedAmount,
		FeePercent:      p.FeePercent,
		Status:          p.Status,
		ReviewerNotes:   p.ReviewerNotes,
		ProcessedAt:     p.ProcessedAt,
		CreatedAt:       p.CreatedAt,
	}
}

// PayoutsToSummaries converts a slice of db.PayoutRequest.
func PayoutsToSummaries(payouts []db.PayoutRequest) []dto.PayoutSummary {
	summaries := make([]dto.PayoutSummary, len(payouts))
	for i, p := range payouts {
		summaries[i] = PayoutToSummary(&p)
	}
	return summaries
}

// LedgerEntryToSummary converts a db.LedgerEntry to dto.LedgerEntrySummary.
func LedgerEntryToSummary(e *db.LedgerEntry) dto.LedgerEntrySummary {
	if e == nil {
		return dto.LedgerEntrySummary{}
	}
	return dto.LedgerEntrySummary{
		ID:            e.ID,
		Delta:         e.Delta,
		Reason:        e.Reason,
		RelatedTaskID: e.RelatedTaskID,
		Reference:     e.Reference,
		CreatedAt:     e.CreatedAt,
	}
}

// LedgerEntriesToSummaries converts a slice of db.LedgerEntry.
func LedgerEntriesToSummaries(entries []db.LedgerEntry) []dto.LedgerEntrySummary {
	summaries := make([]dto.LedgerEntrySummary, len(entries))
	for i, e := range entries {
		summaries[i] = LedgerEntryToSummary(&e)
	}
	return summaries
}
