package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func TestAdvanceHappyPath(t *testing.T) {
	p := PayoutRequest{Status: StatusRequested}

	moved, err := p.Advance(OutcomeNone, "", "", now)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, StatusProcessing, p.Status)
	require.NotNil(t, p.ProcessingAt)

	moved, err = p.Advance(OutcomeSucceeded, " TRX-1 ", "", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "TRX-1", p.PaymentReference)
	require.NotNil(t, p.ResolvedAt)
}

func TestAdvanceProcessingRequiresOutcome(t *testing.T) {
	p := PayoutRequest{Status: StatusProcessing}
	_, err := p.Advance(OutcomeNone, "", "", now)
	assert.ErrorIs(t, err, ErrOutcomeRequired)
	assert.Equal(t, StatusProcessing, p.Status)

	_, err = p.Advance("bounced", "", "", now)
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	moved, err := p.Advance(OutcomeFailed, "", "account closed", now)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "account closed", p.FailureReason)
}

func TestAdvanceTerminalIsNoop(t *testing.T) {
	p := PayoutRequest{Status: StatusCompleted, Version: 4}
	moved, err := p.Advance(OutcomeFailed, "", "late", now)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Empty(t, p.FailureReason)
}

func TestReferenceAndMasking(t *testing.T) {
	ref := NewReference()
	assert.True(t, strings.HasPrefix(ref, ReferencePrefix))
	assert.Len(t, ref, len(ReferencePrefix)+26)
	assert.NotEqual(t, ref, NewReference())

	account := BankAccount{IBAN: NormalizeIBAN("ro49 aaaa 1b31 0075 9384 0000")}
	assert.Equal(t, "RO49AAAA1B31007593840000", account.IBAN)
	assert.Equal(t, "RO******************0000", account.MaskedIBAN())
}

func TestNewPayoutSummary(t *testing.T) {
	summary := NewPayoutSummary(9, []StatusSum{
		{Status: StatusRequested, Count: 2, Amount: 30_000},
		{Status: StatusCompleted, Count: 1, Amount: 50_000},
	}, StatusTotal{Count: 1, Amount: 50_000})

	assert.Equal(t, StatusTotal{Count: 2, Amount: 30_000}, summary.Requested)
	assert.Equal(t, StatusTotal{Count: 1, Amount: 50_000}, summary.Completed)
	assert.Zero(t, summary.Processing)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, int64(1), summary.CompletedThisMonth.Count)
}

func TestMonthStart(t *testing.T) {
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), MonthStart(now))

	bucharest := time.FixedZone("EET", 3*60*60)
	// 00:30 on May 1st in Bucharest is still April in UTC.
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), MonthStart(time.Date(2026, 5, 1, 0, 30, 0, 0, bucharest)))
}
