package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func percentage(bps int64) PromoCode {
	return PromoCode{ID: 1, Code: "SPRING", Kind: KindPercentage, Value: bps, Status: StatusActive}
}

func TestCheckExhausted(t *testing.T) {
	p := percentage(1_000)
	p.UsageLimit = ptr(int64(10))
	p.UsesCount = 10
	_, err := p.Check(0, "", 0, 10_000, now)
	assert.ErrorIs(t, err, ErrCodeExhausted)

	p.UsesCount = 9
	_, err = p.Check(0, "", 0, 10_000, now)
	assert.NoError(t, err)
}

func TestCheckOrder(t *testing.T) {
	p := percentage(1_000)
	p.ValidUntil = ptr(now.Add(-time.Hour))
	p.UsageLimit = ptr(int64(1))
	p.UsesCount = 1
	p.CategoryIDs = []snowflake.ID{5}

	_, err := p.Check(6, "c1", 0, 100, now)
	assert.ErrorIs(t, err, ErrCodeExpired)

	p.ValidUntil = nil
	_, err = p.Check(6, "c1", 0, 100, now)
	assert.ErrorIs(t, err, ErrCodeExhausted)

	p.UsageLimit = nil
	_, err = p.Check(6, "c1", 0, 100, now)
	assert.ErrorIs(t, err, ErrCodeNotApplicable)

	p.PerCustomerLimit = ptr(int64(1))
	_, err = p.Check(5, "c1", 1, 100, now)
	assert.ErrorIs(t, err, ErrPerCustomerLimitReached)
	_, err = p.Check(5, "", 0, 100, now)
	assert.ErrorIs(t, err, ErrCustomerRequired)

	p.MinPurchaseAmount = ptr(int64(500))
	_, err = p.Check(5, "c1", 0, 100, now)
	assert.ErrorIs(t, err, ErrMinimumNotMet)

	p.Status = StatusInactive
	_, err = p.Check(5, "c1", 0, 1_000, now)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestCheckNotYetValid(t *testing.T) {
	p := percentage(1_000)
	p.ValidFrom = ptr(now.Add(time.Hour))
	_, err := p.Check(0, "", 0, 100, now)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestDiscountAmounts(t *testing.T) {
	p := percentage(1_250)
	d, err := p.Check(0, "", 0, 10_004, now)
	require.NoError(t, err)
	// 10004 * 12.5% = 1250.5
	assert.Equal(t, int64(1_251), d.Amount)

	p.MaxDiscountAmount = ptr(int64(1_000))
	d, err = p.Check(0, "", 0, 10_004, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), d.Amount)

	fixed := PromoCode{ID: 2, Code: "FLAT", Kind: KindFixed, Value: 5_000, Status: StatusActive}
	d, err = fixed.Check(0, "", 0, 20_000, now)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), d.Amount)

	d, err = fixed.Check(0, "", 0, 3_000, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000), d.Amount)
}

func TestValidateDefinition(t *testing.T) {
	assert.NoError(t, percentage(10_000).ValidateDefinition())
	assert.ErrorIs(t, percentage(10_001).ValidateDefinition(), ErrInvalidValue)
	assert.ErrorIs(t, PromoCode{Code: "SPRING", Kind: "bogo", Value: 1}.ValidateDefinition(), ErrInvalidKind)
	assert.ErrorIs(t, PromoCode{Code: "SPR ING", Kind: KindFixed, Value: 1}.ValidateDefinition(), ErrInvalidCode)

	p := percentage(500)
	p.UsageLimit = ptr(int64(0))
	assert.ErrorIs(t, p.ValidateDefinition(), ErrInvalidLimit)

	p = percentage(500)
	p.ValidFrom = ptr(now)
	p.ValidUntil = ptr(now)
	assert.ErrorIs(t, p.ValidateDefinition(), ErrInvalidWindow)

	assert.Equal(t, "SPRING-10", NormalizeCode("  spring-10 "))
}

func TestSyncStatus(t *testing.T) {
	p := percentage(1_000)
	p.UsageLimit = ptr(int64(2))
	p.UsesCount = 2
	assert.True(t, p.SyncStatus(now))
	assert.Equal(t, StatusDepleted, p.Status)
	assert.False(t, p.SyncStatus(now))

	p.UsesCount = 1
	assert.True(t, p.SyncStatus(now))
	assert.Equal(t, StatusActive, p.Status)

	p.ValidUntil = ptr(now.Add(-time.Minute))
	p.UsesCount = 2
	assert.True(t, p.SyncStatus(now))
	assert.Equal(t, StatusExpired, p.Status)

	p.Status = StatusInactive
	assert.False(t, p.SyncStatus(now))
	assert.Equal(t, StatusInactive, p.Status)
}

func TestCheckDerivedStatuses(t *testing.T) {
	p := percentage(1_000)
	p.UsageLimit = ptr(int64(1))
	p.UsesCount = 1
	p.Status = StatusDepleted
	_, err := p.Check(0, "", 0, 100, now)
	assert.ErrorIs(t, err, ErrCodeExhausted)

	p = percentage(1_000)
	p.ValidUntil = ptr(now.Add(-time.Minute))
	p.Status = StatusExpired
	_, err = p.Check(0, "", 0, 100, now)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestApplyUpdate(t *testing.T) {
	p := percentage(1_000)
	p.UsageLimit = ptr(int64(5))
	p.UsesCount = 5
	p.Status = StatusDepleted

	require.NoError(t, p.ApplyUpdate(UpdatePromoCodeRequest{UsageLimit: ptr(int64(8))}, now))
	assert.Equal(t, int64(8), *p.UsageLimit)
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, now, p.UpdatedAt)

	before := p
	assert.ErrorIs(t, p.ApplyUpdate(UpdatePromoCodeRequest{UsageLimit: ptr(int64(4))}, now), ErrInvalidLimit)
	assert.Equal(t, before, p)

	assert.ErrorIs(t, p.ApplyUpdate(UpdatePromoCodeRequest{
		ValidFrom:  ptr(now),
		ValidUntil: ptr(now.Add(-time.Hour)),
	}, now), ErrInvalidWindow)
	assert.ErrorIs(t, p.ApplyUpdate(UpdatePromoCodeRequest{MaxDiscountAmount: ptr(int64(-1))}, now), ErrInvalidValue)

	require.NoError(t, p.ApplyUpdate(UpdatePromoCodeRequest{Active: ptr(false)}, now))
	assert.Equal(t, StatusInactive, p.Status)
	require.NoError(t, p.ApplyUpdate(UpdatePromoCodeRequest{Active: ptr(true), MinPurchaseAmount: ptr(int64(2_000))}, now))
	assert.Equal(t, StatusActive, p.Status)
	assert.Equal(t, int64(2_000), *p.MinPurchaseAmount)
}

func TestNewUsageStats(t *testing.T) {
	p := percentage(1_000)
	p.UsageLimit = ptr(int64(10))
	p.UsesCount = 3

	stats := NewUsageStats(p, RedemptionTotals{Redemptions: 3, TotalDiscount: 1_000, TotalSubtotal: 10_000, UniqueCustomers: 2})
	assert.Equal(t, int64(7), *stats.Remaining)
	// 1000 / 3 = 333.33
	assert.Equal(t, int64(333), stats.AverageDiscount)
	assert.Equal(t, int64(2), stats.UniqueCustomers)

	empty := NewUsageStats(percentage(1_000), RedemptionTotals{})
	assert.Nil(t, empty.Remaining)
	assert.Zero(t, empty.AverageDiscount)
}
