package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xela07ax/guardian-demo/internal/domain"
)

const scam = "5CiPPseXPECbkjWCa6MnjNokrgYjMqmKndv2rSnekmSK2DjL"

func TestDescribe(t *testing.T) {
	tests := []struct {
		payload domain.EventPayload
		want    string
	}{
		{domain.CapSet{Cap: 2000}, "Spend cap set to 2000 DOT"},
		{domain.AllowlistSet{Addresses: []string{"a"}}, "Allowlist updated (1 address)"},
		{domain.AllowlistSet{Addresses: []string{"a", "b"}}, "Allowlist updated (2 addresses)"},
		{domain.AllowlistSet{Addresses: []string{}}, "Allowlist updated (0 addresses)"},
		{domain.AddressFlagged{Address: scam, Reason: "Known scam contract"}, "Flagged 5CiPPs...2DjL: Known scam contract"},
		{domain.AddressUnflagged{Address: scam}, "Unflagged 5CiPPs...2DjL"},
		{domain.AddressChecked{Address: scam, Amount: 150}, "Safety check on 5CiPPs...2DjL (150 DOT)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			e := domain.Event{Type: tt.payload.EventType(), Data: tt.payload}
			assert.Equal(t, tt.want, Describe(e))
		})
	}
	assert.Equal(t, "Unknown event", Describe(domain.Event{}))
}

func TestIcon(t *testing.T) {
	assert.Equal(t, "💰", Icon(domain.EventSetCap))
	assert.Equal(t, "📋", Icon(domain.EventSetAllowlist))
	assert.Equal(t, "🚩", Icon(domain.EventFlag))
	assert.Equal(t, "✅", Icon(domain.EventUnflag))
	assert.Equal(t, "🔍", Icon(domain.EventCheck))
	assert.Equal(t, "📝", Icon("PAUSE"))
}

func TestTimeSince(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	ago := func(d time.Duration) int64 { return now.Add(-d).UnixMilli() }

	assert.Equal(t, "0s ago", TimeSince(ago(0), now))
	assert.Equal(t, "0s ago", TimeSince(now.Add(time.Minute).UnixMilli(), now))
	assert.Equal(t, "59s ago", TimeSince(ago(59*time.Second+999*time.Millisecond), now))
	assert.Equal(t, "1m ago", TimeSince(ago(time.Minute), now))
	assert.Equal(t, "59m ago", TimeSince(ago(time.Hour-time.Second), now))
	assert.Equal(t, "1h ago", TimeSince(ago(time.Hour), now))
	assert.Equal(t, "2h ago", TimeSince(ago(2*time.Hour), now))
	assert.Equal(t, "3d ago", TimeSince(ago(72*time.Hour), now))
}

func TestLines(t *testing.T) {
	ts := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC).UnixMilli()
	lines := Lines([]domain.Event{{Type: domain.EventSetCap, Data: domain.CapSet{Cap: 1}, Timestamp: ts, ID: "e1"}}, time.UTC)

	assert.Equal(t, []Line{{ID: "e1", Type: domain.EventSetCap, Icon: "💰", Description: "Spend cap set to 1 DOT", Time: "13:04:05"}}, lines)
}
