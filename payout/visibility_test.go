package payout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/incentive-engine/payout"
)

func TestNormalizeFieldToken_Aliases(t *testing.T) {
	tests := []struct {
		token string
		want  []payout.Field
	}{
		{"coins", []payout.Field{payout.FieldUnitReward}},
		{"incentivo_coins", []payout.Field{payout.FieldUnitReward}},
		{"Incentivo Coin", []payout.Field{payout.FieldUnitReward}},
		{"  PAYPAL ", []payout.Field{payout.FieldCashReward}},
		{"Agencia", []payout.Field{payout.FieldAgency}},
		{"Días", []payout.Field{payout.FieldDays}},
		{"horas", []payout.Field{payout.FieldHours}},
		{"sueldo", []payout.Field{payout.FieldGrossPay, payout.FieldGrossCoins}},
		{"paypal_bruto", []payout.Field{payout.FieldGrossPay}},
		{"something_new", []payout.Field{"something_new"}},
		{"   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, payout.NormalizeFieldToken(tt.token))
		})
	}
}

func TestHiddenFields_EmptyTableDefaults(t *testing.T) {
	assert.Equal(t, payout.FieldSet{payout.FieldAgency: true}, payout.HiddenFields(nil, "A001", payout.AudiencePublic))
	assert.Empty(t, payout.HiddenFields(nil, "A001", payout.AudienceAgent))
	assert.Empty(t, payout.HiddenFields(nil, "A001", payout.AudienceAdmin))
}

func TestHiddenFields_ContractAndAudienceScoping(t *testing.T) {
	rules := []payout.VisibilityRule{
		{Contract: "", FieldToken: "agencia", Audience: "public"},
		{Contract: "A001", FieldToken: "coins", Audience: ""},
		{Contract: "B002", FieldToken: "paypal", Audience: ""},
		{Contract: " A001 ", FieldToken: "sueldo", Audience: "PLAYER"},
	}

	// Public on A001: global agencia rule + A001 coins
	assert.Equal(t, payout.FieldSet{
		payout.FieldAgency:     true,
		payout.FieldUnitReward: true,
	}, payout.HiddenFields(rules, "A001", payout.AudiencePublic))

	// Player on A001: coins + sueldo group
	assert.Equal(t, payout.FieldSet{
		payout.FieldUnitReward: true,
		payout.FieldGrossPay:   true,
		payout.FieldGrossCoins: true,
	}, payout.HiddenFields(rules, "A001", payout.AudiencePlayer))

	// Agent on B002: only the B002 rule
	assert.Equal(t, payout.FieldSet{payout.FieldCashReward: true},
		payout.HiddenFields(rules, "B002", payout.AudienceAgent))
}

func TestHiddenFields_GlobalAgencyRuleCoversEveryContract(t *testing.T) {
	rules := []payout.VisibilityRule{{FieldToken: "agencia", Audience: "public"}}

	for _, contract := range []string{"A001", "B002", "ZZZ", "x"} {
		hidden := payout.HiddenFields(rules, contract, payout.AudiencePublic)
		assert.True(t, hidden.Has(payout.FieldAgency), contract)

		v := payout.Project(payout.StreamerPeriodRecord{PlatformID: "1", Agency: "Agency X"}, hidden)
		assert.Nil(t, v.Agency, contract)
	}
}

func TestHiddenFields_ConfiguredTableReplacesDefault(t *testing.T) {
	// Once any rule exists, the built-in default no longer applies.
	rules := []payout.VisibilityRule{{Contract: "A001", FieldToken: "coins"}}

	hidden := payout.HiddenFields(rules, "B002", payout.AudiencePublic)
	assert.Empty(t, hidden)
}

func TestFieldSet_Sorted(t *testing.T) {
	s := payout.FieldSet{payout.FieldTier: true, payout.FieldAgency: true}
	assert.Equal(t, []payout.Field{payout.FieldAgency, payout.FieldTier}, s.Sorted())
}
