/*
visibility.go - Per-audience column visibility policy

PURPOSE:
  Decides which canonical fields a given audience must not see for a
  contract. The evaluator only returns a FieldSet; projection happens in
  report.go on a copy of the records.

RULE MATCHING:
  A rule applies when
    (rule.Contract is empty OR equals the contract) AND
    (rule.Audience is empty OR equals the audience)
  Each applying rule's token goes through the alias table; the hidden set
  is the union of all resulting field groups.

ALIAS TABLE:
  Operators type tokens by hand ("coins", "Incentivo Coin", "sueldo"...).
  NormalizeFieldToken maps them to canonical fields. "sueldo" is a group:
  it hides gross pay and the coin bonus base together.

DEFAULT:
  An empty rule table hides the agency field for the public audience only.

SEE ALSO:
  - report.go: Project() applies the FieldSet
  - cache/source.go: Rules are cached with a short TTL
*/
package payout

import (
	"sort"
	"strings"
)

// =============================================================================
// CANONICAL FIELDS
// =============================================================================

// Field is a canonical, hideable record column.
type Field string

const (
	FieldDisplayName  Field = "usuario"
	FieldAgency       Field = "agencia"
	FieldDays         Field = "dias"
	FieldHours        Field = "duracion"
	FieldDiamonds     Field = "diamantes"
	FieldTier         Field = "nivel"
	FieldMeetsMinimum Field = "cumple"
	FieldUnitReward   Field = "incentivo_coins"
	FieldCashReward   Field = "incentivo_paypal"
	FieldGrossPay     Field = "paypal_bruto"
	FieldGrossCoins   Field = "coins_bruto"
)

// Fields lists every hideable field in display order.
var Fields = []Field{
	FieldDisplayName, FieldAgency, FieldDays, FieldHours, FieldDiamonds,
	FieldTier, FieldMeetsMinimum, FieldUnitReward, FieldCashReward,
	FieldGrossPay, FieldGrossCoins,
}

var fieldAliases = map[string][]Field{
	"usuario":  {FieldDisplayName},
	"username": {FieldDisplayName},
	"user":     {FieldDisplayName},
	"nick":     {FieldDisplayName},
	"nombre":   {FieldDisplayName},

	"agencia": {FieldAgency},
	"agency":  {FieldAgency},

	"dias": {FieldDays},
	"días": {FieldDays},
	"days": {FieldDays},

	"duracion": {FieldHours},
	"duración": {FieldHours},
	"horas":    {FieldHours},
	"hours":    {FieldHours},
	"tiempo":   {FieldHours},

	"diamantes": {FieldDiamonds},
	"diamonds":  {FieldDiamonds},

	"nivel": {FieldTier},
	"tier":  {FieldTier},

	"cumple":        {FieldMeetsMinimum},
	"meets_minimum": {FieldMeetsMinimum},

	"coins":           {FieldUnitReward},
	"incentivo coin":  {FieldUnitReward},
	"incentivo coins": {FieldUnitReward},
	"incentivo_coin":  {FieldUnitReward},
	"incentivo_coins": {FieldUnitReward},
	"unit_reward":     {FieldUnitReward},

	"paypal":           {FieldCashReward},
	"incentivo paypal": {FieldCashReward},
	"incentivo_paypal": {FieldCashReward},
	"cash_reward":      {FieldCashReward},

	"sueldo":       {FieldGrossPay, FieldGrossCoins},
	"salario":      {FieldGrossPay, FieldGrossCoins},
	"paypal_bruto": {FieldGrossPay},
	"gross_pay":    {FieldGrossPay},
	"coins_bruto":  {FieldGrossCoins},
	"gross_coins":  {FieldGrossCoins},
}

// NormalizeFieldToken maps a raw rule token to its canonical field group.
// Unknown tokens normalize to themselves (lowercased, trimmed) so they can
// still be matched; an empty token yields nil.
func NormalizeFieldToken(token string) []Field {
	key := strings.Join(strings.Fields(strings.ToLower(token)), " ")
	if key == "" {
		return nil
	}
	if group, ok := fieldAliases[key]; ok {
		return group
	}
	return []Field{Field(key)}
}

// =============================================================================
// FIELD SET
// =============================================================================

// FieldSet is a set of hidden canonical fields.
type FieldSet map[Field]bool

// Has reports whether f is hidden.
func (s FieldSet) Has(f Field) bool {
	return s[f]
}

// Sorted returns the fields in a stable order, for responses and logs.
func (s FieldSet) Sorted() []Field {
	out := make([]Field, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// EVALUATOR
// =============================================================================

// DefaultHiddenFields is used when no rule is configured at all.
func DefaultHiddenFields(audience Audience) FieldSet {
	if audience == AudiencePublic {
		return FieldSet{FieldAgency: true}
	}
	return FieldSet{}
}

// HiddenFields evaluates rules for a contract and audience.
func HiddenFields(rules []VisibilityRule, contract string, audience Audience) FieldSet {
	if len(rules) == 0 {
		return DefaultHiddenFields(audience)
	}

	contract = strings.TrimSpace(contract)
	hidden := FieldSet{}
	for _, rule := range rules {
		if !ruleApplies(rule, contract, audience) {
			continue
		}
		for _, f := range NormalizeFieldToken(rule.FieldToken) {
			hidden[f] = true
		}
	}
	return hidden
}

func ruleApplies(rule VisibilityRule, contract string, audience Audience) bool {
	rc := strings.TrimSpace(rule.Contract)
	if rc != "" && rc != contract {
		return false
	}
	ra := strings.TrimSpace(rule.Audience)
	if ra != "" && !strings.EqualFold(ra, string(audience)) {
		return false
	}
	return true
}
