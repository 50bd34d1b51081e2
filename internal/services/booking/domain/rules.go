package domain

import (
	"context"
	"strconv"
	"time"

	"github.com/castlegate/visitbooker/internal/platform/errors"
)

// RuleType identifies one admission rule variant.
type RuleType string

const (
	// RuleTypeInterval flags applications too close to an existing booking.
	RuleTypeInterval RuleType = "interval"
	// RuleTypeMonthlyCap flags applications exceeding a monthly visit count.
	RuleTypeMonthlyCap RuleType = "monthly_cap"
)

// Rule parameter names.
const (
	ParamIntervalDays = "intervalDays"
	ParamMaxPerMonth  = "maxPerMonth"
)

// RuleDescriptor is the immutable per-prison rule configuration shape.
type RuleDescriptor struct {
	Type       RuleType
	Parameters map[string]string
}

// BookedVisitReader provides the booked-visit state rules evaluate against.
// Reads are intentionally not serialized against in-flight bookings; rules
// are soft admission gates and a slightly stale snapshot is acceptable.
type BookedVisitReader interface {
	FindBookedVisits(ctx context.Context, prisonCode, prisonerID string, from, to time.Time) ([]Visit, error)
}

// Rule is one compiled admission rule variant.
type Rule interface {
	// Type returns the variant tag of the rule.
	Type() RuleType
	// Violated reports whether the candidate application breaks the rule.
	Violated(ctx context.Context, reader BookedVisitReader, candidate Application) (bool, error)
}

// ruleCompilers is the closed factory table dispatching descriptor types to
// their variant constructors. Unknown types fail at configuration load.
var ruleCompilers = map[RuleType]func(params map[string]string) (Rule, error){
	RuleTypeInterval:   compileIntervalRule,
	RuleTypeMonthlyCap: compileMonthlyCapRule,
}

// CompileRules turns descriptors into evaluable rules, failing fast on any
// unknown rule type or malformed parameter.
func CompileRules(descriptors []RuleDescriptor) ([]Rule, error) {
	rules := make([]Rule, 0, len(descriptors))
	for _, descriptor := range descriptors {
		compile, ok := ruleCompilers[descriptor.Type]
		if !ok {
			return nil, errors.WithMetadata(errors.CodeRuleUnknownType, "unsupported admission rule type", map[string]string{
				"rule_type": string(descriptor.Type),
			})
		}
		rule, err := compile(descriptor.Parameters)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func intParam(params map[string]string, name string, ruleType RuleType) (int, error) {
	raw, ok := params[name]
	if !ok {
		return 0, errors.WithMetadata(errors.CodeRuleMissingParameter, "admission rule parameter is required", map[string]string{
			"rule_type": string(ruleType),
			"parameter": name,
		})
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errors.WithMetadata(errors.CodeRuleInvalidParameter, "admission rule parameter must be a positive integer", map[string]string{
			"rule_type": string(ruleType),
			"parameter": name,
			"value":     raw,
		})
	}
	return value, nil
}

// IntervalRule flags a candidate when any booked visit for the same prisoner
// and prison has a session date within ±Days of the candidate date.
type IntervalRule struct {
	Days int
}

func compileIntervalRule(params map[string]string) (Rule, error) {
	days, err := intParam(params, ParamIntervalDays, RuleTypeInterval)
	if err != nil {
		return nil, err
	}
	return IntervalRule{Days: days}, nil
}

// Type implements Rule.
func (r IntervalRule) Type() RuleType { return RuleTypeInterval }

// Violated implements Rule. The window is inclusive on both ends.
func (r IntervalRule) Violated(ctx context.Context, reader BookedVisitReader, candidate Application) (bool, error) {
	date := candidate.Slot.Date()
	from := date.AddDate(0, 0, -r.Days)
	to := date.AddDate(0, 0, r.Days)
	visits, err := reader.FindBookedVisits(ctx, candidate.PrisonCode, candidate.PrisonerID, from, to)
	if err != nil {
		return false, err
	}
	return len(visits) > 0, nil
}

// MonthlyCapRule flags a candidate when the prisoner already has Max or more
// booked visits in the calendar month containing the candidate date.
type MonthlyCapRule struct {
	Max int
}

func compileMonthlyCapRule(params map[string]string) (Rule, error) {
	max, err := intParam(params, ParamMaxPerMonth, RuleTypeMonthlyCap)
	if err != nil {
		return nil, err
	}
	return MonthlyCapRule{Max: max}, nil
}

// Type implements Rule.
func (r MonthlyCapRule) Type() RuleType { return RuleTypeMonthlyCap }

// Violated implements Rule.
func (r MonthlyCapRule) Violated(ctx context.Context, reader BookedVisitReader, candidate Application) (bool, error) {
	date := candidate.Slot.Date()
	monthStart := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)
	visits, err := reader.FindBookedVisits(ctx, candidate.PrisonCode, candidate.PrisonerID, monthStart, monthEnd)
	if err != nil {
		return false, err
	}
	return len(visits) >= r.Max, nil
}

// Decision is the outcome of evaluating a candidate against a prison's rules.
type Decision struct {
	RequiresReview bool
	Violations     []RuleType
}

// Engine evaluates candidate applications against compiled per-prison rules.
type Engine struct {
	reader BookedVisitReader
	rules  map[string][]Rule
}

// NewEngine builds an engine over pre-compiled per-prison rule sets.
func NewEngine(reader BookedVisitReader, rules map[string][]Rule) (*Engine, error) {
	if reader == nil {
		return nil, errors.New(errors.CodeRuleStoreNotConfigured, "booked visit reader is required")
	}
	return &Engine{reader: reader, rules: rules}, nil
}

// NewEngineFromDescriptors compiles per-prison descriptors and builds an
// engine, failing fast on configuration errors.
func NewEngineFromDescriptors(reader BookedVisitReader, config map[string][]RuleDescriptor) (*Engine, error) {
	compiled := make(map[string][]Rule, len(config))
	for prison, descriptors := range config {
		if prison == "" {
			return nil, errors.New(errors.CodeRuleEmptyPrisonCode, "rule configuration prison code is required")
		}
		rules, err := CompileRules(descriptors)
		if err != nil {
			return nil, err
		}
		compiled[prison] = rules
	}
	return NewEngine(reader, compiled)
}

// Evaluate runs every rule configured for the candidate's prison. Any single
// violation routes the application to manual review; evaluation order never
// changes the outcome.
func (e *Engine) Evaluate(ctx context.Context, candidate Application) (Decision, error) {
	if e == nil || e.reader == nil {
		return Decision{}, errors.New(errors.CodeRuleStoreNotConfigured, "rule engine is not configured")
	}
	decision := Decision{}
	for _, rule := range e.rules[candidate.PrisonCode] {
		violated, err := rule.Violated(ctx, e.reader, candidate)
		if err != nil {
			return Decision{}, err
		}
		if violated {
			decision.RequiresReview = true
			decision.Violations = append(decision.Violations, rule.Type())
		}
	}
	return decision, nil
}
