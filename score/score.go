// Package score computes a credit score from cash flow and payment history.
package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/jacentio/tablekv/tools"
)

// ErrInvalidInput is returned for negative, non-finite or unknown inputs.
var ErrInvalidInput = errors.New("score: invalid input")

// Income frequency categories.
const (
	FrequencyHigh   = "High – Consistent"
	FrequencyMedium = "Medium – Variable"
	FrequencyLow    = "Low-Unpredictable"
)

// Input is the applicant data a score is computed from.
type Input struct {
	AccountAgeMonths    uint32  `json:"account_age_months"`
	MonthlyIncomeAvg    float64 `json:"monthly_income_avg"`
	IncomeFrequency     string  `json:"income_frequency"`
	MonthlyRent         float64 `json:"monthly_rent"`
	MonthlyUtilities    float64 `json:"monthly_utilities"`
	MissedPaymentsCount uint32  `json:"missed_payments_count"`
}

// Validate checks that amounts are finite and non-negative and that the
// frequency is one of the known categories.
func (in Input) Validate() error {
	amounts := []struct {
		name  string
		value float64
	}{
		{"monthly_income_avg", in.MonthlyIncomeAvg},
		{"monthly_rent", in.MonthlyRent},
		{"monthly_utilities", in.MonthlyUtilities},
	}
	for _, a := range amounts {
		if math.IsNaN(a.value) || math.IsInf(a.value, 0) || a.value < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number, got %v", ErrInvalidInput, a.name, a.value)
		}
	}
	switch in.IncomeFrequency {
	case FrequencyHigh, FrequencyMedium, FrequencyLow:
		return nil
	default:
		return fmt.Errorf("%w: unknown income_frequency %q", ErrInvalidInput, in.IncomeFrequency)
	}
}

// Policy turns validated input into a score. Higher is better.
type Policy interface {
	Score(in Input) float64
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(in Input) float64

// Score implements Policy.
func (f PolicyFunc) Score(in Input) float64 {
	return f(in)
}

// CashFlowPolicy scores out of 100: up to 50 for free cash after rent and
// utilities, up to 30 for income stability and account age, and up to 20
// for payment reliability. The result is rounded down.
type CashFlowPolicy struct{}

// Score implements Policy.
func (CashFlowPolicy) Score(in Input) float64 {
	income := in.MonthlyIncomeAvg
	if income <= 0.1 {
		return 0
	}

	// 40% free cash earns the full 50 points.
	coverage := (income - in.MonthlyRent - in.MonthlyUtilities) / income
	cash := math.Max(0, math.Min(coverage, 0.40)/0.40*50)

	var consistency float64
	switch in.IncomeFrequency {
	case FrequencyHigh:
		consistency = 25
	case FrequencyMedium:
		consistency = 15
	default:
		consistency = 5
	}
	age := math.Min(float64(in.AccountAgeMonths)*0.5, 5)

	reliability := math.Max(0, 20-float64(in.MissedPaymentsCount)*10)

	return math.Floor(cash + consistency + age + reliability)
}

// Scorer validates input and applies a Policy.
type Scorer struct {
	policy Policy
	logger *slog.Logger
}

// New creates a Scorer. A nil policy means CashFlowPolicy.
func New(policy Policy, logger *slog.Logger) *Scorer {
	if policy == nil {
		policy = CashFlowPolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{policy: policy, logger: logger}
}

// GetScore returns the policy's score for in.
func (s *Scorer) GetScore(ctx context.Context, in Input) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := in.Validate(); err != nil {
		return 0, err
	}
	score := s.policy.Score(in)
	s.logger.Debug("computed score",
		"frequency", in.IncomeFrequency,
		"score", score,
	)
	return score, nil
}

// Specs describes the scorer's operations.
func (s *Scorer) Specs() []tools.Spec {
	frequency := tools.String("income_frequency",
		"income frequency (only acceptable parameter is - \""+FrequencyHigh+"\", \""+FrequencyMedium+"\", \""+FrequencyLow+"\")\n")
	frequency.Enum = []string{FrequencyHigh, FrequencyMedium, FrequencyLow}

	return []tools.Spec{
		{
			Name:        "get_score",
			Kind:        tools.KindQuery,
			Description: "compute a credit score based on financial and payment behavior (returns score as f64, higher is better)\n",
			Params: []tools.Param{
				tools.Integer("account_age_months", "age of the account in months\n"),
				tools.Number("monthly_income_avg", "average monthly income\n"),
				frequency,
				tools.Number("monthly_rent", "average monthly rent expense\n"),
				tools.Number("monthly_utilities", "average monthly utilities expense\n"),
				tools.Integer("missed_payments_count", "total number of missed payments\n"),
			},
		},
		{
			Name:        "tools",
			Kind:        tools.KindQuery,
			Description: "describes the scoring operations (returns tool descriptors as JSON)\n",
		},
	}
}

// Call runs an operation by name with JSON arguments.
func (s *Scorer) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	switch name {
	case "get_score":
		var in Input
		if err := json.Unmarshal(orEmpty(args), &in); err != nil {
			return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
		}
		score, err := s.GetScore(ctx, in)
		if errors.Is(err, ErrInvalidInput) {
			return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(score)
	case "tools":
		out, err := tools.JSON(s.Specs())
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	default:
		return nil, fmt.Errorf("%w: %q", tools.ErrUnknownOperation, name)
	}
}

func orEmpty(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	return args
}
