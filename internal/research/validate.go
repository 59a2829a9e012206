package research

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/limni-research/internal/models"
)

// ValidationError is returned when a research config is rejected
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid research config: " + strings.Join(e.Reasons, "; ")
}

// ConfigValidator checks research configs with struct tags plus cross-field rules
type ConfigValidator struct {
	validator *validator.Validate
}

// NewConfigValidator creates a validator with the research enum rules registered
func NewConfigValidator() *ConfigValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "assetclass", validateAssetClass)
	mustRegister(v, "strategymodel", validateStrategyModel)
	mustRegister(v, "rfc3339", validateRFC3339)
	return &ConfigValidator{validator: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

var defaultValidator = NewConfigValidator()

// Validate returns every rule the config violates; empty means valid
func Validate(cfg models.ResearchConfig) []string {
	return defaultValidator.Validate(cfg)
}

// Validate returns every rule the config violates; empty means valid
func (cv *ConfigValidator) Validate(cfg models.ResearchConfig) []string {
	var reasons []string

	if err := cv.validator.Struct(cfg); err != nil {
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			reasons = append(reasons, formatFieldErrors(fieldErrors)...)
		} else {
			reasons = append(reasons, fmt.Sprintf("config could not be validated: %v", err))
		}
	}

	return append(reasons, crossFieldReasons(cfg)...)
}

// Check wraps Validate into a *ValidationError, nil when valid
func Check(cfg models.ResearchConfig) error {
	if reasons := Validate(cfg); len(reasons) > 0 {
		return &ValidationError{Reasons: reasons}
	}
	return nil
}

func validateAssetClass(fl validator.FieldLevel) bool {
	switch models.AssetClass(fl.Field().String()) {
	case models.AssetClassFX, models.AssetClassIndices, models.AssetClassCommodities, models.AssetClassCrypto:
		return true
	default:
		return false
	}
}

func validateStrategyModel(fl validator.FieldLevel) bool {
	switch models.StrategyModel(fl.Field().String()) {
	case models.ModelAntikythera, models.ModelBlended, models.ModelDealer, models.ModelCommercial, models.ModelSentiment:
		return true
	default:
		return false
	}
}

func validateRFC3339(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.RFC3339Nano, fl.Field().String())
	return err == nil
}

func crossFieldReasons(cfg models.ResearchConfig) []string {
	var reasons []string

	if len(cfg.Models) == 0 {
		reasons = append(reasons, "models must not be empty")
	}
	if len(cfg.Universe.AssetClasses) == 0 {
		reasons = append(reasons, "universe.assetClasses must not be empty")
	}

	from, fromErr := time.Parse(time.RFC3339Nano, cfg.DateRange.From)
	to, toErr := time.Parse(time.RFC3339Nano, cfg.DateRange.To)
	if fromErr == nil && toErr == nil && !from.Before(to) {
		reasons = append(reasons, "dateRange.from must be before dateRange.to")
	}

	risk := cfg.Risk
	if risk.MarginBuffer < 0 || risk.MarginBuffer >= 1 {
		reasons = append(reasons, fmt.Sprintf("risk.marginBuffer must be in [0, 1), got %v", risk.MarginBuffer))
	}
	if risk.Leverage <= 0 {
		reasons = append(reasons, fmt.Sprintf("risk.leverage must be greater than 0, got %v", risk.Leverage))
	}
	if risk.StopLoss != nil && (risk.StopLoss.Value <= 0 || risk.StopLoss.Value >= 1) {
		reasons = append(reasons, fmt.Sprintf("risk.stopLoss.value must be in (0, 1), got %v", risk.StopLoss.Value))
	}
	if risk.StartingEquity != nil && *risk.StartingEquity <= 0 {
		reasons = append(reasons, "risk.startingEquity must be greater than 0")
	}
	if risk.RiskPerTrade != nil && (*risk.RiskPerTrade <= 0 || *risk.RiskPerTrade > 1) {
		reasons = append(reasons, "risk.riskPerTrade must be in (0, 1]")
	}
	if t := risk.Trailing; t != nil && !t.Adaptive {
		if t.StartPct < 0 {
			reasons = append(reasons, "risk.trailing.startPct must not be negative")
		}
		if t.OffsetPct < 0 {
			reasons = append(reasons, "risk.trailing.offsetPct must not be negative")
		}
	}

	if v := cfg.Realism.SlippageBps; v != nil && *v < 0 {
		reasons = append(reasons, "realism.slippageBps must not be negative")
	}
	if v := cfg.Realism.CommissionBps; v != nil && *v < 0 {
		reasons = append(reasons, "realism.commissionBps must not be negative")
	}

	return reasons
}

func formatFieldErrors(fieldErrors validator.ValidationErrors) []string {
	reasons := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		field := fieldPath(fe.Namespace())
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, fmt.Sprintf("%s is required", field))
		case "rfc3339":
			reasons = append(reasons, fmt.Sprintf("%s must be an RFC3339 timestamp, got %q", field, fe.Value()))
		case "oneof":
			reasons = append(reasons, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "assetclass":
			reasons = append(reasons, fmt.Sprintf("%s must be one of [fx indices commodities crypto], got %q", field, fe.Value()))
		case "strategymodel":
			reasons = append(reasons, fmt.Sprintf("%s must be one of [antikythera blended dealer commercial sentiment], got %q", field, fe.Value()))
		default:
			reasons = append(reasons, fmt.Sprintf("%s failed validation: %s", field, fe.Tag()))
		}
	}
	return reasons
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
