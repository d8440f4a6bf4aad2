package classifier

// ModelConfig selects the model and generation limits for one tier.
type ModelConfig struct {
	Model           string
	MaxOutputTokens int
	Temperature     float64
}

const defaultTier = "standard"

// tierConfigs maps the configured tier to a model configuration. Unknown
// tiers fall back to the default tier rather than erroring at call time.
var tierConfigs = map[string]ModelConfig{
	"lite": {
		Model:           "gpt-4o-mini",
		MaxOutputTokens: 400,
		Temperature:     0.1,
	},
	"standard": {
		Model:           "gpt-4o-mini",
		MaxOutputTokens: 800,
		Temperature:     0.2,
	},
	"premium": {
		Model:           "gpt-4o",
		MaxOutputTokens: 1200,
		Temperature:     0.2,
	},
}

// TierConfig resolves tier to its model configuration, falling back to the
// default tier for unknown values.
func TierConfig(tier string) ModelConfig {
	if cfg, ok := tierConfigs[tier]; ok {
		return cfg
	}
	return tierConfigs[defaultTier]
}
