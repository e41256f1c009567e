package pricing

// ModelPricing contains per-model list prices in USD per million tokens.
type ModelPricing struct {
	Model                 string   `yaml:"model"`
	Aliases               []string `yaml:"aliases,omitempty"`
	InputPerMillion       float64  `yaml:"input_per_million"`
	OutputPerMillion      float64  `yaml:"output_per_million"`
	CachedInputPerMillion float64  `yaml:"cached_input_per_million,omitempty"`
}

// ProviderConfig holds YAML-loaded pricing data for a provider.
type ProviderConfig struct {
	Provider string         `yaml:"provider"`
	Updated  string         `yaml:"updated"`
	Models   []ModelPricing `yaml:"models"`
}
