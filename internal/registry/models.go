package registry

// Capability names used by the cost accountant and providers.
const (
	CapCachedInput = "cached_input"
	CapLiveSearch  = "live_search"
	CapJSONMode    = "json_mode"
	CapTools       = "tools"
)

// builtinSpecs is the default model catalog. Prices are USD per million
// tokens and track each vendor's published list prices.
var builtinSpecs = []ModelSpec{
	{
		Provider: "openai", APIName: "gpt-4o",
		ContextWindow: 128000, MaxTokens: 16384,
		InputCostPerMillion: 2.50, OutputCostPerMillion: 10.00,
		Capabilities: []string{CapJSONMode, CapTools, CapCachedInput},
	},
	{
		Provider: "openai", APIName: "gpt-4o-mini",
		ContextWindow: 128000, MaxTokens: 16384,
		InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60,
		Capabilities: []string{CapJSONMode, CapTools, CapCachedInput},
	},
	{
		Provider: "openai", APIName: "gpt-4",
		ContextWindow: 8192, MaxTokens: 8192,
		InputCostPerMillion: 30.00, OutputCostPerMillion: 60.00,
		Capabilities: []string{CapTools},
	},
	{
		Provider: "openai", APIName: "gpt-3.5-turbo",
		ContextWindow: 16385, MaxTokens: 4096,
		InputCostPerMillion: 0.50, OutputCostPerMillion: 1.50,
		Capabilities: []string{CapJSONMode, CapTools},
	},
	{
		Provider: "claude", APIName: "claude-3-5-sonnet-20241022",
		ContextWindow: 200000, MaxTokens: 8192,
		InputCostPerMillion: 3.00, OutputCostPerMillion: 15.00,
		Capabilities: []string{CapTools, CapCachedInput},
	},
	{
		Provider: "claude", APIName: "claude-3-5-haiku-20241022",
		ContextWindow: 200000, MaxTokens: 8192,
		InputCostPerMillion: 0.80, OutputCostPerMillion: 4.00,
		Capabilities: []string{CapTools, CapCachedInput},
	},
	{
		Provider: "claude", APIName: "claude-3-opus-20240229",
		ContextWindow: 200000, MaxTokens: 4096,
		InputCostPerMillion: 15.00, OutputCostPerMillion: 75.00,
		Capabilities: []string{CapTools, CapCachedInput},
	},
	{
		Provider: "gemini", APIName: "gemini-1.5-pro",
		ContextWindow: 2097152, MaxTokens: 8192,
		InputCostPerMillion: 1.25, OutputCostPerMillion: 5.00,
		Capabilities: []string{CapJSONMode, CapTools, CapCachedInput},
	},
	{
		Provider: "gemini", APIName: "gemini-1.5-flash",
		ContextWindow: 1048576, MaxTokens: 8192,
		InputCostPerMillion: 0.075, OutputCostPerMillion: 0.30,
		Capabilities: []string{CapJSONMode, CapTools, CapCachedInput},
	},
	{
		Provider: "mistral", APIName: "mistral-large-latest",
		ContextWindow: 128000, MaxTokens: 8192,
		InputCostPerMillion: 2.00, OutputCostPerMillion: 6.00,
		Capabilities: []string{CapJSONMode, CapTools},
	},
	{
		Provider: "groq", APIName: "llama-3.3-70b-versatile",
		ContextWindow: 131072, MaxTokens: 8192,
		InputCostPerMillion: 0.59, OutputCostPerMillion: 0.79,
		Capabilities: []string{CapJSONMode, CapTools},
	},
	{
		Provider: "perplexity", APIName: "sonar-pro",
		ContextWindow: 200000, MaxTokens: 8192,
		InputCostPerMillion: 3.00, OutputCostPerMillion: 15.00,
		Capabilities: []string{CapLiveSearch},
	},
}
