package model

// GenerationOptions is the sampling configuration sent with every generation
// request of a run. The loop runs hot (high temperature) with a strong repeat
// penalty so a stalled model breaks out of verbatim repetition instead of
// looping on it.
type GenerationOptions struct {
	ContextWindow int     `json:"num_ctx"`
	Temperature   float64 `json:"temperature"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	TopK          int     `json:"top_k"`
}

// DefaultGenerationOptions returns the profile the loop was tuned with.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		ContextWindow: 10000,
		Temperature:   0.9,
		RepeatPenalty: 1.3,
		TopK:          20,
	}
}
