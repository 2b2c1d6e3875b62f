package render

// OutcomeKind classifies how a render attempt ended.
type OutcomeKind int

const (
	Succeeded OutcomeKind = iota
	EffectUnavailable
	EngineFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case EffectUnavailable:
		return "effect_unavailable"
	case EngineFailure:
		return "engine_failure"
	default:
		return "unknown"
	}
}

// Outcome is the immutable result of one render attempt.
type Outcome struct {
	Kind       OutcomeKind
	OutputPath string
	Detail     string
}

func succeeded(outputPath string) Outcome {
	return Outcome{Kind: Succeeded, OutputPath: outputPath}
}

func effectUnavailable(detail string) Outcome {
	return Outcome{Kind: EffectUnavailable, Detail: detail}
}

func engineFailure(detail string) Outcome {
	return Outcome{Kind: EngineFailure, Detail: detail}
}
