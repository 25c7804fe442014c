package domain

// EssentialContext is the compact, process-local summary of a solved problem
// kept in memory so follow-up questions do not replay the full model session.
// Absent entries are reconstructed from the persisted Problem record.
type EssentialContext struct {
	ExtractedText string
	Answer        string
	Explanation   string
	Image         []byte
}

// ContextFromProblem rebuilds an EssentialContext from a persisted problem.
// Used when the in-memory entry was lost (process restart, different device).
func ContextFromProblem(p *Problem) EssentialContext {
	text := p.ExtractedText
	if text == "" {
		text = p.OriginalInput
	}
	return EssentialContext{
		ExtractedText: text,
		Answer:        p.Answer,
		Explanation:   p.Explanation,
		Image:         p.ImagePNG,
	}
}
