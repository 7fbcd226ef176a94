package runloop

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// VerificationResult records one verification attempt over a candidate
// response.
type VerificationResult struct {
	QualityScore  float64 `json:"quality_score"`
	Passed        bool    `json:"passed"`
	Feedback      string  `json:"feedback,omitempty"`
	AttemptNumber int     `json:"attempt_number"`
}

// Verifier scores candidate responses through a judge and applies the
// quality threshold. Judge outages fail open by default so a broken judge
// never blocks delivery; hosts that would rather withhold unverified output
// set failClosed.
type Verifier struct {
	judge      Judge
	threshold  float64
	failClosed bool
	log        *zap.Logger
}

// NewVerifier creates a Verifier. A nil judge behaves like a permanently
// unavailable one.
func NewVerifier(judge Judge, threshold float64, failClosed bool, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{judge: judge, threshold: threshold, failClosed: failClosed, log: log}
}

// Verify scores the response and reports whether it clears the threshold.
// The attempt number is recorded verbatim into the result.
func (v *Verifier) Verify(ctx context.Context, response, contextText string, attempt int) VerificationResult {
	if v.judge == nil {
		return v.unavailable(attempt, nil)
	}

	judgment, err := v.judge.Judge(ctx, response, contextText)
	if err != nil {
		return v.unavailable(attempt, err)
	}

	score := judgment.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return VerificationResult{
		QualityScore:  score,
		Passed:        score >= v.threshold,
		Feedback:      judgment.Feedback,
		AttemptNumber: attempt,
	}
}

func (v *Verifier) unavailable(attempt int, err error) VerificationResult {
	v.log.Warn("verification unavailable",
		zap.Bool("fail_closed", v.failClosed),
		zap.Error(err))
	return VerificationResult{
		Passed:        !v.failClosed,
		Feedback:      "verification unavailable",
		AttemptNumber: attempt,
	}
}

// RefinementController owns the generate, verify, refine sub-loop. It asks
// the generator for a response, verifies it, and on failure feeds the judge's
// feedback back into another generation, up to maxAttempts. Exhausting
// attempts delivers the last candidate flagged as degraded rather than
// failing the turn.
type RefinementController struct {
	gen         Generator
	verifier    *Verifier
	maxAttempts int
	emitter     *EventEmitter
	log         *zap.Logger

	// transition, when set, is called as the controller moves between the
	// generation and verification phases so the owning loop can track state.
	transition func(Phase)
}

// NewRefinementController creates a controller with the given attempt budget.
func NewRefinementController(gen Generator, verifier *Verifier, maxAttempts int, emitter *EventEmitter, log *zap.Logger) *RefinementController {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RefinementController{
		gen:         gen,
		verifier:    verifier,
		maxAttempts: maxAttempts,
		emitter:     emitter,
		log:         log,
	}
}

// Produce runs the bounded generate and verify cycle. messages is the history
// to respond to and contextText is what the judge sees alongside each
// candidate. It returns the delivered text, the final verification result,
// the number of attempts used, and whether the delivery is degraded.
//
// A generation failure on the first attempt is a hard error; on later
// attempts the previous candidate is delivered degraded instead, since a
// flawed response beats none.
func (r *RefinementController) Produce(ctx context.Context, messages []Message, contextText string) (string, VerificationResult, int, bool, error) {
	var (
		text         string
		verification VerificationResult
		instructions string
	)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		r.setPhase(PhaseGenerateResponse)

		candidate, err := r.gen.Generate(ctx, messages, instructions)
		if err != nil {
			if attempt == 1 {
				return "", VerificationResult{}, attempt, false, fmt.Errorf("generate response: %w", err)
			}
			r.log.Warn("refinement generation failed, delivering previous candidate",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return text, verification, attempt, true, nil
		}
		text = candidate

		r.setPhase(PhaseVerify)
		verification = r.verifier.Verify(ctx, text, contextText, attempt)
		if r.emitter != nil {
			r.emitter.Emit(EventVerification, map[string]interface{}{
				"attempt": attempt,
				"score":   verification.QualityScore,
				"passed":  verification.Passed,
			})
		}
		if verification.Passed {
			return text, verification, attempt, false, nil
		}
		if ctx.Err() != nil {
			return text, verification, attempt, true, ctx.Err()
		}
		if attempt == r.maxAttempts {
			break
		}

		r.setPhase(PhaseRefine)
		if r.emitter != nil {
			r.emitter.Emit(EventRefinement, map[string]interface{}{
				"attempt":  attempt,
				"feedback": verification.Feedback,
			})
		}
		instructions = refinementInstructions(text, verification.Feedback)
	}

	r.log.Info("refinement budget exhausted, delivering degraded response",
		zap.Int("attempts", r.maxAttempts),
		zap.Float64("score", verification.QualityScore))
	if r.emitter != nil {
		r.emitter.Emit(EventDegraded, map[string]interface{}{
			"attempts": r.maxAttempts,
			"score":    verification.QualityScore,
		})
	}
	return text, verification, r.maxAttempts, true, nil
}

func (r *RefinementController) setPhase(p Phase) {
	if r.transition != nil {
		r.transition(p)
	}
}

// refinementInstructions builds the steering text for the next generation
// attempt from the rejected candidate and the judge's feedback.
func refinementInstructions(previous, feedback string) string {
	if feedback == "" {
		feedback = "The previous response did not meet the quality bar. Improve accuracy and completeness."
	}
	return fmt.Sprintf(
		"Your previous response was reviewed and needs improvement.\n\nPrevious response:\n%s\n\nReviewer feedback:\n%s\n\nProduce an improved response that addresses the feedback.",
		previous, feedback)
}
