package environment

// TwoArmBandit is a reference environment: action 1 pays reward 1, action 0
// pays reward 0. State is simply the cumulative step count, so at any given
// epoch every walker holds the same state and the same id_walkers hash.
type TwoArmBandit struct {
	MaxSteps int
}

func NewTwoArmBandit(maxSteps int) *TwoArmBandit {
	return &TwoArmBandit{MaxSteps: maxSteps}
}

func (b *TwoArmBandit) Reset(batchSize int) (ResetResult, error) {
	return ResetResult{
		State:  0,
		Observ: []float64{0},
	}, nil
}

func (b *TwoArmBandit) MakeTransitions(req TransitionRequest) (TransitionResult, error) {
	n := len(req.States)
	out := TransitionResult{
		States:    make([]any, n),
		Observs:   make([][]float64, n),
		Rewards:   make([]float32, n),
		Oobs:      make([]bool, n),
		Terminals: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		step := req.States[i].(int) + 1
		out.States[i] = step
		out.Observs[i] = []float64{float64(step)}
		if req.Actions[i].(int) == 1 {
			out.Rewards[i] = 1
		}
		out.Terminals[i] = step >= b.MaxSteps
	}
	return out, nil
}
