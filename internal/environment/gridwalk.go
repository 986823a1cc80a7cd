package environment

// GridWalk is a 2-D ASCII track of wall/track/start/finish cells, with a
// fixed (x,y) position as its state. It exists only to exercise
// policy.BinarySwap: the observation is a one-hot bit vector over every
// track cell (1 at the walker's current cell), and BinarySwap's flipped-bit
// action proposes a new cell to move into. A proposed cell that isn't
// 4-adjacent to the current one, or that is a wall, is a collision: the
// walker stays put and is penalized.
const (
	GridWall   = 'W'
	GridTrack  = 'o'
	GridStart  = '-'
	GridFinish = '+'
)

const (
	StepReward      = -1
	CollisionReward = -5
	FinishReward    = 10
)

type GridWalk struct {
	Track  []string // row 0 is the top row, as printed
	Width  int
	Height int
}

func NewGridWalk(track []string) *GridWalk {
	return &GridWalk{Track: track, Width: len(track[0]), Height: len(track)}
}

func (g *GridWalk) cell(x, y int) byte {
	if x < 0 || x >= g.Width || y < 0 || y >= g.Height {
		return GridWall
	}
	return g.Track[y][x]
}

func (g *GridWalk) index(x, y int) int { return y*g.Width + x }

func (g *GridWalk) observ(x, y int) []float64 {
	obs := make([]float64, g.Width*g.Height)
	obs[g.index(x, y)] = 1
	return obs
}

type gridPos struct{ X, Y int }

func (g *GridWalk) startPos() gridPos {
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.cell(x, y) == GridStart {
				return gridPos{X: x, Y: y}
			}
		}
	}
	return gridPos{X: 0, Y: 0}
}

func (g *GridWalk) Reset(batchSize int) (ResetResult, error) {
	start := g.startPos()
	return ResetResult{
		State:  start,
		Observ: g.observ(start.X, start.Y),
	}, nil
}

func (g *GridWalk) MakeTransitions(req TransitionRequest) (TransitionResult, error) {
	n := len(req.States)
	out := TransitionResult{
		States:    make([]any, n),
		Observs:   make([][]float64, n),
		Rewards:   make([]float32, n),
		Oobs:      make([]bool, n),
		Terminals: make([]bool, n),
	}
	for i := 0; i < n; i++ {
		pos := req.States[i].(gridPos)
		idx := pos.X
		if flipped, ok := req.Actions[i].([]int); ok && len(flipped) > 0 {
			idx = flipped[0]
		}
		tx, ty := idx%g.Width, idx/g.Width

		adjacent := abs(tx-pos.X)+abs(ty-pos.Y) == 1
		cell := g.cell(tx, ty)
		switch {
		case !adjacent || cell == GridWall:
			out.States[i] = pos
			out.Rewards[i] = CollisionReward
		case cell == GridFinish:
			out.States[i] = gridPos{X: tx, Y: ty}
			out.Rewards[i] = FinishReward
			out.Terminals[i] = true
		default:
			out.States[i] = gridPos{X: tx, Y: ty}
			out.Rewards[i] = StepReward
		}
		next := out.States[i].(gridPos)
		out.Observs[i] = g.observ(next.X, next.Y)
	}
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
