package flow

// Skip marks optional steps that should be left out of a sequence.
type Skip struct {
	Rewards  bool `json:"rewards"`
	Delegate bool `json:"delegate"`
}

var (
	editSteps    = []Step{StepEntry, StepRewards, StepDelegate, StepSummary}
	migrateSteps = []Step{StepEntry, StepRewards, StepDelegate, StepSummary, StepAuthorizeOld, StepMigrate}
	claimSteps   = []Step{StepSummary}
)

func baseSteps(f Flow) []Step {
	switch f {
	case FlowMigrate:
		return migrateSteps
	case FlowClaim:
		return claimSteps
	default:
		return editSteps
	}
}

// Sequence returns the ordered steps for a flow after removing skipped ones.
func Sequence(f Flow, skip Skip) []Step {
	base := baseSteps(f)
	out := make([]Step, 0, len(base))
	for _, s := range base {
		if s == StepRewards && skip.Rewards {
			continue
		}
		if s == StepDelegate && skip.Delegate {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Sequencer answers position queries over one filtered sequence. It is a
// value type and safe to copy.
type Sequencer struct {
	flow  Flow
	steps []Step
}

func NewSequencer(f Flow, skip Skip) Sequencer {
	return Sequencer{flow: f, steps: Sequence(f, skip)}
}

func (s Sequencer) Flow() Flow { return s.flow }

func (s Sequencer) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

func (s Sequencer) First() Step {
	if len(s.steps) == 0 {
		return StepSummary
	}
	return s.steps[0]
}

func (s Sequencer) Last() Step {
	if len(s.steps) == 0 {
		return StepSummary
	}
	return s.steps[len(s.steps)-1]
}

func (s Sequencer) Contains(step Step) bool {
	return s.indexOf(step) >= 0
}

func (s Sequencer) indexOf(step Step) int {
	for i, st := range s.steps {
		if st == step {
			return i
		}
	}
	return -1
}

// Next returns the step after cur. At the end of the sequence it returns the
// last step, so repeated calls are idempotent. The last step is not always
// StepSummary: the migrate flow ends on StepMigrate. Unknown steps map to
// First.
func (s Sequencer) Next(cur Step) Step {
	i := s.indexOf(cur)
	if i < 0 {
		return s.First()
	}
	if i >= len(s.steps)-1 {
		return s.Last()
	}
	return s.steps[i+1]
}

// Previous returns the step before cur, or the first step at the start.
func (s Sequencer) Previous(cur Step) Step {
	i := s.indexOf(cur)
	if i <= 0 {
		return s.First()
	}
	return s.steps[i-1]
}

// Index is the 1-based position of cur; unknown steps report 1.
func (s Sequencer) Index(cur Step) int {
	i := s.indexOf(cur)
	if i < 0 {
		return 1
	}
	return i + 1
}

func (s Sequencer) Total() int { return len(s.steps) }

// Resolve maps a step that is no longer part of the sequence (because a skip
// flag changed) to the next surviving step in base order.
func (s Sequencer) Resolve(cur Step) Step {
	if s.Contains(cur) {
		return cur
	}
	base := baseSteps(s.flow)
	seen := false
	for _, st := range base {
		if st == cur {
			seen = true
			continue
		}
		if seen && s.Contains(st) {
			return st
		}
	}
	if seen {
		return s.Last()
	}
	return s.First()
}

func NextStep(f Flow, skip Skip, cur Step) Step {
	return NewSequencer(f, skip).Next(cur)
}

func PreviousStep(f Flow, skip Skip, cur Step) Step {
	return NewSequencer(f, skip).Previous(cur)
}

func StepIndex(cur Step, f Flow, skip Skip) int {
	return NewSequencer(f, skip).Index(cur)
}

func TotalSteps(f Flow, skip Skip) int {
	return NewSequencer(f, skip).Total()
}
