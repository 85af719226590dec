package iterz

import "fmt"

// shortCircuitPlan is the planner's output: one (source index, can-move)
// pair per output position. A source index below the argument count selects
// a positional pulled argument; higher indices select captured values,
// offset by the argument count. The empty plan means "always invoke the
// executor".
//
// The plan is computed once at dataset construction and reused immutably
// by every pull of every iterator built from the node.
type shortCircuitPlan struct {
	indices []int
	canMove []bool
}

// empty reports whether the transformation must run through the executor.
func (p shortCircuitPlan) empty() bool { return len(p.indices) == 0 }

// planShortCircuit statically analyzes a declared output composition. If
// every output position is a direct, unmodified reference to a positional
// argument or a captured value, it returns a full plan covering every
// position; otherwise it returns the empty plan. Out-of-range references
// fail construction.
func planShortCircuit(outputs []OutputSource, numArgs, numCaptured int) (shortCircuitPlan, error) {
	if len(outputs) == 0 {
		return shortCircuitPlan{}, nil
	}

	indices := make([]int, len(outputs))
	for i, out := range outputs {
		switch out.Kind {
		case OutputComputed:
			// One computed position disables the whole plan.
			return shortCircuitPlan{}, nil
		case OutputArgument:
			if out.Index < 0 || out.Index >= numArgs {
				return shortCircuitPlan{}, fmt.Errorf("iterz: output %d references argument %d, want [0,%d)", i, out.Index, numArgs)
			}
			indices[i] = out.Index
		case OutputCaptured:
			if out.Index < 0 || out.Index >= numCaptured {
				return shortCircuitPlan{}, fmt.Errorf("iterz: output %d references captured value %d, want [0,%d)", i, out.Index, numCaptured)
			}
			indices[i] = numArgs + out.Index
		default:
			return shortCircuitPlan{}, fmt.Errorf("iterz: output %d has unknown kind %d", i, out.Kind)
		}
	}

	return shortCircuitPlan{indices: indices, canMove: computeMoveVector(indices)}, nil
}

// computeMoveVector marks the positions whose source index occurs exactly
// once across the plan. Only those positions may relocate their value; a
// value referenced by two or more positions is always duplicated so no
// position observes an already-relocated value.
func computeMoveVector(indices []int) []bool {
	uses := make(map[int]int, len(indices))
	for _, idx := range indices {
		uses[idx]++
	}
	canMove := make([]bool, len(indices))
	for i, idx := range indices {
		canMove[i] = uses[idx] == 1
	}
	return canMove
}
