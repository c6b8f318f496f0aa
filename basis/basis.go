// Package basis embeds the codec's initial-basis constant table: a
// small, fixed WFA fragment (2 states, a handful of transitions) linked
// into the binary as a Go literal rather than read from a file. The
// FIASCO_DATA environment-variable override for loading an alternate
// basis file from disk is handled by package imageio, which is where the
// rest of the codec's file-path resolution already lives.
package basis

// State is one entry of the embedded initial basis: a final
// distribution and, for each label, the transitions out of this state
// expressed against the basis's own state ids (state 0 is always the DC
// state with self-loops, matching wfa.New's bootstrap).
type State struct {
	Final    float64
	Edges    [2][]Edge // per label
}

// Edge is a (into, weight) pair within the embedded basis, using basis-
// local state ids.
type Edge struct {
	Into   int
	Weight float64
}

// Default is the built-in 2-state initial basis: state 0 is the DC
// constant (final=128, unit self-loops on both labels); state 1 is a
// mean-zero step function (+64 on label 0, -64 on label 1) seeded so
// the very first range already has a non-constant domain to project
// onto. Both states satisfy the average-preserving invariant:
// final(1) = (0.5*128 - 0.5*128)/2 = 0.
var Default = []State{
	{
		Final: 128,
		Edges: [2][]Edge{
			{{Into: 0, Weight: 1.0}},
			{{Into: 0, Weight: 1.0}},
		},
	},
	{
		Final: 0,
		Edges: [2][]Edge{
			{{Into: 0, Weight: 0.5}},
			{{Into: 0, Weight: -0.5}},
		},
	},
}

// Name is the initial-basis identifier written/read in the binfile
// header's null-terminated basis-name field.
const Name = "default"
