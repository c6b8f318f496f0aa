package bitstream

import (
	"fmt"

	"github.com/fiasco-codec/fiasco/acoder"
	"github.com/fiasco-codec/fiasco/bitio"
	"github.com/fiasco-codec/fiasco/fiascoerr"
	"github.com/fiasco-codec/fiasco/wfa"
)

// Initial counts of the tree block's binary model: one "leaf" count
// out of eleven total.
var treeInitCounts = []int{1, 10}

// writeTree emits the bintree in breadth-first order, one bit per
// (state,label) slot: '1' for a child state, '0' for a range leaf, coded
// with an adaptive binary arithmetic model whose counts are rescaled once
// their total exceeds total/20 (a static model when total/20 is 0).
func writeTree(w *bitio.Writer, f *Frame) {
	total := (f.WFA.NumStates() - f.BasisStates) * wfa.MaxLabels
	model := acoder.NewModel(2, total/20, 0, treeInitCounts)
	enc := acoder.NewEncoder(w)

	queue := []int{f.RootState}
	for qi := 0; qi < len(queue); qi++ {
		for label := 0; label < wfa.MaxLabels; label++ {
			child := f.WFA.States[queue[qi]].Children[label].TreeChild
			if child != wfa.Range {
				enc.EncodeSymbol(1, model)
				queue = append(queue, child)
			} else {
				enc.EncodeSymbol(0, model)
			}
		}
	}
	enc.Flush()
}

// readTree decodes the breadth-first tree bitstring, rebuilds the node
// tree, and renumbers it depth-first (post-order) so state ids match
// the encoder's commit order: children before parents, label 0 subtree
// first, root last. The renumbering is bijective with the encoder's
// traversal.
func readTree(r *bitio.Reader, h *Header, w *wfa.WFA, states, basisStates int) (root int, err error) {
	total := (states - basisStates) * wfa.MaxLabels
	if total <= 0 {
		return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readTree",
			fmt.Errorf("state count %d not above basis %d", states, basisStates))
	}

	bits := make([]byte, total)
	model := acoder.NewModel(2, total/20, 0, treeInitCounts)
	dec := acoder.NewDecoder(r)
	for i := range bits {
		bits[i] = byte(dec.DecodeSymbol(model))
	}
	dec.Finish()

	// Rebuild the BFO node tree: node n's children are numbered in the
	// order their '1' bits appear.
	type node struct{ child [wfa.MaxLabels]int }
	nodes := make([]node, states-basisStates)
	next := 1
	bi := 0
	for n := 0; n < next; n++ {
		for label := 0; label < wfa.MaxLabels; label++ {
			if bi >= total {
				return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readTree",
					fmt.Errorf("tree bitstring exhausted"))
			}
			if bits[bi] != 0 {
				if next >= len(nodes) {
					return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readTree",
						fmt.Errorf("tree has more nodes than header states"))
				}
				nodes[n].child[label] = next
				next++
			} else {
				nodes[n].child[label] = wfa.Range
			}
			bi++
		}
	}
	if next != states-basisStates {
		return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readTree",
			fmt.Errorf("tree has %d nodes, header promises %d", next, states-basisStates))
	}

	imageLevel := wfa.LevelOfImage(h.Width, h.Height)

	var restore func(src int, level uint, x, y int) (int, error)
	restore = func(src int, level uint, x, y int) (int, error) {
		var childID [wfa.MaxLabels]int
		var cx, cy [wfa.MaxLabels]int
		if level > imageLevel {
			// Chroma join states: band roots restart at the origin.
			cx[0], cy[0], cx[1], cy[1] = 0, 0, 0, 0
		} else {
			cx[0], cy[0] = x, y
			if level%2 == 0 {
				cx[1], cy[1] = x+wfa.WidthOfLevel(level-1), y
			} else {
				cx[1], cy[1] = x, y+wfa.HeightOfLevel(level-1)
			}
		}
		for label := 0; label < wfa.MaxLabels; label++ {
			if c := nodes[src].child[label]; c != wfa.Range {
				if level == 0 {
					return 0, fiascoerr.New(fiascoerr.FormatInvalid, "bitstream.readTree",
						fmt.Errorf("tree deeper than image level"))
				}
				id, err := restore(c, level-1, cx[label], cy[label])
				if err != nil {
					return 0, err
				}
				childID[label] = id
			} else {
				childID[label] = wfa.Range
			}
		}
		id, err := w.AppendState(level, true, false)
		if err != nil {
			return 0, err
		}
		for label := 0; label < wfa.MaxLabels; label++ {
			w.States[id].Children[label].TreeChild = childID[label]
			w.States[id].Children[label].X = cx[label]
			w.States[id].Children[label].Y = cy[label]
		}
		return id, nil
	}

	return restore(0, h.ImageLevel(), 0, 0)
}
