package ip

import (
	"math"
	"testing"

	"github.com/fiasco-codec/fiasco/wfa"
)

func TestAppendState_DCImageIsConstant(t *testing.T) {
	w := wfa.New()
	e := New(4, 3)
	e.AppendState(w, 0)

	img := e.Image(0)
	if len(img) != 16 { // 2^4 samples at ImagesLevel 4
		t.Fatalf("len = %d, want 16", len(img))
	}
	for i, v := range img {
		if v != 128 {
			t.Fatalf("sample %d = %v, want 128", i, v)
		}
	}
}

func TestAppendState_WeightedChildSum(t *testing.T) {
	w := wfa.New()
	e := New(4, 3)
	e.AppendState(w, 0)

	id, _ := w.AppendState(4, true, false)
	w.SetEdges(id, 0, []wfa.Transition{{Into: 0, Weight: 0.5}})
	w.SetEdges(id, 1, []wfa.Transition{{Into: 0, Weight: -0.25}})
	e.AppendState(w, id)

	img := e.Image(id)
	half := len(img) / 2
	for i := 0; i < half; i++ {
		if img[i] != 64 {
			t.Fatalf("label-0 sample %d = %v, want 64", i, img[i])
		}
	}
	for i := half; i < len(img); i++ {
		if img[i] != -32 {
			t.Fatalf("label-1 sample %d = %v, want -32", i, img[i])
		}
	}
}

func TestIPStateState_MatchesDirectDot(t *testing.T) {
	w := wfa.New()
	e := New(4, 3)
	e.AppendState(w, 0)

	id, _ := w.AppendState(4, true, false)
	w.SetEdges(id, 0, []wfa.Transition{{Into: 0, Weight: 0.5}})
	w.SetEdges(id, 1, []wfa.Transition{{Into: 0, Weight: 0.5}})
	e.AppendState(w, id)

	got := e.IPStateState(w, id, 0, 4)
	var want float64
	a, b := e.Image(id), e.Image(0)
	for i := range a {
		want += a[i] * b[i]
	}
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("ip = %v, want %v", got, want)
	}
}

func TestIPStateState_AboveImagesLevelRecurses(t *testing.T) {
	w := wfa.New()
	e := New(4, 3)
	e.AppendState(w, 0)

	// <DC,DC> at level 5 must equal the sum over both unit self-loop
	// labels of <DC,DC> at level 4.
	atImages := e.IPStateState(w, 0, 0, 4)
	above := e.IPStateState(w, 0, 0, 5)
	if math.Abs(above-2*atImages) > 1e-9 {
		t.Fatalf("level-5 ip = %v, want %v", above, 2*atImages)
	}
}

func TestRefreshImageState_CachesDotProducts(t *testing.T) {
	w := wfa.New()
	e := New(4, 3)
	e.AppendState(w, 0)

	rangeImage := make([]float64, 16)
	for i := range rangeImage {
		rangeImage[i] = float64(i)
	}
	e.RefreshImageState(w, rangeImage)

	var want float64
	for _, v := range rangeImage {
		want += v * 128
	}
	if got := e.IPImageState(0); math.Abs(got-want) > 1e-9 {
		t.Fatalf("image-state ip = %v, want %v", got, want)
	}
}
