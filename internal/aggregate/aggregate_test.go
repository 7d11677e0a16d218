package aggregate

import "testing"

func almostEqual(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-4
}

func TestSingleElementAgreement(t *testing.T) {
	scores := []float32{0.42}
	for _, strat := range []Strategy{Max, Mean, WeightedMean, TopKMean} {
		got := Aggregate(strat, scores, 3)
		if !almostEqual(got, 0.42) {
			t.Errorf("%s([0.42]) = %v, want 0.42", strat, got)
		}
	}
}

func TestMaxAtLeastMean(t *testing.T) {
	scores := []float32{0.1, 0.9, 0.3, 0.5}
	max := Aggregate(Max, scores, 3)
	mean := Aggregate(Mean, scores, 3)
	if max < mean {
		t.Errorf("expected max (%v) >= mean (%v)", max, mean)
	}
}

func TestAggregationSelection(t *testing.T) {
	scores := []float32{0.9, 0.8, 0.7, 0.1}

	if got := Aggregate(Max, scores, 3); !almostEqual(got, 0.9) {
		t.Errorf("max = %v, want 0.9", got)
	}
	if got := Aggregate(Mean, scores, 3); !almostEqual(got, 0.625) {
		t.Errorf("mean = %v, want 0.625", got)
	}
	if got := Aggregate(TopKMean, scores, 3); !almostEqual(got, 0.8) {
		t.Errorf("top_k_mean(k=3) = %v, want 0.8", got)
	}
	if got := Aggregate(WeightedMean, scores, 3); !almostEqual(got, 0.78) {
		t.Errorf("weighted_mean = %v, want 0.78", got)
	}
}

func TestWeightedMeanAllZero(t *testing.T) {
	got := Aggregate(WeightedMean, []float32{0, 0, 0}, 3)
	if got != 0 {
		t.Errorf("expected 0 for all-zero input, got %v", got)
	}
}

func TestTopKMeanClampsToLength(t *testing.T) {
	scores := []float32{0.5, 0.9}
	got := Aggregate(TopKMean, scores, 5)
	want := Aggregate(Mean, scores, 5)
	if !almostEqual(got, want) {
		t.Errorf("expected top_k_mean with k>n to equal mean, got %v want %v", got, want)
	}
}

func TestTopKMeanNonIncreasingWithSmallerAddition(t *testing.T) {
	base := []float32{0.9, 0.8, 0.7}
	before := Aggregate(TopKMean, base, 3)

	withSmaller := append(append([]float32{}, base...), 0.2)
	after := Aggregate(TopKMean, withSmaller, 3)

	if after > before {
		t.Errorf("adding a value no greater than the k-th largest must not increase top_k_mean: before=%v after=%v", before, after)
	}
}

func TestCosineToScoreClamps(t *testing.T) {
	cases := []struct {
		cosine float32
		want   float32
	}{
		{1, 1},
		{-1, 0},
		{0, 0.5},
	}
	for _, c := range cases {
		if got := CosineToScore(c.cosine); !almostEqual(got, c.want) {
			t.Errorf("CosineToScore(%v) = %v, want %v", c.cosine, got, c.want)
		}
	}
}

func TestAggregatePanicsOnEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on empty scores")
		}
	}()
	Aggregate(Max, nil, 3)
}

func TestValid(t *testing.T) {
	for _, s := range []Strategy{Max, Mean, WeightedMean, TopKMean} {
		if !Valid(s) {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if Valid("bogus") {
		t.Error("expected bogus strategy to be invalid")
	}
}
