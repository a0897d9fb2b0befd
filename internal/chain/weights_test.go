package chain

import "testing"

func TestConvertWeightsAndUidsForEmit(t *testing.T) {
	uids := []int64{1, 2, 3}
	weights := []float64{0.5, 1.0, 0.0}

	gotUids, gotVals, err := ConvertWeightsAndUidsForEmit(uids, weights)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Zero-weight uid 3 is dropped; the max weight maps to U16MAX.
	if len(gotUids) != 2 || gotUids[0] != 1 || gotUids[1] != 2 {
		t.Fatalf("unexpected uids: %v", gotUids)
	}
	if gotVals[1] != U16MAX {
		t.Fatalf("expected max weight to map to %d, got %d", U16MAX, gotVals[1])
	}
	if gotVals[0] != U16MAX/2+1 { // round(0.5 * 65535)
		t.Fatalf("expected half weight to map to %d, got %d", U16MAX/2+1, gotVals[0])
	}
}

func TestConvertWeightsAllZero(t *testing.T) {
	gotUids, gotVals, err := ConvertWeightsAndUidsForEmit([]int64{1, 2}, []float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotUids) != 0 || len(gotVals) != 0 {
		t.Fatalf("expected empty emit for all-zero weights, got %v %v", gotUids, gotVals)
	}
}

func TestConvertWeightsRejectsNegative(t *testing.T) {
	if _, _, err := ConvertWeightsAndUidsForEmit([]int64{1}, []float64{-0.1}); err == nil {
		t.Fatal("expected error for negative weight")
	}
	if _, _, err := ConvertWeightsAndUidsForEmit([]int64{-1}, []float64{0.1}); err == nil {
		t.Fatal("expected error for negative uid")
	}
}

func TestConvertWeightsLengthMismatch(t *testing.T) {
	if _, _, err := ConvertWeightsAndUidsForEmit([]int64{1, 2}, []float64{0.1}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}
