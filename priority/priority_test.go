package priority

import "testing"

func TestPack_GreaterKeyIsHigherPriority(t *testing.T) {
	lowDistHighBand0 := Pack(255, 0, ClassLoad, DefaultBand3)
	highDistLowBand0 := Pack(0, 0, ClassLoad, DefaultBand3)
	if !(lowDistHighBand0 > highDistLowBand0) {
		t.Errorf("closer chunk (higher band0) must outrank farther one")
	}

	coarserLod := Pack(0, 3, ClassLoad, DefaultBand3)
	finerLod := Pack(0, 0, ClassLoad, DefaultBand3)
	if !(coarserLod > finerLod) {
		t.Errorf("higher band1 (coarser LOD) must outrank lower band1")
	}

	meshClass := Pack(0, 0, ClassMesh, DefaultBand3)
	saveClass := Pack(0, 0, ClassSave, DefaultBand3)
	if !(meshClass > saveClass) {
		t.Errorf("class constant must dominate band0/band1 when compared at band2")
	}
}

func TestPack_RoundTripsBandAccessors(t *testing.T) {
	k := Pack(200, 3, ClassMesh, 7)
	if k.Band0() != 200 {
		t.Errorf("band0 = %d, want 200", k.Band0())
	}
	if k.Band1() != 3 {
		t.Errorf("band1 = %d, want 3", k.Band1())
	}
	if k.Class() != ClassMesh {
		t.Errorf("class = %d, want %d", k.Class(), ClassMesh)
	}
	if k.Band3() != 7 {
		t.Errorf("band3 = %d, want 7", k.Band3())
	}
}

// TestDropOnDistance_Scenario3 exercises end-to-end scenario 3: a block at
// (32,0,0) LOD0 with drop_distance_squared = 16^2 and a viewer at the
// origin must be flagged too-far, since 32^2 = 1024 > 256.
func TestDropOnDistance_Scenario3(t *testing.T) {
	h := NewHandle()
	h.Replace([]Viewer{{ID: 1, LocalPos: [3]float64{0, 0, 0}}})

	_, distSq := Evaluate(h.Current(), [3]float64{32, 0, 0}, 0, ClassGenerate, 3)
	wantDistSq := 32.0 * 32.0
	if distSq != wantDistSq {
		t.Fatalf("expected distSq %v, got %v", wantDistSq, distSq)
	}
	dropDistSq := 16.0 * 16.0
	if !TooFar(distSq, dropDistSq) {
		t.Errorf("expected too-far at distSq=%v beyond drop_distance_squared=%v", distSq, dropDistSq)
	}
}

func TestClosestSquaredDistance_NoViewersIsInfinite(t *testing.T) {
	h := NewHandle()
	d, ok := ClosestSquaredDistance(h.Current(), [3]float64{0, 0, 0})
	if ok {
		t.Errorf("expected ok=false with no viewers")
	}
	if d <= 1e300 {
		t.Errorf("expected effectively infinite distance with no viewers, got %v", d)
	}
}
