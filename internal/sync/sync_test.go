package sync

import (
	"testing"

	"github.com/dcmcore/engine/config"
)

// TestFrameRatioIndex_Scenario reproduces spec.md §8 scenario 4: master
// N=47, slave N=94.
func TestFrameRatioIndex_Scenario(t *testing.T) {
	cases := []struct{ m, want int }{
		{10, 20},
		{46, 92},
		{0, 0},
	}
	for _, c := range cases {
		if got := FrameRatioIndex(c.m, 47, 94); got != c.want {
			t.Errorf("FrameRatioIndex(%d, 47, 94) = %d, want %d", c.m, got, c.want)
		}
	}
}

func TestFrameRatioIndex_TieBreaks(t *testing.T) {
	if got := FrameRatioIndex(5, 10, 10); got != 5 {
		t.Errorf("identity map: got %d, want 5", got)
	}
	if got := FrameRatioIndex(5, 0, 10); got != 0 {
		t.Errorf("masterCount=0 pin: got %d, want 0", got)
	}
}

func TestSyncFromMaster(t *testing.T) {
	e := NewEngine()
	_, err := e.CreateSyncGroup(config.SyncOptions{
		MasterID: "m", SlaveIDs: []string{"s1"}, Mode: config.SyncFrameRatio,
	})
	if err != nil {
		t.Fatalf("CreateSyncGroup: %v", err)
	}

	counts := func(id string) (int, bool) {
		switch id {
		case "m":
			return 47, true
		case "s1":
			return 94, true
		}
		return 0, false
	}

	out := e.SyncFromMaster("m", 10, 0, counts)
	if out["s1"] != 20 {
		t.Fatalf("slave index = %d, want 20", out["s1"])
	}
}

func TestCreateSyncGroup_RejectsDoubleMembership(t *testing.T) {
	e := NewEngine()
	_, err := e.CreateSyncGroup(config.SyncOptions{MasterID: "m", SlaveIDs: []string{"s1"}})
	if err != nil {
		t.Fatalf("first CreateSyncGroup: %v", err)
	}
	_, err = e.CreateSyncGroup(config.SyncOptions{MasterID: "m2", SlaveIDs: []string{"s1"}})
	if err == nil {
		t.Fatalf("expected error re-using s1 as a slave in a second group")
	}
}
