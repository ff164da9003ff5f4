package storage

import (
	"testing"

	"github.com/rankforge/rankforge/internal/models"
)

func TestStrNull(t *testing.T) {
	// Unset variant fields must become NULL, not empty strings; a kill row
	// has no bomb_action and a bomb row has no weapon.
	if got := strNull(""); got != nil {
		t.Errorf("strNull(\"\") = %v, want nil", got)
	}
	if got := strNull("ak47"); got != "ak47" {
		t.Errorf("strNull(ak47) = %v", got)
	}
	if got := strNull(string(models.BombPlant)); got != "PLANT" {
		t.Errorf("strNull(PLANT) = %v", got)
	}
	if got := strNull(string(models.AssistType(""))); got != nil {
		t.Errorf("strNull(empty assist type) = %v, want nil", got)
	}
}

func TestZeroNull(t *testing.T) {
	if got := zeroNull(0); got != nil {
		t.Errorf("zeroNull(0) = %v, want nil", got)
	}
	if got := zeroNull(3); got != 3 {
		t.Errorf("zeroNull(3) = %v", got)
	}
}

func TestCoordVals(t *testing.T) {
	x, y, z := coordVals(nil)
	if x != nil || y != nil || z != nil {
		t.Errorf("coordVals(nil) = %v %v %v, want nils", x, y, z)
	}
	x, y, z = coordVals(&models.Coord{X: 100, Y: 200, Z: 64})
	if x != 100 || y != 200 || z != 64 {
		t.Errorf("coordVals = %v %v %v", x, y, z)
	}
}
