package host

import (
	"errors"
	"testing"
)

func TestDefaultScene(t *testing.T) {
	s := NewDefaultScene()
	objs := s.Objects()
	if len(objs) != 3 {
		t.Fatalf("Expected 3 default objects, got %d", len(objs))
	}
	if s.Active() == nil || s.Active().Name != "Cube" {
		t.Errorf("Expected Cube to be active")
	}
}

func TestAddObjectUniqueNames(t *testing.T) {
	s := NewScene("test")
	a, _ := s.AddObject("mesh", "", [3]float64{})
	b, _ := s.AddObject("MESH", "", [3]float64{})
	c, _ := s.AddObject("MESH", "Cube", [3]float64{})

	names := []string{a.Name, b.Name, c.Name}
	want := []string{"Cube", "Cube.001", "Cube.002"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %s, got %s", want[i], names[i])
		}
	}
	if s.Active().Name != "Cube.002" {
		t.Errorf("Expected newest object to be active, got %s", s.Active().Name)
	}
}

func TestAddObjectInvalidType(t *testing.T) {
	s := NewScene("test")
	if _, err := s.AddObject("TEAPOT", "x", [3]float64{}); !errors.Is(err, ErrInvalidObjectType) {
		t.Fatalf("Expected ErrInvalidObjectType, got %v", err)
	}
}

func TestRemoveAndSelect(t *testing.T) {
	s := NewDefaultScene()

	if err := s.Select([]string{"Light", "Camera"}); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	sel := s.Selected()
	if len(sel) != 2 || sel[0].Name != "Camera" || sel[1].Name != "Light" {
		t.Errorf("Unexpected selection: %+v", sel)
	}
	if s.Active().Name != "Light" {
		t.Errorf("Expected Light active, got %s", s.Active().Name)
	}

	if err := s.RemoveObject("Light"); err != nil {
		t.Fatalf("RemoveObject failed: %v", err)
	}
	if s.Active() != nil {
		t.Error("Expected no active object after removing it")
	}
	if len(s.Selected()) != 1 {
		t.Errorf("Expected removed object to leave the selection")
	}
	if err := s.RemoveObject("Light"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got %v", err)
	}
	if err := s.Select([]string{"Nope"}); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestSetFrame(t *testing.T) {
	s := NewScene("test")
	if err := s.SetFrame(100); err != nil {
		t.Fatalf("SetFrame failed: %v", err)
	}
	if s.Frame != 100 {
		t.Errorf("Expected frame 100, got %d", s.Frame)
	}
	if err := s.SetFrame(0); !errors.Is(err, ErrFrameOutOfRange) {
		t.Errorf("Expected ErrFrameOutOfRange, got %v", err)
	}
}
