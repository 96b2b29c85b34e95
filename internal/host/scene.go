package host

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrObjectNotFound is returned for unknown object names
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidObjectType is returned for unsupported object types
	ErrInvalidObjectType = errors.New("invalid object type")
	// ErrFrameOutOfRange is returned when setting a frame outside the scene range
	ErrFrameOutOfRange = errors.New("frame out of range")
)

// ObjectTypes lists the object kinds a scene can hold
var ObjectTypes = []string{"MESH", "CAMERA", "LIGHT", "EMPTY", "CURVE"}

// Object is one entity in the scene
type Object struct {
	Name     string
	Type     string
	Location [3]float64
	Visible  bool
}

// Scene is state owned by the host loop. It is not safe for concurrent use:
// access it only from tasks scheduled on the Loop.
type Scene struct {
	Name       string
	Frame      int
	FrameStart int
	FrameEnd   int

	objects   map[string]*Object
	order     []string
	selection map[string]bool
	active    string
}

// NewScene creates an empty scene
func NewScene(name string) *Scene {
	return &Scene{
		Name:       name,
		Frame:      1,
		FrameStart: 1,
		FrameEnd:   250,
		objects:    make(map[string]*Object),
		selection:  make(map[string]bool),
	}
}

// NewDefaultScene creates the startup scene: a camera, a light and a cube
func NewDefaultScene() *Scene {
	s := NewScene("Scene")
	_, _ = s.AddObject("CAMERA", "Camera", [3]float64{7.36, -6.93, 4.96})
	_, _ = s.AddObject("LIGHT", "Light", [3]float64{4.08, 1.01, 5.9})
	_, _ = s.AddObject("MESH", "Cube", [3]float64{})
	return s
}

// AddObject inserts an object and makes it active and selected. An empty or
// taken name is replaced with a unique one derived from the type.
func (s *Scene) AddObject(objType, name string, loc [3]float64) (*Object, error) {
	objType = strings.ToUpper(strings.TrimSpace(objType))
	if !validType(objType) {
		return nil, fmt.Errorf("%w: %q (expected one of %s)", ErrInvalidObjectType, objType, strings.Join(ObjectTypes, ", "))
	}
	if name == "" {
		name = defaultName(objType)
	}
	name = s.uniqueName(name)

	obj := &Object{Name: name, Type: objType, Location: loc, Visible: true}
	s.objects[name] = obj
	s.order = append(s.order, name)
	s.selection = map[string]bool{name: true}
	s.active = name
	return obj, nil
}

// RemoveObject deletes an object by name
func (s *Scene) RemoveObject(name string) error {
	if _, ok := s.objects[name]; !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	delete(s.objects, name)
	delete(s.selection, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.active == name {
		s.active = ""
	}
	return nil
}

// Object returns an object by name
func (s *Scene) Object(name string) (*Object, error) {
	obj, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	return obj, nil
}

// Objects returns every object in creation order
func (s *Scene) Objects() []*Object {
	out := make([]*Object, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.objects[name])
	}
	return out
}

// Select replaces the selection. The first name becomes active.
func (s *Scene) Select(names []string) error {
	for _, name := range names {
		if _, ok := s.objects[name]; !ok {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
	}
	s.selection = make(map[string]bool, len(names))
	for _, name := range names {
		s.selection[name] = true
	}
	if len(names) > 0 {
		s.active = names[0]
	}
	return nil
}

// Selected returns selected objects sorted by name
func (s *Scene) Selected() []*Object {
	names := make([]string, 0, len(s.selection))
	for name := range s.selection {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Object, 0, len(names))
	for _, name := range names {
		out = append(out, s.objects[name])
	}
	return out
}

// Active returns the active object, or nil
func (s *Scene) Active() *Object {
	return s.objects[s.active]
}

// SetFrame moves the playhead within the scene range
func (s *Scene) SetFrame(frame int) error {
	if frame < s.FrameStart || frame > s.FrameEnd {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrFrameOutOfRange, frame, s.FrameStart, s.FrameEnd)
	}
	s.Frame = frame
	return nil
}

// CountByType returns the number of objects per type
func (s *Scene) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, obj := range s.objects {
		counts[obj.Type]++
	}
	return counts
}

func (s *Scene) uniqueName(base string) string {
	if _, taken := s.objects[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", base, i)
		if _, taken := s.objects[candidate]; !taken {
			return candidate
		}
	}
}

func validType(t string) bool {
	for _, known := range ObjectTypes {
		if t == known {
			return true
		}
	}
	return false
}

func defaultName(objType string) string {
	switch objType {
	case "MESH":
		return "Cube"
	case "CAMERA":
		return "Camera"
	case "LIGHT":
		return "Light"
	case "CURVE":
		return "Curve"
	default:
		return "Empty"
	}
}
