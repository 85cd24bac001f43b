package inference

import "strings"

// Default class sets for forensic post-filters. Filtering is a pure pass
// over detector output by class name, not a separate model.
var (
	DefaultWeaponClasses  = []string{"knife", "gun", "rifle", "pistol"}
	DefaultVehicleClasses = []string{"car", "truck", "bus", "motorcycle", "bicycle"}
)

// ClassSet is a case-insensitive membership set of object class names.
type ClassSet map[string]struct{}

func NewClassSet(classes []string) ClassSet {
	set := make(ClassSet, len(classes))
	for _, c := range classes {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}

func (s ClassSet) Contains(class string) bool {
	_, ok := s[strings.ToLower(class)]
	return ok
}

// FilterByClass keeps only detections whose class is in the set.
func FilterByClass(detections []Detection, classes ClassSet) []Detection {
	filtered := make([]Detection, 0, len(detections))
	for _, det := range detections {
		if classes.Contains(det.Class) {
			filtered = append(filtered, det)
		}
	}
	return filtered
}
