package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultCameraGroup is used when camera_group is empty.
const DefaultCameraGroup = "CAMERA_CALIBRATION"

// CameraConfig holds pinhole intrinsics together with the image size they
// were calibrated at.
type CameraConfig struct {
	W  int     `json:"w"`
	H  int     `json:"h"`
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}

// DefaultCamera returns the intrinsics of a 320x240 calibration.
func DefaultCamera() CameraConfig {
	return CameraConfig{W: 320, H: 240, Fx: 257.34, Fy: 257.34, Cx: 160, Cy: 120}
}

// Validate checks the intrinsics are usable for projection.
func (c CameraConfig) Validate() error {
	if c.W <= 0 || c.H <= 0 {
		return fmt.Errorf("calibration size must be positive, got %dx%d", c.W, c.H)
	}
	if c.Fx <= 0 || c.Fy <= 0 {
		return fmt.Errorf("focal lengths must be positive, got fx=%f fy=%f", c.Fx, c.Fy)
	}
	return nil
}

// CameraFile is a set of named calibration groups, typically one per camera
// or per eye of a stereo head.
type CameraFile struct {
	Groups map[string]CameraConfig `json:"groups"`
}

// LoadCameraGroup reads a calibration file and returns the named group.
func LoadCameraGroup(path, group string) (CameraConfig, error) {
	if group == "" {
		group = DefaultCameraGroup
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return CameraConfig{}, fmt.Errorf("failed to read camera file: %w", err)
	}
	var f CameraFile
	if err := json.Unmarshal(data, &f); err != nil {
		return CameraConfig{}, fmt.Errorf("failed to parse camera file: %w", err)
	}
	cam, ok := f.Groups[group]
	if !ok {
		names := make([]string, 0, len(f.Groups))
		for name := range f.Groups {
			names = append(names, name)
		}
		sort.Strings(names)
		return CameraConfig{}, fmt.Errorf("camera group %q not found in %s (have %v)", group, path, names)
	}
	if err := cam.Validate(); err != nil {
		return CameraConfig{}, fmt.Errorf("camera group %q: %w", group, err)
	}
	return cam, nil
}
