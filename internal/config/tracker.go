package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tracker defaults file.
const DefaultConfigPath = "config/tracker.defaults.json"

// Recognised option values. Only the first entry of each group is implemented.
const (
	InitMethod3DEstimate = "3dEstimate"
	InitMethod2DEstimate = "2dEstimate"
	InitMethodSearch     = "search"

	ProjectionPerspective  = "perspective"
	ProjectionEquidistance = "equidistance"
	ProjectionUnified      = "unified"

	ObjectSphere        = "sphere"
	ObjectParallelogram = "parallelogram"

	ColorPolicyLUT    = "lut"
	ColorPolicyDirect = "direct"
)

// maxHistogramCells bounds y_bins*u_bins*v_bins so a cell index fits a uint16.
const maxHistogramCells = 1 << 16

// TrackerConfig is the root configuration of the tracker. Fields omitted from
// the JSON file keep their defaults through the Get* accessors, so partial
// configs are safe.
type TrackerConfig struct {
	// Filter
	NParticles            *int     `json:"n_particles,omitempty"`
	AccelStdDevMM         *float64 `json:"accel_stdev_mm,omitempty"`
	InsideOutsideWeight   *float64 `json:"inside_outside_weight,omitempty"`
	LikelihoodThreshold   *float64 `json:"likelihood_threshold,omitempty"`
	MinResampleLikelihood *float64 `json:"min_resample_likelihood,omitempty"`
	Seed                  *uint64  `json:"seed,omitempty"`

	// Attention output
	AttentionOutputMax      *float64 `json:"attention_output_max,omitempty"`
	AttentionOutputDecrease *float64 `json:"attention_output_decrease,omitempty"`

	// Color model
	YBins       *int    `json:"y_bins,omitempty"`
	UBins       *int    `json:"u_bins,omitempty"`
	VBins       *int    `json:"v_bins,omitempty"`
	ColorPolicy *string `json:"color_policy,omitempty"`

	// Initial estimate, metres
	InitialXM *float64 `json:"initial_x_m,omitempty"`
	InitialYM *float64 `json:"initial_y_m,omitempty"`
	InitialZM *float64 `json:"initial_z_m,omitempty"`

	InitializationMethod *string `json:"initialization_method,omitempty"`
	ProjectionModel      *string `json:"projection_model,omitempty"`
	TrackedObjectType    *string `json:"tracked_object_type,omitempty"`

	// Camera intrinsics, inline or from a calibration file group.
	Camera      *CameraConfig `json:"camera,omitempty"`
	CameraFile  *string       `json:"camera_file,omitempty"`
	CameraGroup *string       `json:"camera_group,omitempty"`

	// Model files. Empty paths select the generated defaults.
	ShapeTemplatePath      *string  `json:"shape_template_path,omitempty"`
	ShapeTemplatePoints    *int     `json:"shape_template_points,omitempty"`
	SphereRadiusMM         *float64 `json:"sphere_radius_mm,omitempty"`
	SphereMargin           *float64 `json:"sphere_margin,omitempty"`
	MotionModelPath        *string  `json:"motion_model_path,omitempty"`
	ColorTemplateImage     *string  `json:"color_template_image,omitempty"`
	ColorTemplateHistogram *string  `json:"color_template_histogram,omitempty"`

	CircleVisualizationMode *int    `json:"circle_visualization_mode,omitempty"`
	SaveImagesDir           *string `json:"save_images_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTrackerConfig returns a TrackerConfig with all fields set to nil.
func EmptyTrackerConfig() *TrackerConfig {
	return &TrackerConfig{}
}

// LoadTrackerConfig loads a TrackerConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTrackerConfig(path string) (*TrackerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(cleanPath))

	return cfg, nil
}

// resolvePaths makes relative model and calibration paths relative to dir,
// the directory of the config file.
func (c *TrackerConfig) resolvePaths(dir string) {
	for _, p := range []*string{
		c.ShapeTemplatePath,
		c.MotionModelPath,
		c.ColorTemplateImage,
		c.ColorTemplateHistogram,
		c.CameraFile,
	} {
		if p != nil && *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and its parents. Panics if the file cannot
// be loaded, intended for test setup.
func MustLoadDefaultConfig() *TrackerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. Options that name
// a known but unimplemented method are rejected here so that the tracker never
// starts in an unsupported mode.
func (c *TrackerConfig) Validate() error {
	if c.NParticles != nil && *c.NParticles <= 0 {
		return fmt.Errorf("n_particles must be positive, got %d", *c.NParticles)
	}
	if c.AccelStdDevMM != nil && *c.AccelStdDevMM < 0 {
		return fmt.Errorf("accel_stdev_mm must be non-negative, got %f", *c.AccelStdDevMM)
	}
	if c.InsideOutsideWeight != nil && *c.InsideOutsideWeight < 0 {
		return fmt.Errorf("inside_outside_weight must be non-negative, got %f", *c.InsideOutsideWeight)
	}
	if c.LikelihoodThreshold != nil && *c.LikelihoodThreshold < 0 {
		return fmt.Errorf("likelihood_threshold must be non-negative, got %f", *c.LikelihoodThreshold)
	}
	if c.AttentionOutputDecrease != nil {
		if d := *c.AttentionOutputDecrease; d < 0 || d > 1 {
			return fmt.Errorf("attention_output_decrease must be between 0 and 1, got %f", d)
		}
	}

	y, u, v := c.GetBins()
	if y <= 0 || u <= 0 || v <= 0 || y > 256 || u > 256 || v > 256 {
		return fmt.Errorf("histogram bins must be in 1..256, got %dx%dx%d", y, u, v)
	}
	if y*u*v > maxHistogramCells {
		return fmt.Errorf("histogram has %d cells (max %d)", y*u*v, maxHistogramCells)
	}

	switch p := c.GetColorPolicy(); p {
	case ColorPolicyLUT, ColorPolicyDirect:
	default:
		return fmt.Errorf("color_policy %q not supported", p)
	}

	switch m := c.GetInitializationMethod(); m {
	case InitMethod3DEstimate:
	case InitMethod2DEstimate, InitMethodSearch:
		return fmt.Errorf("initialization_method %q not yet implemented", m)
	default:
		return fmt.Errorf("initialization_method %q not supported", m)
	}

	switch p := c.GetProjectionModel(); p {
	case ProjectionPerspective:
	case ProjectionEquidistance, ProjectionUnified:
		return fmt.Errorf("projection_model %q not yet implemented", p)
	default:
		return fmt.Errorf("projection_model %q not supported", p)
	}

	switch o := c.GetTrackedObjectType(); o {
	case ObjectSphere:
	case ObjectParallelogram:
		return fmt.Errorf("tracked_object_type %q not yet implemented", o)
	default:
		return fmt.Errorf("tracked_object_type %q not supported", o)
	}

	if c.Camera != nil {
		if err := c.Camera.Validate(); err != nil {
			return fmt.Errorf("camera: %w", err)
		}
	}

	if c.ShapeTemplatePoints != nil && *c.ShapeTemplatePoints <= 0 {
		return fmt.Errorf("shape_template_points must be positive, got %d", *c.ShapeTemplatePoints)
	}
	if c.SphereMargin != nil && (*c.SphereMargin <= 0 || *c.SphereMargin >= 1) {
		return fmt.Errorf("sphere_margin must be between 0 and 1, got %f", *c.SphereMargin)
	}

	if m := c.GetCircleVisualizationMode(); m != 0 && m != 1 {
		return fmt.Errorf("circle_visualization_mode must be 0 or 1, got %d", m)
	}

	return nil
}

// GetNParticles returns the n_particles value or the default.
func (c *TrackerConfig) GetNParticles() int {
	if c.NParticles == nil {
		return 1000
	}
	return *c.NParticles
}

// GetAccelStdDevMM returns the accel_stdev_mm value or the default.
func (c *TrackerConfig) GetAccelStdDevMM() float64 {
	if c.AccelStdDevMM == nil {
		return 150
	}
	return *c.AccelStdDevMM
}

// GetInsideOutsideWeight returns the inside_outside_weight value or the default.
func (c *TrackerConfig) GetInsideOutsideWeight() float64 {
	if c.InsideOutsideWeight == nil {
		return 1.5
	}
	return *c.InsideOutsideWeight
}

// GetLikelihoodThreshold returns the likelihood_threshold value or the default.
func (c *TrackerConfig) GetLikelihoodThreshold() float64 {
	if c.LikelihoodThreshold == nil {
		return 0.005
	}
	return *c.LikelihoodThreshold
}

// GetMinResampleLikelihood returns the min_resample_likelihood value or the default.
func (c *TrackerConfig) GetMinResampleLikelihood() float64 {
	if c.MinResampleLikelihood == nil {
		return 10
	}
	return *c.MinResampleLikelihood
}

// GetSeed returns the seed value. Zero means seed from the clock.
func (c *TrackerConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetAttentionOutputMax returns the attention_output_max value or the default.
func (c *TrackerConfig) GetAttentionOutputMax() float64 {
	if c.AttentionOutputMax == nil {
		return 257
	}
	return *c.AttentionOutputMax
}

// GetAttentionOutputDecrease returns the attention_output_decrease value or the default.
func (c *TrackerConfig) GetAttentionOutputDecrease() float64 {
	if c.AttentionOutputDecrease == nil {
		return 0.99
	}
	return *c.AttentionOutputDecrease
}

// GetBins returns the Y, U and V histogram bin counts.
func (c *TrackerConfig) GetBins() (y, u, v int) {
	y, u, v = 4, 8, 8
	if c.YBins != nil {
		y = *c.YBins
	}
	if c.UBins != nil {
		u = *c.UBins
	}
	if c.VBins != nil {
		v = *c.VBins
	}
	return y, u, v
}

// GetColorPolicy returns the color_policy value or the default.
func (c *TrackerConfig) GetColorPolicy() string {
	if c.ColorPolicy == nil || *c.ColorPolicy == "" {
		return ColorPolicyLUT
	}
	return *c.ColorPolicy
}

// GetInitialPositionM returns the initial estimate in metres.
func (c *TrackerConfig) GetInitialPositionM() [3]float64 {
	p := [3]float64{0, 0, 1}
	if c.InitialXM != nil {
		p[0] = *c.InitialXM
	}
	if c.InitialYM != nil {
		p[1] = *c.InitialYM
	}
	if c.InitialZM != nil {
		p[2] = *c.InitialZM
	}
	return p
}

// GetInitializationMethod returns the initialization_method value or the default.
func (c *TrackerConfig) GetInitializationMethod() string {
	if c.InitializationMethod == nil || *c.InitializationMethod == "" {
		return InitMethod3DEstimate
	}
	return *c.InitializationMethod
}

// GetProjectionModel returns the projection_model value or the default.
func (c *TrackerConfig) GetProjectionModel() string {
	if c.ProjectionModel == nil || *c.ProjectionModel == "" {
		return ProjectionPerspective
	}
	return *c.ProjectionModel
}

// GetTrackedObjectType returns the tracked_object_type value or the default.
func (c *TrackerConfig) GetTrackedObjectType() string {
	if c.TrackedObjectType == nil || *c.TrackedObjectType == "" {
		return ObjectSphere
	}
	return *c.TrackedObjectType
}

// GetShapeTemplatePath returns the shape_template_path value or "".
func (c *TrackerConfig) GetShapeTemplatePath() string {
	if c.ShapeTemplatePath == nil {
		return ""
	}
	return *c.ShapeTemplatePath
}

// GetShapeTemplatePoints returns the number of points per template contour.
func (c *TrackerConfig) GetShapeTemplatePoints() int {
	if c.ShapeTemplatePoints == nil {
		return 50
	}
	return *c.ShapeTemplatePoints
}

// GetSphereRadiusMM returns the sphere_radius_mm value or the default.
func (c *TrackerConfig) GetSphereRadiusMM() float64 {
	if c.SphereRadiusMM == nil {
		return 35
	}
	return *c.SphereRadiusMM
}

// GetSphereMargin returns the sphere_margin value or the default.
func (c *TrackerConfig) GetSphereMargin() float64 {
	if c.SphereMargin == nil {
		return 0.3
	}
	return *c.SphereMargin
}

// GetMotionModelPath returns the motion_model_path value or "".
func (c *TrackerConfig) GetMotionModelPath() string {
	if c.MotionModelPath == nil {
		return ""
	}
	return *c.MotionModelPath
}

// GetColorTemplateImage returns the color_template_image value or "".
func (c *TrackerConfig) GetColorTemplateImage() string {
	if c.ColorTemplateImage == nil {
		return ""
	}
	return *c.ColorTemplateImage
}

// GetColorTemplateHistogram returns the color_template_histogram value or "".
func (c *TrackerConfig) GetColorTemplateHistogram() string {
	if c.ColorTemplateHistogram == nil {
		return ""
	}
	return *c.ColorTemplateHistogram
}

// GetCircleVisualizationMode returns the circle_visualization_mode value or the default.
func (c *TrackerConfig) GetCircleVisualizationMode() int {
	if c.CircleVisualizationMode == nil {
		return 0
	}
	return *c.CircleVisualizationMode
}

// GetSaveImagesDir returns the save_images_dir value or "".
func (c *TrackerConfig) GetSaveImagesDir() string {
	if c.SaveImagesDir == nil {
		return ""
	}
	return *c.SaveImagesDir
}

// ResolveCamera returns the camera intrinsics: the inline camera block, then
// the named group of camera_file, then the built-in defaults.
func (c *TrackerConfig) ResolveCamera() (CameraConfig, error) {
	if c.Camera != nil {
		return *c.Camera, nil
	}
	if c.CameraFile != nil && *c.CameraFile != "" {
		group := ""
		if c.CameraGroup != nil {
			group = *c.CameraGroup
		}
		return LoadCameraGroup(*c.CameraFile, group)
	}
	return DefaultCamera(), nil
}
