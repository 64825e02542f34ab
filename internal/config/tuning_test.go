package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/objectfusion/internal/types"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetWorldFrameID() != "map" {
		t.Errorf("GetWorldFrameID() = %q, want map", cfg.GetWorldFrameID())
	}
	if cfg.GetPublishRate() != 10.0 {
		t.Errorf("GetPublishRate() = %f, want 10", cfg.GetPublishRate())
	}
	if cfg.GetTrackerLifetime() != time.Second {
		t.Errorf("GetTrackerLifetime() = %v, want 1s", cfg.GetTrackerLifetime())
	}
	if cfg.GetConfidentCountThreshold(types.ClassCar) != 3 {
		t.Errorf("GetConfidentCountThreshold(CAR) = %d, want 3", cfg.GetConfidentCountThreshold(types.ClassCar))
	}
	if cfg.GetTrackerModel(types.ClassTruck) != "vehicle" {
		t.Errorf("GetTrackerModel(TRUCK) = %q, want vehicle", cfg.GetTrackerModel(types.ClassTruck))
	}
	if cfg.GetTrackerModel(types.ClassUnknown) != "unknown" {
		t.Errorf("GetTrackerModel(UNKNOWN) = %q, want unknown", cfg.GetTrackerModel(types.ClassUnknown))
	}
	if got := cfg.GetOdometryTwist(); got != [3]float64{10.0, 0.1, 0.1} {
		t.Errorf("GetOdometryTwist() = %v", got)
	}
	if got := cfg.GetOdometryTimeOffset(); got != time.Millisecond {
		t.Errorf("GetOdometryTimeOffset() = %v, want 1ms", got)
	}
	n := types.NumClasses * types.NumClasses
	if len(cfg.GetCanAssignMatrix()) != n || len(cfg.GetMinIoUMatrix()) != n {
		t.Errorf("default matrices must have %d entries", n)
	}
	chans := cfg.GetInputChannels()
	if len(chans) != 1 || !chans[0].GetCanSpawnNewTracker() || !chans[0].GetBlocking() {
		t.Errorf("GetInputChannels() = %+v, want one blocking spawn-enabled channel", chans)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestDefaultMatricesAreCopies(t *testing.T) {
	cfg := EmptyTuningConfig()
	m := cfg.GetMaxDistMatrix()
	m[0] = -1
	if cfg.GetMaxDistMatrix()[0] == -1 {
		t.Error("GetMaxDistMatrix() must not expose the package default")
	}
}

func TestChannelTuningFallbacks(t *testing.T) {
	ch := ChannelTuning{Name: "camera_front", Topic: "/cam", CanSpawnNewTracker: ptrBool(false), Timeout: ptrString("250ms")}
	if ch.GetCanSpawnNewTracker() {
		t.Error("GetCanSpawnNewTracker() = true, want false")
	}
	if ch.GetDisplayName() != "camera_front" {
		t.Errorf("GetDisplayName() = %q", ch.GetDisplayName())
	}
	if ch.GetShortName() != "cam" {
		t.Errorf("GetShortName() = %q, want cam", ch.GetShortName())
	}
	if ch.GetTimeout() != 250*time.Millisecond {
		t.Errorf("GetTimeout() = %v, want 250ms", ch.GetTimeout())
	}
}

func TestClassLookupsPreferCanonicalName(t *testing.T) {
	cfg := &TuningConfig{
		ConfidentCountThreshold: map[string]int{"MOTORBIKE": 2, "MOTORCYCLE": 5, "bicycle": 7},
		TrackerModels:           map[string]string{"motorbike": "unknown", "MOTORCYCLE": "pass_through"},
		TrackerLifetimeByClass:  map[string]string{"MOTORBIKE": "4s"},
	}
	for i := 0; i < 20; i++ {
		if got := cfg.GetConfidentCountThreshold(types.ClassMotorcycle); got != 5 {
			t.Fatalf("GetConfidentCountThreshold(MOTORCYCLE) = %d, want 5", got)
		}
		if got := cfg.GetTrackerModel(types.ClassMotorcycle); got != "pass_through" {
			t.Fatalf("GetTrackerModel(MOTORCYCLE) = %q, want pass_through", got)
		}
	}
	if got := cfg.GetConfidentCountThreshold(types.ClassBicycle); got != 7 {
		t.Errorf("GetConfidentCountThreshold(BICYCLE) = %d, want 7 from the lower-case key", got)
	}
	if got := cfg.GetTrackerLifetimeFor(types.ClassMotorcycle); got != 4*time.Second {
		t.Errorf("GetTrackerLifetimeFor(MOTORCYCLE) = %v, want the alias value 4s", got)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted MOTORBIKE and MOTORCYCLE together")
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "world_frame_id": "odom",
  "publish_rate": 20.0,
  "tracker_lifetime": "1500ms",
  "tracker_lifetime_by_class": {"pedestrian": "3s"},
  "confident_count_threshold": {"CAR": 5, "MOTORBIKE": 2},
  "tracker_models": {"BUS": "pass_through"},
  "input_channels": [{"name": "radar", "topic": "/radar", "blocking": false}]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetWorldFrameID() != "odom" {
		t.Errorf("GetWorldFrameID() = %q, want odom", cfg.GetWorldFrameID())
	}
	if cfg.GetPublishRate() != 20.0 {
		t.Errorf("GetPublishRate() = %f, want 20", cfg.GetPublishRate())
	}
	if cfg.GetTrackerLifetimeFor(types.ClassPedestrian) != 3*time.Second {
		t.Errorf("pedestrian lifetime = %v, want 3s", cfg.GetTrackerLifetimeFor(types.ClassPedestrian))
	}
	if cfg.GetTrackerLifetimeFor(types.ClassCar) != 1500*time.Millisecond {
		t.Errorf("car lifetime = %v, want 1.5s", cfg.GetTrackerLifetimeFor(types.ClassCar))
	}
	if cfg.GetConfidentCountThreshold(types.ClassCar) != 5 {
		t.Errorf("CAR threshold = %d, want 5", cfg.GetConfidentCountThreshold(types.ClassCar))
	}
	if cfg.GetConfidentCountThreshold(types.ClassMotorcycle) != 2 {
		t.Errorf("MOTORCYCLE threshold = %d, want 2", cfg.GetConfidentCountThreshold(types.ClassMotorcycle))
	}
	if cfg.GetTrackerModel(types.ClassBus) != "pass_through" {
		t.Errorf("BUS model = %q, want pass_through", cfg.GetTrackerModel(types.ClassBus))
	}
	chans := cfg.GetInputChannels()
	if len(chans) != 1 || chans[0].GetBlocking() {
		t.Errorf("input channels = %+v", chans)
	}
	// Unset fields keep defaults.
	if cfg.GetDistanceThreshold() != 5.0 {
		t.Errorf("GetDistanceThreshold() = %f, want 5", cfg.GetDistanceThreshold())
	}
}

func TestLoadTuningConfigRejects(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"wrong extension", "c.yaml", `{}`, ".json extension"},
		{"bad json", "c.json", `{`, "parse config JSON"},
		{"probability out of range", "c.json", `{"detection_probability": 1.5}`, "detection_probability"},
		{"detection below false alarm", "c.json", `{"detection_probability": 0.1, "false_alarm_probability": 0.9}`, "detection_probability"},
		{"zero detection probability", "c.json", `{"detection_probability": 0, "false_alarm_probability": 0}`, "detection_probability"},
		{"unreachable confirmation", "c.json", `{"confirm_existence_probability": 1.0}`, "confirm_existence_probability"},
		{"bad duration", "c.json", `{"tracker_lifetime": "soon"}`, "tracker_lifetime"},
		{"bad class", "c.json", `{"confident_count_threshold": {"TRAM": 3}}`, "TRAM"},
		{"alias and canonical count", "c.json", `{"confident_count_threshold": {"MOTORBIKE": 2, "MOTORCYCLE": 5}}`, "confident_count_threshold"},
		{"case variants of one model", "c.json", `{"tracker_models": {"car": "vehicle", "CAR": "pedestrian"}}`, "tracker_models"},
		{"alias and canonical lifetime", "c.json", `{"tracker_lifetime_by_class": {"MOTORBIKE": "1s", "MOTORCYCLE": "2s"}}`, "tracker_lifetime_by_class"},
		{"short matrix", "c.json", `{"max_dist_matrix": [1, 2, 3]}`, "max_dist_matrix"},
		{"inverted publish ratios", "c.json", `{"min_publish_interval_ratio": 1.2, "max_publish_interval_ratio": 1.0}`, "min_publish_interval_ratio"},
		{"zero queue", "c.json", `{"max_queue_size": 0}`, "max_queue_size"},
		{"bad channel timeout", "c.json", `{"input_channels": [{"name": "a", "topic": "b", "timeout": "x"}]}`, "timeout"},
		{"self static transform", "c.json", `{"static_transforms": [{"child": "map", "parent": "map"}]}`, "static_transforms[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name+"-"+tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadTuningConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTuningConfigTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	if err := os.WriteFile(path, make([]byte, maxConfigFileSize+1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected too large error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults file does not validate: %v", err)
	}
	empty := EmptyTuningConfig()
	if cfg.GetTrackerLifetime() != empty.GetTrackerLifetime() {
		t.Errorf("defaults file lifetime %v differs from built-in %v", cfg.GetTrackerLifetime(), empty.GetTrackerLifetime())
	}
	if cfg.GetMinKnownObjectRemovalIoU() != empty.GetMinKnownObjectRemovalIoU() {
		t.Errorf("defaults file known removal IoU differs from built-in")
	}
	if len(cfg.GetInputChannels()) != 2 {
		t.Errorf("expected 2 channels in defaults file, got %d", len(cfg.GetInputChannels()))
	}
	if cfg.GetTrackerLifetimeFor(types.ClassPedestrian) != 1500*time.Millisecond {
		t.Errorf("pedestrian lifetime = %v, want 1.5s", cfg.GetTrackerLifetimeFor(types.ClassPedestrian))
	}
	if p := ptrFloat64(0.5); cfg.GetInitialExistenceProbability() != *p {
		t.Errorf("initial existence = %f, want 0.5", cfg.GetInitialExistenceProbability())
	}
}
