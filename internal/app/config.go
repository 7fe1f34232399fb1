package app

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/recipenow/recipenow-backend/internal/platform/envutil"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type Config struct {
	Addr        string
	Environment string
	CORSOrigins []string

	// MediaStore selects where card photos live: "local" or "gcs".
	MediaStore string
	MediaRoot  string

	// OCREngine selects the collaborator: "tesseract" or "gcp_vision".
	OCREngine    string
	OCRLanguages []string

	Tuning Tuning
}

// Tuning collects the knobs operators adjust per deployment without a
// rebuild. Values come from the optional TUNING_FILE and override the
// defaults below.
type Tuning struct {
	Rotation struct {
		MarginThreshold float64 `yaml:"margin_threshold"`
		ScoreMaxEdge    int     `yaml:"score_max_edge"`
	} `yaml:"rotation"`

	OCR struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"ocr"`

	Worker struct {
		Concurrency         int `yaml:"concurrency"`
		PollIntervalMillis  int `yaml:"poll_interval_ms"`
		MaxAttempts         int `yaml:"max_attempts"`
		RetryDelaySeconds   int `yaml:"retry_delay_seconds"`
		StaleRunningSeconds int `yaml:"stale_running_seconds"`
	} `yaml:"worker"`

	Extractor struct {
		ImageDetail      string `yaml:"image_detail"`
		MalformedRetries int    `yaml:"malformed_retries"`
	} `yaml:"extractor"`
}

func defaultTuning() Tuning {
	var t Tuning
	t.Rotation.MarginThreshold = 3.0
	t.Rotation.ScoreMaxEdge = 1200
	t.OCR.TimeoutSeconds = 120
	t.Worker.Concurrency = 2
	t.Worker.PollIntervalMillis = 1000
	t.Worker.MaxAttempts = 5
	t.Worker.RetryDelaySeconds = 30
	t.Worker.StaleRunningSeconds = 120
	t.Extractor.ImageDetail = "high"
	t.Extractor.MalformedRetries = 1
	return t
}

func (t Tuning) OCRTimeout() time.Duration {
	return time.Duration(t.OCR.TimeoutSeconds) * time.Second
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Addr:        envutil.GetEnv("HTTP_ADDR", ":8080", log),
		Environment: envutil.GetEnv("ENVIRONMENT", "development", log),
		MediaStore:  strings.ToLower(envutil.GetEnv("MEDIA_STORE", "local", log)),
		MediaRoot:   envutil.GetEnv("MEDIA_ROOT", "./data/media", log),
		OCREngine:   strings.ToLower(envutil.GetEnv("OCR_ENGINE", "tesseract", log)),
		Tuning:      defaultTuning(),
	}

	if raw := envutil.GetEnv("CORS_ORIGINS", "", log); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	for _, l := range strings.Split(envutil.GetEnv("OCR_LANGUAGES", "eng", log), ",") {
		if l = strings.TrimSpace(l); l != "" {
			cfg.OCRLanguages = append(cfg.OCRLanguages, l)
		}
	}

	if path := envutil.GetEnv("TUNING_FILE", "", log); path != "" {
		if err := loadTuningFile(path, &cfg.Tuning); err != nil {
			log.Warn("tuning file not applied", "path", path, "error", err)
		} else {
			log.Info("tuning file applied", "path", path)
		}
	}

	return cfg
}

func loadTuningFile(path string, t *Tuning) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, t)
}
