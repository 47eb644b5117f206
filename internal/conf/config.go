// conf/config.go
package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // name of the audition node
		Log  LogConfig
	}

	Audio struct {
		SampleRate float64 // sample rate of the output and acquisition streams
	}

	Queue struct {
		Order     string    // stimulus ordering: fifo, interleaved, random, blocked-random, grouped, blocked
		GroupSize int       // group size for grouped ordering
		Seed      int64     // PRNG seed for blocked-random ordering
		Trials    int       // trials per queued token
		ITI       float64   // intertrial interval in seconds
		Tones     []float64 // tone frequencies to queue, in Hz
		Duration  float64   // tone duration in seconds
		RiseTime  float64   // cosine-squared envelope rise time in seconds
	}

	Capture struct {
		EpochSize  float64 // epoch window in seconds, 0 to use each trial's duration
		Poststim   float64 // post-stimulus capture time in seconds
		BufferSize float64 // lookback buffer in seconds for historical capture
	}

	Export struct {
		Enabled bool   // write captured epochs as WAV files
		Path    string // epoch export directory
	}
}

// LogConfig defines the configuration for log files
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to log file
	MaxSizeMB  int    // max log size in MB before rotation
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to retain rotated files
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into the global Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine, defaults apply.
	}
	return nil
}

func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "audition-go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/audition.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)
	viper.SetDefault("audio.samplerate", 48000.0)
	viper.SetDefault("queue.order", "interleaved")
	viper.SetDefault("queue.groupsize", 2)
	viper.SetDefault("queue.seed", 0)
	viper.SetDefault("queue.trials", 10)
	viper.SetDefault("queue.iti", 0.1)
	viper.SetDefault("queue.tones", []float64{1000, 2000, 4000})
	viper.SetDefault("queue.duration", 0.5)
	viper.SetDefault("queue.risetime", 0.005)
	viper.SetDefault("capture.epochsize", 0.0)
	viper.SetDefault("capture.poststim", 0.05)
	viper.SetDefault("capture.buffersize", 5.0)
	viper.SetDefault("export.enabled", false)
	viper.SetDefault("export.path", "epochs")
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}

	configPaths := []string{
		".",
		filepath.Join(homeDir, ".config", "audition-go"),
	}
	return configPaths, nil
}

// Setting returns the global settings instance, loading it if needed.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("error loading settings: %v", err)
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
