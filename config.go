package main

import (
	"errors"
	"os"
	"runtime"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BindAddress     string        `yaml:"bindAddress"`
	Port            int32         `yaml:"port"`
	ProcessFolder   string        `yaml:"processFolder"`
	DatabasePath    string        `yaml:"databasePath"`
	LogPath         string        `yaml:"logPath"`
	ModelPath       string        `yaml:"modelPath"`
	Model           string        `yaml:"model"`
	Workers         int           `yaml:"workers"`
	Threads         int           `yaml:"threads"`
	HighResScale    int           `yaml:"highResScale"`
	FFmpegOptions   FFmpegOptions `yaml:"ffmpegOptions"`
	SaveFlowFile    *bool         `yaml:"saveFlowFile"`
	SaveFlowImage   *bool         `yaml:"saveFlowImage"`
	SaveWarpedImage *bool         `yaml:"saveWarpedImage"`
}

type FFmpegOptions struct {
	HWAccelDecodeFlag string `yaml:"HWAccelDecodeFlag"`
}

// Verify config and set defaults
func verifyConfig(config *Config) error {
	if config == nil {
		return errors.New("cannot verify config, config is nil")
	}

	if config.BindAddress == "" {
		config.BindAddress = "127.0.0.1"
	}

	if config.Port == 0 {
		config.Port = 80
	}

	if config.ProcessFolder == "" {
		return errors.New("missing process folder in config")
	}

	if config.DatabasePath == "" {
		return errors.New("missing database path in config")
	}

	if config.ModelPath == "" {
		return errors.New("missing model path in config")
	}

	if config.Model == "" {
		config.Model = "default"
	}

	if config.Workers <= 0 {
		config.Workers = 1
	}

	if config.Threads <= 0 {
		config.Threads = runtime.NumCPU()
	}

	if config.HighResScale <= 0 {
		config.HighResScale = 2
	}

	if config.SaveFlowFile == nil {
		defaultVal := true
		config.SaveFlowFile = &defaultVal
	}

	if config.SaveFlowImage == nil {
		defaultVal := true
		config.SaveFlowImage = &defaultVal
	}

	if config.SaveWarpedImage == nil {
		defaultVal := true
		config.SaveWarpedImage = &defaultVal
	}

	if config.LogPath == "" {
		config.LogPath = "./logs"
	}

	return nil
}

func GetConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	config := Config{}

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}

	// Override with env variables if they are passed in
	err = envconfig.ProcessWithOptions("", &config, envconfig.Options{SplitWords: true})
	if err != nil {
		return Config{}, err
	}

	err = verifyConfig(&config)
	if err != nil {
		return Config{}, err
	}

	return config, nil
}
