package ui

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"linedex/internal/charset"
	"linedex/internal/worker"
)

var errNoConfigFile = fmt.Errorf("no config file loaded")

type Config struct {
	// how many bytes of the file are read at once while indexing
	IndexBlockSizeBytes int `yaml:"index_block_size_bytes"`
	// how many read blocks may queue up ahead of the parser
	PrefetchBlockCount int `yaml:"prefetch_block_count"`
	// compare only the head and the tail of the file when checking for
	// changes (fast on huge files, may miss edits in the middle)
	FastModificationDetection bool `yaml:"fast_modification_detection"`
	// decode the file with this encoding instead of detecting one,
	// example: "UTF-16LE" (empty means detect)
	ForcedEncoding string `validate:"encoding" yaml:"forced_encoding"`
	// how often the file is re-checked when OS notifications
	// are unavailable (seconds)
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// the address the HTTP status API binds to in watch mode,
	// example: "127.0.0.1:8399" (empty means no HTTP API)
	ListenAddr string `yaml:"listen_addr"`
	// logging profile: "prod", "dev" or anything else for a quiet default
	Env string `yaml:"env"`
}

// Validate is the final check after all overrides are done (file load, command arguments substituted)
func (cfg Config) Validate() error {
	translateError := func(e validator.FieldError) string {
		switch e.ActualTag() {
		case "encoding":
			return fmt.Sprintf("unknown encoding %q", e.Value())
		case "required":
			return "value is empty"
		default:
			return fmt.Sprintf("invalid value (%s)", e.Tag())
		}
	}

	cfgValidate := validator.New()

	err := cfgValidate.RegisterValidation(
		"encoding", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			if name == "" {
				return true
			}
			_, err := charset.Lookup(name)
			return err == nil
		},
	)
	if err != nil {
		return err
	}

	err = cfgValidate.Struct(cfg)
	if err != nil {
		message := "Invalid config values:\n"
		for _, err := range err.(validator.ValidationErrors) {
			message += fmt.Sprintf("> %v: %s\n", err.StructField(), translateError(err))
		}
		return errors.New(message)
	}

	return nil
}

var DefaultCfg = Config{
	IndexBlockSizeBytes: worker.DefaultBlockSize,
	PrefetchBlockCount:  worker.DefaultPrefetch,
	PollIntervalSeconds: 2,
	Env:                 "prod",
}

func LoadConfig() (cfg Config, err error) {

	cfg = DefaultCfg

	viper.AddConfigPath(".")
	viper.SetConfigName("linedex")

	err = viper.ReadInConfig()
	if err == nil {
		err = viper.Unmarshal(
			&cfg, func(dc *mapstructure.DecoderConfig) {
				dc.TagName = "yaml"
			},
		)
		if err != nil {
			err = fmt.Errorf("unable to decode into config struct: %w", err)
			return
		}
	} else {
		// Check config read errors
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			err = errNoConfigFile
			return
		} else {
			err = fmt.Errorf("unable to use config file: %s", err)
			return
		}
	}

	if cfg.IndexBlockSizeBytes < 1 {
		cfg.IndexBlockSizeBytes = DefaultCfg.IndexBlockSizeBytes
	}
	if cfg.PrefetchBlockCount < 1 {
		cfg.PrefetchBlockCount = DefaultCfg.PrefetchBlockCount
	}
	if cfg.PollIntervalSeconds < 1 {
		cfg.PollIntervalSeconds = DefaultCfg.PollIntervalSeconds
	}

	return cfg, cfg.Validate()
}
