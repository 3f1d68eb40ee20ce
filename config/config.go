// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/cmdqueue/internal/dispatcher"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Dispatcher dispatcher.Config `mapstructure:"dispatcher"`
	Catalog    CatalogConfig     `mapstructure:"catalog"`
}

type CatalogConfig struct {
	// File is an optional catalog YAML imported by "migrate --catalog".
	File string `mapstructure:"file"`
	// CacheTTL bounds how stale a cached catalog lookup may be.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func defaults() *Config {
	return &Config{
		Dispatcher: dispatcher.DefaultConfig(),
		Catalog: CatalogConfig{
			CacheTTL: 5 * time.Minute,
		},
	}
}

// Load reads configuration from an optional file and environment variables.
// Without an explicit path, config.yaml in the working directory is used if
// present. Environment variables use the prefix "CMDQUEUE" and the dot
// character in keys is replaced by an underscore. For example,
// "dispatcher.kafka.brokers" becomes "CMDQUEUE_DISPATCHER_KAFKA_BROKERS".
func Load(path string) (*Config, error) {
	cfg := defaults()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		// A missing default file is fine; an explicit one must exist.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("dispatcher.kafka.brokers"); b != "" {
		cfg.Dispatcher.Kafka.Brokers = splitList(b)
	}
	if s := v.GetString("dispatcher.kafka.command_types"); s != "" {
		types, err := parseInt64List(s)
		if err != nil {
			return nil, fmt.Errorf("invalid dispatcher.kafka.command_types: %w", err)
		}
		cfg.Dispatcher.Kafka.CommandTypes = types
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt64List(s string) ([]int64, error) {
	var out []int64
	for _, part := range splitList(s) {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
