package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const DATABASE_TYPE = "NEWSFLOW_DATABASE_TYPE"
const DATABASE_URL = "NEWSFLOW_DATABASE_URL"
const DATABASE_SQLITE_FILE_NAME = "NEWSFLOW_DATABASE_SQLITE_FILE_NAME"
const LOG_LEVEL = "NEWSFLOW_LOG_LEVEL"
const EXECUTOR_NAME = "NEWSFLOW_EXECUTOR_NAME"
const SCHEDULER_POLL_INTERVAL = "NEWSFLOW_SCHEDULER_POLL_INTERVAL"
const SCHEDULER_BATCH_SIZE = "NEWSFLOW_SCHEDULER_BATCH_SIZE" //number of ready jobs claimed per poll
const SCHEDULER_WORKERS = "NEWSFLOW_SCHEDULER_WORKERS"       //number of jobs executed in parallel
const SCHEDULER_RETRY_MIN = "NEWSFLOW_SCHEDULER_RETRY_MIN"
const SCHEDULER_RETRY_MAX = "NEWSFLOW_SCHEDULER_RETRY_MAX"
const SCHEDULER_RETRY_SCALE = "NEWSFLOW_SCHEDULER_RETRY_SCALE"         //retry count at which the back-off reaches max
const SCHEDULER_RETRY_MAX_COUNT = "NEWSFLOW_SCHEDULER_RETRY_MAX_COUNT" //retries allowed before giving up, when give up is on
const SCHEDULER_RETRY_GIVE_UP = "NEWSFLOW_SCHEDULER_RETRY_GIVE_UP"
const SCHEDULER_STUCK_INTERVAL = "NEWSFLOW_SCHEDULER_STUCK_INTERVAL"
const SCHEDULER_STUCK_AFTER = "NEWSFLOW_SCHEDULER_STUCK_AFTER"
const SCHEDULER_CLEANUP_CRON = "NEWSFLOW_SCHEDULER_CLEANUP_CRON"
const SCHEDULER_LOCK_FILE = "NEWSFLOW_SCHEDULER_LOCK_FILE"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLITE = "SQLITE"

var defaults = map[string]string{
	DATABASE_TYPE:             DATABASE_TYPE_SQLITE,
	DATABASE_SQLITE_FILE_NAME: "./newsflow.db",
	LOG_LEVEL:                 "INFO",
	SCHEDULER_POLL_INTERVAL:   "3s",
	SCHEDULER_BATCH_SIZE:      "5",
	SCHEDULER_WORKERS:         "2",
	SCHEDULER_RETRY_MIN:       "1m",
	SCHEDULER_RETRY_MAX:       "30m",
	SCHEDULER_RETRY_SCALE:     "10",
	SCHEDULER_RETRY_MAX_COUNT: "25",
	SCHEDULER_RETRY_GIVE_UP:   "false",
	SCHEDULER_STUCK_INTERVAL:  "60s",
	SCHEDULER_STUCK_AFTER:     "10m",
	SCHEDULER_CLEANUP_CRON:    "@daily",
	SCHEDULER_LOCK_FILE:       "./newsflow-scheduler.lock",
}

var (
	mu      sync.RWMutex
	overlay = map[string]string{}
)

type settingsFile struct {
	Settings map[string]any `toml:"settings"`
}

// LoadFile reads the [settings] table of a TOML file. Values found there sit
// between the environment and the built in defaults.
func LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var f settingsFile
	if err := toml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	loaded := make(map[string]string, len(f.Settings))
	for k, v := range f.Settings {
		loaded[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	mu.Lock()
	overlay = loaded
	mu.Unlock()
	return nil
}

// Reset drops anything loaded with LoadFile.
func Reset() {
	mu.Lock()
	overlay = map[string]string{}
	mu.Unlock()
}

func GetSystemSettingString(settingKey string) string {
	if val := os.Getenv(settingKey); val != "" {
		return val
	}
	mu.RLock()
	val, ok := overlay[settingKey]
	mu.RUnlock()
	if ok && val != "" {
		return val
	}
	return defaults[settingKey]
}

func GetSystemSettingInteger(settingKey string) int {
	val := GetSystemSettingString(settingKey)
	if val != "" {
		intValue, err := strconv.Atoi(val)
		if err == nil {
			return intValue
		}
	}
	fallback, _ := strconv.Atoi(defaults[settingKey])
	return fallback
}

func GetSystemSettingDuration(settingKey string) time.Duration {
	d, err := time.ParseDuration(GetSystemSettingString(settingKey))
	if err != nil {
		d, _ = time.ParseDuration(defaults[settingKey])
	}
	return d
}

func GetSystemSettingBool(settingKey string) bool {
	b, err := strconv.ParseBool(GetSystemSettingString(settingKey))
	if err != nil {
		b, _ = strconv.ParseBool(defaults[settingKey])
	}
	return b
}
