package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ParameterName is the SSM path under which the matcher stack persists
// the runtime configuration for the worker.
const ParameterName = "/bounan/matcher/runtime-config"

// Runtime configuration keys. The snake_case names are a wire contract
// shared with the worker, which also accepts each key as an
// environment-variable override.
const (
	KeyLoanApiFunctionArnRuntime  = "loan_api_function_arn"
	KeyLogGroupName               = "log_group_name"
	KeyLogLevel                   = "log_level"
	KeyMinEpisodeNumber           = "min_episode_number"
	KeyEpisodesToMatch            = "episodes_to_match"
	KeySecondsToMatch             = "seconds_to_match"
	KeyNotificationQueueURL       = "notification_queue_url"
	KeyGetSeriesToMatchLambda     = "get_series_to_match_lambda_name"
	KeyUpdateVideoScenesLambda    = "update_video_scenes_lambda_name"
	KeyTempDir                    = "temp_dir"
	KeyDownloadThreads            = "download_threads"
	KeyDownloadMaxRetriesForTs    = "download_max_retries_for_ts"
	KeySceneAfterOpeningThreshold = "scene_after_opening_threshold_secs"
	KeyMinSceneLengthSecs         = "min_scene_length_secs"
	KeyOperatingLogRatePerMinute  = "operating_log_rate_per_minute"
	KeyBatchSize                  = "batch_size"
)

var (
	ErrRuntimeFailedToParse    = errors.New("failed to parse the runtime configuration")
	ErrRuntimeValueMissing     = errors.New("runtime configuration value is not set")
	ErrRuntimeValueNotNumber   = errors.New("runtime configuration value is not a number")
	ErrRuntimeValueNotPositive = errors.New("runtime configuration value must be positive")
)

// ParameterValue assembles the runtime-config mapping (resolved
// identifiers plus fixed operational constants) and serialises it as
// indented JSON, the shape the worker reads back from SSM. The queue
// URL and log group name are CDK tokens at this point.
func ParameterValue(resolved *Resolved, queueURL, logGroupName *string) (string, error) {
	mapping := map[string]any{
		KeyLoanApiFunctionArnRuntime:  *resolved.LoanApiFunctionArn,
		KeyLogGroupName:               *logGroupName,
		KeyLogLevel:                   "INFO",
		KeyMinEpisodeNumber:           2,
		KeyEpisodesToMatch:            5,
		KeySecondsToMatch:             360,
		KeyNotificationQueueURL:       *queueURL,
		KeyGetSeriesToMatchLambda:     *resolved.GetSeriesToMatchLambdaName,
		KeyUpdateVideoScenesLambda:    *resolved.UpdateVideoScenesLambdaName,
		KeyTempDir:                    "/tmp",
		KeyDownloadThreads:            12,
		KeyDownloadMaxRetriesForTs:    3,
		KeySceneAfterOpeningThreshold: 4,
		KeyMinSceneLengthSecs:         20,
		KeyOperatingLogRatePerMinute:  1,
		KeyBatchSize:                  10,
	}

	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Runtime is the worker-side view of the persisted configuration.
type Runtime struct {
	LoanApiFunctionArn          string
	LogGroupName                string
	LogLevel                    string
	MinEpisodeNumber            int
	EpisodesToMatch             int
	SecondsToMatch              int
	NotificationQueueURL        string
	GetSeriesToMatchLambdaName  string
	UpdateVideoScenesLambdaName string
	TempDir                     string
	DownloadThreads             int
	DownloadMaxRetriesForTs     int
	SceneAfterOpeningThreshold  int
	MinSceneLengthSecs          int
	OperatingLogRatePerMinute   int
	BatchSize                   int
}

// ParseRuntime decodes the parameter payload. Per key, an environment
// variable of the same name overrides the mapping; keys without a
// built-in default are required.
func ParseRuntime(raw []byte) (*Runtime, error) {
	var mapping map[string]any
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntimeFailedToParse, err)
	}

	r := &Runtime{}
	var err error

	for _, field := range []struct {
		dst      *string
		key      string
		fallback string
		required bool
	}{
		{&r.LoanApiFunctionArn, KeyLoanApiFunctionArnRuntime, "", true},
		{&r.LogGroupName, KeyLogGroupName, "", true},
		{&r.LogLevel, KeyLogLevel, "INFO", false},
		{&r.NotificationQueueURL, KeyNotificationQueueURL, "", true},
		{&r.GetSeriesToMatchLambdaName, KeyGetSeriesToMatchLambda, "", true},
		{&r.UpdateVideoScenesLambdaName, KeyUpdateVideoScenesLambda, "", true},
		{&r.TempDir, KeyTempDir, "/tmp", false},
	} {
		*field.dst, err = stringValue(mapping, field.key, field.fallback, field.required)
		if err != nil {
			return nil, err
		}
	}

	for _, field := range []struct {
		dst      *int
		key      string
		fallback int
		required bool
	}{
		{&r.MinEpisodeNumber, KeyMinEpisodeNumber, 0, true},
		{&r.EpisodesToMatch, KeyEpisodesToMatch, 5, false},
		{&r.SecondsToMatch, KeySecondsToMatch, 6 * 60, false},
		{&r.DownloadThreads, KeyDownloadThreads, 12, false},
		{&r.DownloadMaxRetriesForTs, KeyDownloadMaxRetriesForTs, 3, false},
		{&r.SceneAfterOpeningThreshold, KeySceneAfterOpeningThreshold, 4, false},
		{&r.MinSceneLengthSecs, KeyMinSceneLengthSecs, 20, false},
		{&r.OperatingLogRatePerMinute, KeyOperatingLogRatePerMinute, 1, false},
		{&r.BatchSize, KeyBatchSize, 10, false},
	} {
		*field.dst, err = intValue(mapping, field.key, field.fallback, field.required)
		if err != nil {
			return nil, err
		}
	}

	// Zero is never a workable pool size, batch size or heartbeat
	// rate. Environment overrides go through the same check.
	for _, field := range []struct {
		value int
		key   string
	}{
		{r.DownloadThreads, KeyDownloadThreads},
		{r.OperatingLogRatePerMinute, KeyOperatingLogRatePerMinute},
		{r.BatchSize, KeyBatchSize},
	} {
		if field.value <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrRuntimeValueNotPositive, field.key)
		}
	}

	return r, nil
}

func stringValue(mapping map[string]any, key, fallback string, required bool) (string, error) {
	if v := os.Getenv(key); len(v) > 0 {
		return v, nil
	}
	if v, exists := mapping[key]; exists {
		switch value := v.(type) {
		case string:
			if len(value) > 0 {
				return value, nil
			}
		case float64:
			return strconv.FormatFloat(value, 'f', -1, 64), nil
		}
	}
	if required {
		return "", fmt.Errorf("%w: %s", ErrRuntimeValueMissing, key)
	}
	return fallback, nil
}

func intValue(mapping map[string]any, key string, fallback int, required bool) (int, error) {
	if v := os.Getenv(key); len(v) > 0 {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrRuntimeValueNotNumber, key, err)
		}
		return n, nil
	}
	if v, exists := mapping[key]; exists {
		switch value := v.(type) {
		case float64:
			return int(value), nil
		case string:
			if len(value) > 0 {
				n, err := strconv.Atoi(value)
				if err != nil {
					return 0, fmt.Errorf("%w: %s: %w", ErrRuntimeValueNotNumber, key, err)
				}
				return n, nil
			}
		}
	}
	if required {
		return 0, fmt.Errorf("%w: %s", ErrRuntimeValueMissing, key)
	}
	return fallback, nil
}
