package runner

import (
	"time"
)

func getStringOption(options map[string]interface{}, key, defaultValue string) string {
	if value, ok := options[key].(string); ok && value != "" {
		return value
	}
	return defaultValue
}

func getBoolOption(options map[string]interface{}, key string, defaultValue bool) bool {
	if value, ok := options[key].(bool); ok {
		return value
	}
	return defaultValue
}

func getDurationOption(options map[string]interface{}, key string, defaultValue time.Duration) time.Duration {
	switch value := options[key].(type) {
	case time.Duration:
		if value > 0 {
			return value
		}
	case float64:
		return time.Duration(value) * time.Second
	case string:
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getHeadersOption(options map[string]interface{}) map[string]string {
	headers := make(map[string]string)

	if headersOpt, ok := options["headers"].(map[string]interface{}); ok {
		for key, value := range headersOpt {
			if strValue, ok := value.(string); ok {
				headers[key] = strValue
			}
		}
	}

	return headers
}
