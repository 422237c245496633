package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		StringEncoding:  "utf-8",
		Timeout:         30000, // 30 seconds
		Retries:         0,
		RetryDelay:      1000,  // 1 second
		MaxRetryDelay:   30000, // 30 seconds
		FollowRedirects: BoolPtr(true),
		MaxRedirects:    10,
		ValidateSSL:     BoolPtr(true),
		Transport:       TransportStandard,
		MaxConcurrent:   0,
		LogLevel:        "info",
		LogDevelopment:  BoolPtr(false),
	}
}
