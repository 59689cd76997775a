package config

import (
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port" default:"8080"`
		Host         string        `yaml:"host" default:"0.0.0.0"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`
	} `yaml:"server"`

	Workers struct {
		PoolSize  int           `yaml:"pool_size" default:"4"`
		QueueSize int           `yaml:"queue_size" default:"64"`
		RateLimit int           `yaml:"rate_limit" default:"30"` // requests per minute per domain
		Timeout   time.Duration `yaml:"timeout" default:"180s"`
	} `yaml:"workers"`

	Scraper struct {
		TargetURL      string        `yaml:"target_url"`
		BaseURL        string        `yaml:"base_url"` // origin for resolving relative paths on file runs
		UserAgent      string        `yaml:"user_agent"`
		UserAgentsFile string        `yaml:"user_agents_file"`
		Proxy          string        `yaml:"proxy"`
		ProxiesFile    string        `yaml:"proxies_file"`
		CookieFile     string        `yaml:"cookie_file" default:"cookies.json"`
		MaxAttempts    int           `yaml:"max_attempts" default:"5"`
		BackoffCap     time.Duration `yaml:"backoff_cap" default:"10s"`
		JitterMax      time.Duration `yaml:"jitter_max" default:"500ms"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
		Captcha        struct {
			Provider        string        `yaml:"provider" default:"2captcha"`
			APIKey          string        `yaml:"api_key"`
			Timeout         time.Duration `yaml:"timeout" default:"120s"`
			PollingInterval time.Duration `yaml:"polling_interval" default:"5s"`
			EnableAutoSolve bool          `yaml:"enable_auto_solve" default:"true"`
		} `yaml:"captcha"`
	} `yaml:"scraper"`

	Browser struct {
		Headless    bool          `yaml:"headless" default:"true"`
		StealthMode bool          `yaml:"stealth_mode" default:"true"`
		NavTimeout  time.Duration `yaml:"nav_timeout" default:"60s"`
		ScrollSteps int           `yaml:"scroll_steps" default:"8"`
		ScrollStep  int           `yaml:"scroll_step" default:"1500"` // pixels per synthetic scroll
		ScrollPause time.Duration `yaml:"scroll_pause" default:"400ms"`
	} `yaml:"browser"`

	Store struct {
		Path string `yaml:"path" default:"listings.db"`
	} `yaml:"store"`

	Artifacts struct {
		Enabled bool          `yaml:"enabled" default:"false"`
		TTL     time.Duration `yaml:"ttl" default:"24h"`
	} `yaml:"artifacts"`

	Redis struct {
		URL      string        `yaml:"url" default:"redis://localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db" default:"0"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"redis"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{}

	// Set defaults
	config.Server.Port = 8080
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.IdleTimeout = 60 * time.Second

	config.Workers.PoolSize = 4
	config.Workers.QueueSize = 64
	config.Workers.RateLimit = 30
	config.Workers.Timeout = 180 * time.Second

	config.Scraper.BaseURL = "https://www.avito.ru"
	config.Scraper.CookieFile = "cookies.json"
	config.Scraper.MaxAttempts = 5
	config.Scraper.BackoffCap = 10 * time.Second
	config.Scraper.JitterMax = 500 * time.Millisecond
	config.Scraper.RequestTimeout = 30 * time.Second
	// No default user agent: a pinned value would always win over a configured
	// user_agents_file and rotation would never happen. Empty means the HTTP
	// engine sends no User-Agent header and the browser keeps its own.

	config.Scraper.Captcha.Provider = "2captcha"
	config.Scraper.Captcha.Timeout = 120 * time.Second
	config.Scraper.Captcha.PollingInterval = 5 * time.Second
	config.Scraper.Captcha.EnableAutoSolve = true

	config.Browser.Headless = true
	config.Browser.StealthMode = true
	config.Browser.NavTimeout = 60 * time.Second
	config.Browser.ScrollSteps = 8
	config.Browser.ScrollStep = 1500
	config.Browser.ScrollPause = 400 * time.Millisecond

	config.Store.Path = "listings.db"

	config.Artifacts.TTL = 24 * time.Hour

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.DB = 0
	config.Redis.Timeout = 5 * time.Second

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Output = "stdout"

	// Load from YAML file if it exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			// Expand environment variables in the YAML content
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	return config, nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if targetURL := os.Getenv("TARGET_URL"); targetURL != "" {
		c.Scraper.TargetURL = targetURL
	}

	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		c.Scraper.BaseURL = baseURL
	}

	if userAgent := os.Getenv("USER_AGENT"); userAgent != "" {
		c.Scraper.UserAgent = userAgent
	}

	if uaFile := os.Getenv("USER_AGENTS_FILE"); uaFile != "" {
		c.Scraper.UserAgentsFile = uaFile
	}

	if proxy := os.Getenv("PROXY_URL"); proxy != "" {
		c.Scraper.Proxy = proxy
	}

	if proxiesFile := os.Getenv("PROXIES_FILE"); proxiesFile != "" {
		c.Scraper.ProxiesFile = proxiesFile
	}

	if cookieFile := os.Getenv("COOKIE_FILE"); cookieFile != "" {
		c.Scraper.CookieFile = cookieFile
	}

	if maxAttempts := os.Getenv("MAX_ATTEMPTS"); maxAttempts != "" {
		if attempts, err := strconv.Atoi(maxAttempts); err == nil {
			c.Scraper.MaxAttempts = attempts
		}
	}

	if requestTimeout := os.Getenv("REQUEST_TIMEOUT"); requestTimeout != "" {
		if timeout, err := time.ParseDuration(requestTimeout); err == nil {
			c.Scraper.RequestTimeout = timeout
		}
	}

	if captchaAPIKey := os.Getenv("CAPTCHA_API_KEY"); captchaAPIKey != "" {
		c.Scraper.Captcha.APIKey = captchaAPIKey
	}

	// Also support 2CAPTCHA_API_KEY for compatibility
	if captchaAPIKey := os.Getenv("2CAPTCHA_API_KEY"); captchaAPIKey != "" {
		c.Scraper.Captcha.APIKey = captchaAPIKey
	}

	if navTimeout := os.Getenv("BROWSER_NAV_TIMEOUT"); navTimeout != "" {
		if timeout, err := time.ParseDuration(navTimeout); err == nil {
			c.Browser.NavTimeout = timeout
		}
	}

	if headless := os.Getenv("BROWSER_HEADLESS"); headless != "" {
		c.Browser.Headless = headless == "true" || headless == "1"
	}

	if storePath := os.Getenv("STORE_PATH"); storePath != "" {
		c.Store.Path = storePath
	}

	if artifactsEnabled := os.Getenv("ARTIFACTS_ENABLED"); artifactsEnabled != "" {
		c.Artifacts.Enabled = artifactsEnabled == "true" || artifactsEnabled == "1"
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			c.Redis.DB = db
		}
	}

	if redisTimeout := os.Getenv("REDIS_TIMEOUT"); redisTimeout != "" {
		if timeout, err := time.ParseDuration(redisTimeout); err == nil {
			c.Redis.Timeout = timeout
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if poolSize := os.Getenv("WORKERS_POOL_SIZE"); poolSize != "" {
		if size, err := strconv.Atoi(poolSize); err == nil {
			c.Workers.PoolSize = size
		}
	}

	if queueSize := os.Getenv("WORKERS_QUEUE_SIZE"); queueSize != "" {
		if size, err := strconv.Atoi(queueSize); err == nil {
			c.Workers.QueueSize = size
		}
	}

	if rateLimit := os.Getenv("WORKERS_RATE_LIMIT"); rateLimit != "" {
		if limit, err := strconv.Atoi(rateLimit); err == nil {
			c.Workers.RateLimit = limit
		}
	}
}
