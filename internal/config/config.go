package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultConfigPath = "/etc/factmill/config.ini"
	configPathEnv     = "FACTMILL_CONFIG"
)

// Config is built once at startup and passed by value into every component.
// Nothing mutates it after the pipeline starts; strategy auto-disabling is a
// fallback-chain outcome, not a config side effect.
type Config struct {
	Hostname         string
	AppEnv           string
	BaseOutputFolder string
	FactStorePath    string

	// Video geometry and timing.
	VideoWidth           int
	VideoHeight          int
	FrameRate            int
	TitleDurationSeconds float64
	FactDurationSeconds  float64
	MinVideoBytes        int64
	MinFacts             int
	AnimatedFrames       bool

	// Frame rendering (ImageMagick).
	ConvertBinary   string
	FontName        string
	FontSizePt      int
	MaxCharsPerLine int
	BackgroundColor string
	TextColor       string
	RenderWorkers   int

	// Narration (espeak).
	NarrationEnabled bool
	EspeakBinary     string
	EspeakVoice      string
	EspeakSpeed      int
	MaxTTSChars      int

	// Encoding (ffmpeg).
	FFmpegBinary  string
	FFprobeBinary string

	// Subprocess budgets.
	RenderTimeout time.Duration
	EncodeTimeout time.Duration
	TTSTimeout    time.Duration
	UploadTimeout time.Duration

	// Fact generation.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	FactAttempts  int
	MinFactLength int
	MaxFactLength int

	// Upload targets.
	YoutubeUploadScript string
	YoutubeCategory     string
	YoutubePrivacy      string
	LinkedInAccessToken string
	LinkedInOrgID       string

	DBURL      string
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	RabbitMQHost     string
	RabbitMQPort     int
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQVHost    string
}

func Load() (Config, error) {
	configPath := os.Getenv(configPathEnv)
	if configPath == "" {
		configPath = defaultConfigPath
	}

	ini, err := readINI(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", configPath, err)
	}

	cfg := Config{}
	cfg.Hostname = ini.get("app", "hostname")
	if cfg.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Hostname = host
		}
	}
	cfg.AppEnv = ini.getDefault("app", "env", "production")
	cfg.BaseOutputFolder = ini.get("app", "base_output_folder")
	cfg.FactStorePath = ini.get("app", "fact_store")
	if cfg.FactStorePath == "" && cfg.BaseOutputFolder != "" {
		cfg.FactStorePath = filepath.Join(cfg.BaseOutputFolder, "facts", "facts.json")
	}

	cfg.VideoWidth = ini.getIntDefault("video", "width", 1280)
	cfg.VideoHeight = ini.getIntDefault("video", "height", 720)
	cfg.FrameRate = ini.getIntDefault("video", "frame_rate", 30)
	cfg.TitleDurationSeconds = ini.getFloatDefault("video", "title_duration_seconds", 3)
	cfg.FactDurationSeconds = ini.getFloatDefault("video", "fact_duration_seconds", 5)
	cfg.MinVideoBytes = int64(ini.getIntDefault("video", "min_bytes", 10*1024))
	cfg.MinFacts = ini.getIntDefault("video", "min_facts", 5)
	cfg.AnimatedFrames = ini.getBoolDefault("video", "animated_frames", false)

	cfg.ConvertBinary = ini.getDefault("render", "convert_binary", "convert")
	cfg.FontName = ini.getDefault("render", "font", "DejaVu-Sans")
	cfg.FontSizePt = ini.getIntDefault("render", "font_size_pt", 40)
	cfg.MaxCharsPerLine = ini.getIntDefault("render", "max_chars_per_line", 45)
	cfg.BackgroundColor = ini.getDefault("render", "background_color", "#1a1a2e")
	cfg.TextColor = ini.getDefault("render", "text_color", "white")
	cfg.RenderWorkers = ini.getIntDefault("render", "workers", 4)

	cfg.NarrationEnabled = ini.getBoolDefault("tts", "enabled", true)
	cfg.EspeakBinary = ini.getDefault("tts", "espeak_binary", "espeak")
	cfg.EspeakVoice = ini.getDefault("tts", "voice", "en")
	cfg.EspeakSpeed = ini.getIntDefault("tts", "speed", 150)
	cfg.MaxTTSChars = ini.getIntDefault("tts", "max_chars", 400)

	cfg.FFmpegBinary = ini.getDefault("encode", "ffmpeg_binary", "ffmpeg")
	cfg.FFprobeBinary = ini.getDefault("encode", "ffprobe_binary", "ffprobe")

	cfg.RenderTimeout = ini.getDurationDefault("timeouts", "render", 30*time.Second)
	cfg.EncodeTimeout = ini.getDurationDefault("timeouts", "encode", 5*time.Minute)
	cfg.TTSTimeout = ini.getDurationDefault("timeouts", "tts", time.Minute)
	cfg.UploadTimeout = ini.getDurationDefault("timeouts", "upload", 15*time.Minute)

	cfg.OpenAIAPIKey = firstNonEmpty(ini.get("openai", "api_key"), os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAIBaseURL = ini.get("openai", "base_url")
	cfg.OpenAIModel = ini.getDefault("openai", "model", "gpt-4o-mini")
	cfg.FactAttempts = ini.getIntDefault("openai", "max_attempts", 7)
	cfg.MinFactLength = ini.getIntDefault("openai", "min_fact_length", 20)
	cfg.MaxFactLength = ini.getIntDefault("openai", "max_fact_length", 280)

	cfg.YoutubeUploadScript = ini.get("youtube", "upload_script")
	cfg.YoutubeCategory = ini.getDefault("youtube", "category", "27")
	cfg.YoutubePrivacy = ini.getDefault("youtube", "privacy_status", "public")
	cfg.LinkedInAccessToken = firstNonEmpty(ini.get("linkedin", "access_token"), os.Getenv("LINKEDIN_ACCESS_TOKEN"))
	cfg.LinkedInOrgID = ini.get("linkedin", "organization_id")

	cfg.DBURL = firstNonEmpty(ini.get("db", "url"), ini.get("db", "database_url"))
	cfg.DBHost = ini.getDefault("db", "host", "127.0.0.1")
	cfg.DBPort = ini.getIntDefault("db", "port", 5432)
	cfg.DBName = ini.getDefault("db", "name", "factmill")
	cfg.DBUser = ini.getDefault("db", "user", "factmill")
	cfg.DBPassword = ini.get("db", "password")
	cfg.DBSSLMode = ini.getDefault("db", "sslmode", "prefer")

	cfg.RabbitMQHost = ini.getDefault("rabbitmq", "host", "127.0.0.1")
	cfg.RabbitMQPort = ini.getIntDefault("rabbitmq", "port", 5672)
	cfg.RabbitMQUser = ini.getDefault("rabbitmq", "user", "guest")
	cfg.RabbitMQPassword = ini.getDefault("rabbitmq", "password", "guest")
	cfg.RabbitMQVHost = ini.getDefault("rabbitmq", "vhost", "/")

	if cfg.BaseOutputFolder == "" {
		return cfg, errors.New("app.base_output_folder must be set in config.ini")
	}

	return cfg, nil
}

func (c Config) DBConnString() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBUser,
		c.DBPassword,
		c.DBSSLMode,
	)
}

func (c Config) RabbitMQURL() string {
	vhost := strings.TrimPrefix(c.RabbitMQVHost, "/")
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d/%s",
		c.RabbitMQUser,
		c.RabbitMQPassword,
		c.RabbitMQHost,
		c.RabbitMQPort,
		vhost,
	)
}

type iniData struct {
	sections map[string]map[string]string
}

func readINI(path string) (iniData, error) {
	file, err := os.Open(path)
	if err != nil {
		return iniData{}, err
	}
	defer file.Close()

	data := iniData{sections: map[string]map[string]string{}}
	section := "default"
	data.sections[section] = map[string]string{}

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			section = strings.ToLower(section)
			if section == "" {
				return iniData{}, fmt.Errorf("invalid section header at line %d", lineNo)
			}
			if _, ok := data.sections[section]; !ok {
				data.sections[section] = map[string]string{}
			}
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return iniData{}, fmt.Errorf("invalid line %d: %q", lineNo, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return iniData{}, fmt.Errorf("empty key at line %d", lineNo)
		}
		value = strings.TrimSpace(value)
		value = trimQuotes(value)
		data.sections[section][key] = value
	}
	if err := scanner.Err(); err != nil {
		return iniData{}, err
	}
	return data, nil
}

func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	if value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	if value[0] == '\'' && value[len(value)-1] == '\'' {
		return value[1 : len(value)-1]
	}
	return value
}

func (ini iniData) get(section, key string) string {
	if len(ini.sections) == 0 {
		return ""
	}
	section = strings.ToLower(section)
	key = strings.ToLower(key)
	if section == "" {
		section = "default"
	}
	if values, ok := ini.sections[section]; ok {
		return values[key]
	}
	return ""
}

func (ini iniData) getDefault(section, key, fallback string) string {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	return value
}

func (ini iniData) getIntDefault(section, key string, fallback int) int {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (ini iniData) getFloatDefault(section, key string, fallback float64) float64 {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func (ini iniData) getBoolDefault(section, key string, fallback bool) bool {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (ini iniData) getDurationDefault(section, key string, fallback time.Duration) time.Duration {
	value := ini.get(section, key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
