package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings is the typed view of the configuration after defaults and
// environment overrides are applied
type Settings struct {
	Gateway  GatewaySettings
	LLM      LLMSettings
	Summary  SummarySettings
	Send     SendSettings
	DBPath   string
	CacheDir string
	Schedule ScheduleSettings
	Publish  PublishSettings
	Log      LogSettings

	// Groups lists chat ids from WHATSAPP_GROUP_IDS; ActiveGroup is the default
	Groups      []string
	ActiveGroup string
}

type GatewaySettings struct {
	BaseURL    string
	InstanceID string
	Token      string
	Delay      time.Duration
	Timeout    time.Duration
}

type LLMSettings struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Language    string
	Prompt      string
}

type SummarySettings struct {
	TargetCount     int
	MinCount        int
	MinForSummary   int
	MoreAttempts    int
	Strict          bool
	Days            int
	CommandPrefixes []string
}

type SendSettings struct {
	Enabled       bool
	SummariesOnly bool
}

type ScheduleSettings struct {
	Spec       string
	RetryDelay time.Duration
	MaxRetries int
	RunNow     bool
}

type PublishSettings struct {
	AMQPURL    string
	Exchange   string
	RoutingKey string
}

type LogSettings struct {
	Level  string
	Format string
	File   string
}

// Settings resolves typed settings. Environment variables win over the file.
func (c *Config) Settings() Settings {
	s := Settings{
		Gateway: GatewaySettings{
			BaseURL:    c.GetStringWithFallback("gateway.base_url", "https://api.greenapi.com"),
			InstanceID: c.GetString("gateway.instance_id"),
			Token:      c.GetString("gateway.token"),
			Delay:      time.Duration(c.GetIntWithFallback("gateway.delay_ms", 1000)) * time.Millisecond,
			Timeout:    time.Duration(c.GetIntWithFallback("gateway.timeout_s", 30)) * time.Second,
		},
		LLM: LLMSettings{
			APIKey:      c.GetString("llm.api_key"),
			BaseURL:     c.GetStringWithFallback("llm.base_url", "https://api.openai.com/v1"),
			Model:       c.GetStringWithFallback("llm.model", "gpt-4o"),
			MaxTokens:   c.GetIntWithFallback("llm.max_tokens", 2000),
			Temperature: c.GetFloatWithFallback("llm.temperature", 0.7),
			Language:    c.GetStringWithFallback("llm.language", "hebrew"),
			Prompt:      c.GetString("llm.prompt"),
		},
		Summary: SummarySettings{
			TargetCount:     c.GetIntWithFallback("summary.target_count", 800),
			MinCount:        c.GetIntWithFallback("summary.min_count", 500),
			MinForSummary:   c.GetIntWithFallback("summary.min_for_summary", 200),
			MoreAttempts:    c.GetIntWithFallback("summary.more_attempts", 3),
			Strict:          c.GetBoolWithFallback("summary.strict", true),
			Days:            c.GetIntWithFallback("summary.days", 1),
			CommandPrefixes: splitList(c.GetStringWithFallback("summary.command_prefixes", "!,/,.,#")),
		},
		Send: SendSettings{
			Enabled:       c.GetBoolWithFallback("send.enabled", false),
			SummariesOnly: c.GetBoolWithFallback("send.summaries_only", true),
		},
		DBPath:   c.GetString("db.path"),
		CacheDir: c.GetString("cache.dir"),
		Schedule: ScheduleSettings{
			Spec:       c.GetStringWithFallback("schedule.spec", "@every 24h"),
			RetryDelay: time.Duration(c.GetIntWithFallback("schedule.retry_delay_s", 60)) * time.Second,
			MaxRetries: c.GetIntWithFallback("schedule.max_retries", 3),
			RunNow:     c.GetBoolWithFallback("schedule.run_now", true),
		},
		Publish: PublishSettings{
			AMQPURL:    c.GetString("publish.amqp_url"),
			Exchange:   c.GetStringWithFallback("publish.exchange", "wadigest"),
			RoutingKey: c.GetStringWithFallback("publish.routing_key", "digest.summary.created"),
		},
		Log: LogSettings{
			Level:  c.GetStringWithFallback("log.level", "info"),
			Format: c.GetStringWithFallback("log.format", "console"),
			File:   c.GetString("log.file"),
		},
		ActiveGroup: c.GetString("groups.active"),
		Groups:      splitList(c.GetString("groups.ids")),
	}

	applyEnv(&s, os.LookupEnv)

	if s.DBPath == "" {
		s.DBPath = DefaultDBPath()
	}
	if s.CacheDir == "" {
		s.CacheDir = filepath.Join(filepath.Dir(DefaultPath()), "raw")
	}
	if s.ActiveGroup == "" && len(s.Groups) == 1 {
		s.ActiveGroup = s.Groups[0]
	}
	return s
}

// DefaultDBPath returns ~/.wadigest/wadigest.db
func DefaultDBPath() string {
	return filepath.Join(filepath.Dir(DefaultPath()), "wadigest.db")
}

func applyEnv(s *Settings, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("GREEN_API_ID_INSTANCE", &s.Gateway.InstanceID)
	str("GREEN_API_TOKEN", &s.Gateway.Token)
	str("GREEN_API_BASE_URL", &s.Gateway.BaseURL)
	str("OPENAI_API_KEY", &s.LLM.APIKey)
	str("OPENAI_MODEL", &s.LLM.Model)
	str("SUMMARY_PROMPT", &s.LLM.Prompt)
	str("ACTIVE_GROUP_ID", &s.ActiveGroup)
	str("WADIGEST_DB", &s.DBPath)

	if v, ok := lookup("WHATSAPP_GROUP_IDS"); ok && strings.TrimSpace(v) != "" {
		s.Groups = splitList(v)
	}
	if v, ok := lookup("BOT_MESSAGE_SENDING_DISABLED"); ok && parseBool(v) {
		s.Send.Enabled = false
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
