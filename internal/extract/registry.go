package extract

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"advisor/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
)

// 标签模式表是带版本的配置：新增一种措辞只改 labels.yaml，不动解析逻辑。

const numberPattern = `\$?\s*([0-9]+(?:[ \x{00a0}][0-9]{3})*(?:[.,][0-9]+)?)`

const labelsSchema = `{
  "type": "object",
  "required": ["version", "fields", "direction"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "fields": {
      "type": "object",
      "required": ["entry", "stop", "take_profit"],
      "additionalProperties": {
        "type": "object",
        "required": ["labels"],
        "properties": {
          "labels": {"type": "array", "items": {"type": "string"}, "minItems": 1},
          "emoji": {"type": "string"}
        }
      }
    },
    "direction": {
      "type": "object",
      "required": ["buy", "sell"],
      "properties": {
        "buy": {"type": "array", "items": {"type": "string"}, "minItems": 1},
        "sell": {"type": "array", "items": {"type": "string"}, "minItems": 1}
      }
    }
  }
}`

// fieldSpec labels.yaml 中单个字段的词表。
type fieldSpec struct {
	Labels []string `mapstructure:"labels" yaml:"labels"`
	Emoji  string   `mapstructure:"emoji" yaml:"emoji"`
}

type fileConfig struct {
	Version   int                  `mapstructure:"version" yaml:"version"`
	Fields    map[string]fieldSpec `mapstructure:"fields" yaml:"fields"`
	Direction struct {
		Buy  []string `mapstructure:"buy" yaml:"buy"`
		Sell []string `mapstructure:"sell" yaml:"sell"`
	} `mapstructure:"direction" yaml:"direction"`
}

// fieldMatcher 一个目标字段的按优先级编译好的匹配器：文字标签在前，emoji 兜底。
type fieldMatcher struct {
	name     string
	patterns []*regexp.Regexp
}

// Snapshot 当前生效的模式表。
type Snapshot struct {
	Version  int
	LoadedAt time.Time

	entry      fieldMatcher
	stop       fieldMatcher
	takeProfit fieldMatcher
	buyWords   []string
	sellWords  []string
}

// Registry 监听 labels.yaml 的热更新；解析端总是读最新快照。
type Registry struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("label registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read labels config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("labels reload failed, keeping previous table: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前模式表。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

func (r *Registry) reload() error {
	if err := r.v.ReadInConfig(); err != nil {
		return err
	}
	settings := r.v.AllSettings()
	if err := validateLabels(settings); err != nil {
		return err
	}
	var cfg fileConfig
	if err := r.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode labels config failed: %w", err)
	}
	snap, err := compileSnapshot(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()
	logger.Infof("labels table loaded: version=%d path=%s", snap.Version, r.path)
	return nil
}

func validateLabels(settings map[string]any) error {
	schema, err := jsonschema.CompileString("labels.json", labelsSchema)
	if err != nil {
		return fmt.Errorf("compile labels schema failed: %w", err)
	}
	if err := schema.Validate(normalizeForSchema(settings)); err != nil {
		return fmt.Errorf("labels config rejected by schema: %w", err)
	}
	return nil
}

// viper 解出的数字是 int，jsonschema 期望 json 风格的值，做一次宽化。
func normalizeForSchema(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeForSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeForSchema(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

func compileSnapshot(cfg fileConfig) (Snapshot, error) {
	snap := Snapshot{
		Version:   cfg.Version,
		LoadedAt:  time.Now(),
		buyWords:  lowerAll(cfg.Direction.Buy),
		sellWords: lowerAll(cfg.Direction.Sell),
	}
	var err error
	if snap.entry, err = compileField("entry", cfg.Fields["entry"]); err != nil {
		return Snapshot{}, err
	}
	if snap.stop, err = compileField("stop", cfg.Fields["stop"]); err != nil {
		return Snapshot{}, err
	}
	if snap.takeProfit, err = compileField("take_profit", cfg.Fields["take_profit"]); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func compileField(name string, spec fieldSpec) (fieldMatcher, error) {
	m := fieldMatcher{name: name}
	for _, label := range spec.Labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		expr := `(?i)` + regexp.QuoteMeta(label) + `\s*[:\-–=]?\s*` + numberPattern
		re, err := regexp.Compile(expr)
		if err != nil {
			return m, fmt.Errorf("field %s: label %q: %w", name, label, err)
		}
		m.patterns = append(m.patterns, re)
	}
	if emoji := strings.TrimSpace(spec.Emoji); emoji != "" {
		expr := regexp.QuoteMeta(emoji) + `[^0-9\n]*` + numberPattern
		re, err := regexp.Compile(expr)
		if err != nil {
			return m, fmt.Errorf("field %s: emoji marker: %w", name, err)
		}
		m.patterns = append(m.patterns, re)
	}
	if len(m.patterns) == 0 {
		return m, fmt.Errorf("field %s: no usable label patterns", name)
	}
	return m, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DefaultSnapshot 内置词表：没有 labels.yaml 时（以及测试里）兜底使用。
func DefaultSnapshot() Snapshot {
	cfg := fileConfig{
		Version: 1,
		Fields: map[string]fieldSpec{
			"entry":       {Labels: []string{"точка входа", "вход", "entry"}, Emoji: "🎯"},
			"stop":        {Labels: []string{"стоп-лосс", "стоп", "stoploss", "stop loss", "stop"}, Emoji: "🛑"},
			"take_profit": {Labels: []string{"тейк-профит", "тейк", "takeprofit", "take profit", "цель", "target", "tp"}, Emoji: "💰"},
		},
	}
	cfg.Direction.Buy = []string{"buy", "long", "лонг", "покупка", "покупать"}
	cfg.Direction.Sell = []string{"sell", "short", "шорт", "продажа", "продавать"}
	snap, err := compileSnapshot(cfg)
	if err != nil {
		panic(fmt.Sprintf("builtin labels table failed to compile: %v", err))
	}
	return snap
}
