package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PromptsConfig contains the texts loaded from YAML
type PromptsConfig struct {
	Classifier ClassifierPrompts `yaml:"classifier"`
	Notice     NoticeTexts       `yaml:"notice"`
}

// ClassifierPrompts contains the classifier system prompt
type ClassifierPrompts struct {
	SystemPrompt string `yaml:"system_prompt"`
}

// NoticeTexts contains the fixed parts of a delivered notice
type NoticeTexts struct {
	Header     []string `yaml:"header"`
	BlockLabel string   `yaml:"block_label"`
}

// LoadPromptsConfig loads prompts from configPath, or from the first
// configs/prompts.yaml found when configPath is empty. A missing file
// yields the defaults; returned path is "" in that case.
func LoadPromptsConfig(configPath string) (*PromptsConfig, string, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/order-relay/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
	}

	var data []byte
	var loadedPath string
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data, loadedPath = b, p
			break
		}
		if configPath != "" {
			return nil, "", fmt.Errorf("failed to read prompts config: %w", err)
		}
	}

	if data == nil {
		return DefaultPromptsConfig(), "", nil
	}

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", loadedPath, err)
	}
	config.fillDefaults()
	return &config, loadedPath, nil
}

func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	if strings.TrimSpace(c.Classifier.SystemPrompt) == "" {
		c.Classifier.SystemPrompt = defaults.Classifier.SystemPrompt
	}
	if len(c.Notice.Header) == 0 {
		c.Notice.Header = defaults.Notice.Header
	}
	if c.Notice.BlockLabel == "" {
		c.Notice.BlockLabel = defaults.Notice.BlockLabel
	}
}

// DefaultPromptsConfig returns the built-in texts
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		Classifier: ClassifierPrompts{SystemPrompt: DefaultClassifierPrompt},
		Notice: NoticeTexts{
			Header: []string{
				"Asalomu alaykum Hurmatli haydovchilar",
				"Yangi Buyurtma Keldi 😊",
			},
			BlockLabel: "🚫 Bloklash",
		},
	}
}

// DefaultClassifierPrompt labels taxi group messages
const DefaultClassifierPrompt = `You classify messages from Uzbek intercity taxi group chats.
Messages may be in Uzbek (Latin or Cyrillic), Russian or English.

Answer with one JSON object and nothing else:

{
  "type": "rider-order" | "driver-order" | "other",
  "confidence": number between 0 and 1,
  "data": {
    "from_location": "origin city or address",
    "to_location": "destination city or address",
    "time": "when (today, tomorrow, hour, date)",
    "passengers": "number of people",
    "phone": "phone number",
    "price": "price",
    "car_info": "car model or colour (drivers)",
    "notes": "anything else"
  }
}

rider-order: a passenger is looking for a car, or someone wants to send a parcel.
  Typical words: "kerak", "boraman", "ketaman", "olib keting", "pochta bor".
driver-order: a driver offers seats or parcel delivery.
  Typical words: "olib ketaman", "joy bor", "mashina ketadi", car models like Cobalt, Lacetti, Nexia.
other: greetings, questions, discussion, advertising.

Examples:
"Toshkent-Samarqand 2ta odam" -> rider-order
"Samarqanddan Toshkentga cobalt ketadi" -> driver-order
"Pochta Toshkentdan Buxoroga" -> rider-order
"Buxorodan pochta olaman" -> driver-order

Leave out data fields you cannot find.`
