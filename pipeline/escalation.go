package pipeline

import (
	"regexp"
	"strings"
	"sync"
)

// EscalationTrigger names which detection strategy fired.
type EscalationTrigger string

const (
	TriggerKeyword  EscalationTrigger = "keyword"
	TriggerSentiment EscalationTrigger = "sentiment"
	TriggerTurns    EscalationTrigger = "turns"
	TriggerRepeated EscalationTrigger = "repeated"
	TriggerDTMF     EscalationTrigger = "dtmf"
)

// EscalationResult reports the outcome of one escalation check (spec
// §4.7).
type EscalationResult struct {
	ShouldEscalate bool
	Reason         string
	Confidence     float64
	Trigger        EscalationTrigger
	Metadata       map[string]any
}

// defaultKeywordTriggers and defaultAngerPatterns mirror
// original_source/voxbridge/pipeline/escalation.py's literal defaults.
var defaultKeywordTriggers = []string{
	"speak to a human",
	"speak to an agent",
	"talk to a person",
	"talk to a human",
	"talk to an agent",
	"transfer me",
	"connect me to a person",
	"real person",
	"human agent",
	"representative",
	"operator",
	"supervisor",
	"manager",
	"let me speak to someone",
	"I want a human",
}

var defaultAngerPatterns = []string{
	`this is (?:so |really )?(?:frustrating|ridiculous|unacceptable|terrible|awful)`,
	`(?:I'm|I am) (?:so |really |very )?(?:angry|frustrated|upset|furious|mad)`,
	`(?:you're|you are) (?:useless|terrible|awful|incompetent|stupid|dumb)`,
	`this (?:doesn't|does not|isn't|is not) (?:help|work|make sense)`,
	`(?:wtf|omg|seriously|come on|for god'?s? sake)\b`,
	`I (?:already|just) (?:told|said|explained) (?:you|that)`,
	`what the (?:hell|heck|fuck)\b`,
}

// EscalationConfig tunes an EscalationDetector.
type EscalationConfig struct {
	Enabled                  bool
	KeywordTriggers          []string
	MaxTurnsBeforeEscalation int
	RepeatedQuestionThreshold int
	TransferNumber           string
	TransferMessage          string
}

// DefaultEscalationConfig matches the Python dataclass defaults.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		Enabled:                   true,
		KeywordTriggers:           append([]string(nil), defaultKeywordTriggers...),
		MaxTurnsBeforeEscalation:  15,
		RepeatedQuestionThreshold: 3,
		TransferMessage:           "I'm transferring you to a human agent now. Please hold.",
	}
}

// EscalationDetector decides when a call should be handed off to a
// human agent: keyword match, anger-pattern regex, turn-count ceiling,
// repeated-question similarity, or an explicit DTMF "0" (spec §4.7).
type EscalationDetector struct {
	cfg           EscalationConfig
	angerPatterns []*regexp.Regexp

	mu         sync.Mutex
	turnCount  int
	messages   []string
	triggered  bool
}

// NewEscalationDetector builds a detector from cfg, filling in
// DefaultEscalationConfig's values for any unset slice/threshold
// fields.
func NewEscalationDetector(cfg EscalationConfig) *EscalationDetector {
	d := DefaultEscalationConfig()
	d.Enabled = cfg.Enabled
	if len(cfg.KeywordTriggers) > 0 {
		d.KeywordTriggers = cfg.KeywordTriggers
	}
	if cfg.MaxTurnsBeforeEscalation > 0 {
		d.MaxTurnsBeforeEscalation = cfg.MaxTurnsBeforeEscalation
	}
	if cfg.RepeatedQuestionThreshold > 0 {
		d.RepeatedQuestionThreshold = cfg.RepeatedQuestionThreshold
	}
	if cfg.TransferNumber != "" {
		d.TransferNumber = cfg.TransferNumber
	}
	if cfg.TransferMessage != "" {
		d.TransferMessage = cfg.TransferMessage
	}

	patterns := make([]*regexp.Regexp, 0, len(defaultAngerPatterns))
	for _, p := range defaultAngerPatterns {
		patterns = append(patterns, regexp.MustCompile("(?i)"+p))
	}
	return &EscalationDetector{cfg: d, angerPatterns: patterns}
}

// TransferMessage returns the configured pre-transfer announcement.
func (d *EscalationDetector) TransferMessage() string { return d.cfg.TransferMessage }

// TurnCount returns the number of user turns observed so far.
func (d *EscalationDetector) TurnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.turnCount
}

// CheckUserMessage evaluates one caller turn against the keyword,
// sentiment, turn-count, and repeated-question strategies in that
// priority order, per spec §4.7.
func (d *EscalationDetector) CheckUserMessage(text string) EscalationResult {
	if !d.cfg.Enabled {
		return EscalationResult{}
	}

	d.mu.Lock()
	if d.triggered {
		d.mu.Unlock()
		return EscalationResult{}
	}
	d.turnCount++
	lower := strings.ToLower(strings.TrimSpace(text))
	d.messages = append(d.messages, lower)

	for _, kw := range d.cfg.KeywordTriggers {
		if strings.Contains(lower, strings.ToLower(kw)) {
			d.triggered = true
			d.mu.Unlock()
			return EscalationResult{
				ShouldEscalate: true,
				Reason:         "Caller requested human: '" + kw + "'",
				Confidence:     0.95,
				Trigger:        TriggerKeyword,
				Metadata:       map[string]any{"keyword": kw},
			}
		}
	}

	for i, re := range d.angerPatterns {
		if re.MatchString(lower) {
			d.mu.Unlock()
			return EscalationResult{
				ShouldEscalate: true,
				Reason:         "Caller frustration detected",
				Confidence:     0.7,
				Trigger:        TriggerSentiment,
				Metadata:       map[string]any{"pattern": defaultAngerPatterns[i]},
			}
		}
	}

	if d.turnCount >= d.cfg.MaxTurnsBeforeEscalation {
		count := d.turnCount
		d.mu.Unlock()
		return EscalationResult{
			ShouldEscalate: true,
			Reason:         "Conversation exceeded configured turn limit",
			Confidence:     0.6,
			Trigger:        TriggerTurns,
			Metadata:       map[string]any{"turn_count": count},
		}
	}

	if len(d.messages) >= d.cfg.RepeatedQuestionThreshold {
		recent := append([]string(nil), d.messages[len(d.messages)-d.cfg.RepeatedQuestionThreshold:]...)
		d.mu.Unlock()
		if areSimilar(recent, 0.6) {
			return EscalationResult{
				ShouldEscalate: true,
				Reason:         "Caller is repeating the same question",
				Confidence:     0.65,
				Trigger:        TriggerRepeated,
				Metadata:       map[string]any{"repeated_messages": recent},
			}
		}
		return EscalationResult{}
	}
	d.mu.Unlock()

	return EscalationResult{}
}

// CheckDTMF evaluates a single DTMF digit. Pressing "0" always
// escalates with confidence 1.0 (spec §8).
func (d *EscalationDetector) CheckDTMF(digit string) EscalationResult {
	if !d.cfg.Enabled {
		return EscalationResult{}
	}
	if digit == "0" {
		d.mu.Lock()
		d.triggered = true
		d.mu.Unlock()
		return EscalationResult{
			ShouldEscalate: true,
			Reason:         "Caller pressed 0 to speak with a human agent",
			Confidence:     1.0,
			Trigger:        TriggerDTMF,
			Metadata:       map[string]any{"digit": digit},
		}
	}
	return EscalationResult{}
}

// Reset clears per-call escalation state.
func (d *EscalationDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.turnCount = 0
	d.messages = nil
	d.triggered = false
}

// areSimilar implements the Jaccard-overlap repeated-question check:
// escalate when at least half the pairwise comparisons among the
// recent window exceed threshold (original_source/voxbridge/pipeline/escalation.py's
// `_are_similar`).
func areSimilar(messages []string, threshold float64) bool {
	if len(messages) < 2 {
		return false
	}
	sets := make([]map[string]struct{}, len(messages))
	for i, m := range messages {
		set := map[string]struct{}{}
		for _, w := range strings.Fields(m) {
			set[w] = struct{}{}
		}
		sets[i] = set
	}

	similarCount, totalPairs := 0, 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			totalPairs++
			if len(sets[i]) == 0 || len(sets[j]) == 0 {
				continue
			}
			inter, union := 0, len(sets[i])
			for w := range sets[j] {
				if _, ok := sets[i][w]; ok {
					inter++
				} else {
					union++
				}
			}
			if union == 0 {
				continue
			}
			if float64(inter)/float64(union) >= threshold {
				similarCount++
			}
		}
	}
	if totalPairs == 0 {
		return false
	}
	return float64(similarCount) >= float64(totalPairs)*0.5
}
