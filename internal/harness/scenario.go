package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one ledger test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides the default ledger configuration.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Users are created in order before the first step.
	Users []UserSpec `yaml:"users"`

	// Steps run in order against the ledger.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig holds the configuration a scenario may change.
// Unset fields keep config.Default values.
type ScenarioConfig struct {
	SybilThreshold *int   `yaml:"sybil_threshold,omitempty"`
	SybilWindow    string `yaml:"sybil_window,omitempty"`
	PoolUnknown    *bool  `yaml:"pool_unknown,omitempty"`
	BatchSize      *int   `yaml:"batch_size,omitempty"`
	MinLevel       *int   `yaml:"min_level,omitempty"`
	MinAds         *int64 `yaml:"min_ads,omitempty"`
}

// UserSpec declares a user to create.
type UserSpec struct {
	ID       string `yaml:"id"`
	Referrer string `yaml:"referrer,omitempty"`
	Level    int    `yaml:"level,omitempty"`
}

// Step is one scenario action. Exactly one action field must be set.
type Step struct {
	Confirm  *ConfirmStep  `yaml:"confirm,omitempty"`
	Advance  string        `yaml:"advance,omitempty"`
	SetLevel *SetLevelStep `yaml:"set_level,omitempty"`
	Drain    bool          `yaml:"drain,omitempty"`
	Sweep    string        `yaml:"sweep,omitempty"`

	// Expect is the required outcome of every execution of this step.
	// Empty means any outcome is accepted.
	Expect string `yaml:"expect,omitempty"`
}

// ConfirmStep settles a reward confirmation.
type ConfirmStep struct {
	User   string `yaml:"user"`
	Reward string `yaml:"reward,omitempty"`
	IP     string `yaml:"ip,omitempty"`
	Device string `yaml:"device,omitempty"`
	ID     string `yaml:"id,omitempty"`
	// Repeat runs the confirmation this many times (default 1).
	Repeat int `yaml:"repeat,omitempty"`
}

// SetLevelStep raises a user's level.
type SetLevelStep struct {
	User  string `yaml:"user"`
	Level int    `yaml:"level"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// User names the user (user, alert_count).
	User string `yaml:"user,omitempty"`

	// Expect holds expected user fields (user). Decimal fields compare
	// numerically.
	Expect map[string]string `yaml:"expect,omitempty"`

	// Where filters commission logs (log_count): source, recipient, tier, status.
	Where map[string]string `yaml:"where,omitempty"`

	// Alert filters alerts by type (alert_count).
	Alert string `yaml:"alert,omitempty"`

	// Count is the expected number of matches (log_count, alert_count, sweep_tasks).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertUser         = "user"
	AssertLogCount     = "log_count"
	AssertAlertCount   = "alert_count"
	AssertSweepTasks   = "sweep_tasks"
	AssertConservation = "conservation"
)

// Step outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeFlagged     = "flagged"
	OutcomeDuplicate   = "duplicate"
	OutcomeUnknownUser = "unknown_user"
	OutcomePartial     = "partial"
	OutcomeNotEligible = "not_eligible"
	OutcomeError       = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Users) == 0 {
		return fmt.Errorf("users list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Config.SybilWindow != "" {
		if _, err := time.ParseDuration(s.Config.SybilWindow); err != nil {
			return fmt.Errorf("config.sybil_window: %w", err)
		}
	}

	seen := map[string]bool{}
	for i, u := range s.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		if u.Referrer != "" && !seen[u.Referrer] {
			return fmt.Errorf("users[%d]: referrer %q must be declared earlier", i, u.Referrer)
		}
		seen[u.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	actions := 0
	if st.Confirm != nil {
		actions++
		if st.Confirm.User == "" {
			return fmt.Errorf("steps[%d].confirm: user is required", index)
		}
		if st.Confirm.Repeat < 0 {
			return fmt.Errorf("steps[%d].confirm: repeat must be non-negative", index)
		}
	}
	if st.Advance != "" {
		actions++
		if d, err := time.ParseDuration(st.Advance); err != nil || d < 0 {
			return fmt.Errorf("steps[%d]: advance must be a non-negative duration", index)
		}
	}
	if st.SetLevel != nil {
		actions++
		if st.SetLevel.User == "" || st.SetLevel.Level < 1 {
			return fmt.Errorf("steps[%d].set_level: user and level >= 1 are required", index)
		}
	}
	if st.Drain {
		actions++
	}
	if st.Sweep != "" {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, actions)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertUser:
		if a.User == "" {
			return fmt.Errorf("assertions[%d]: user is required for user", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for user", index)
		}
		for field := range a.Expect {
			if _, ok := userFields[field]; !ok {
				return fmt.Errorf("assertions[%d]: unknown user field %q", index, field)
			}
		}
	case AssertLogCount:
		for key := range a.Where {
			switch key {
			case "source", "recipient", "tier", "status":
			default:
				return fmt.Errorf("assertions[%d]: unknown log filter %q", index, key)
			}
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertAlertCount, AssertSweepTasks:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertConservation:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
