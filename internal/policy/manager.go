// Package policy loads and resolves action-policy rule groups (§4.B): the
// per-product ordered list of open/close/close-today/close-yesterday rules
// that internal/trader consults when splitting a buy/sell intent into child
// orders.
package policy

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/hftcore/internal/domain"
)

// DefaultGroupName is the mandatory fallback group every config must define.
const DefaultGroupName = "default"

// fileRule mirrors one entry of a group's `order` list in the YAML file.
type fileRule struct {
	Action string `yaml:"action"`
	Limit  uint32 `yaml:"limit"`
	LimitS uint32 `yaml:"limit_s"`
	LimitL uint32 `yaml:"limit_l"`
	Pure   bool   `yaml:"pure"`
}

type fileGroup struct {
	Order   []fileRule `yaml:"order"`
	Filters []string   `yaml:"filters"`
}

type fileConfig map[string]fileGroup

// Manager resolves a product ID to its action-rule group, falling back to
// DefaultGroupName when the product is unmapped or its mapped group does
// not exist.
type Manager struct {
	groups  map[string]domain.ActionRuleGroup
	filters map[string]string // productID -> group name
}

// Load parses path as the action-policy YAML described in §6 and
// returns a ready Manager. It is an error for the default group to be
// missing.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy.Load: read %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("policy.Load: parse YAML: %w", err)
	}

	return fromFileConfig(fc)
}

func fromFileConfig(fc fileConfig) (*Manager, error) {
	m := &Manager{
		groups:  make(map[string]domain.ActionRuleGroup, len(fc)),
		filters: make(map[string]string),
	}

	for name, fg := range fc {
		group := make(domain.ActionRuleGroup, 0, len(fg.Order))
		for _, r := range fg.Order {
			at, err := parseActionType(r.Action)
			if err != nil {
				return nil, fmt.Errorf("policy.Load: group %q: %w", name, err)
			}
			group = append(group, domain.ActionRule{
				Type:       at,
				Limit:      r.Limit,
				LimitLong:  r.LimitL,
				LimitShort: r.LimitS,
				Pure:       r.Pure,
			})
		}
		m.groups[name] = group
		for _, productID := range fg.Filters {
			m.filters[productID] = name
		}
	}

	if _, ok := m.groups[DefaultGroupName]; !ok {
		return nil, fmt.Errorf("policy.Load: missing mandatory %q group", DefaultGroupName)
	}

	return m, nil
}

func parseActionType(s string) (domain.ActionType, error) {
	switch s {
	case "open":
		return domain.ActionOpen, nil
	case "close":
		return domain.ActionClose, nil
	case "close_today":
		return domain.ActionCloseToday, nil
	case "close_yesterday":
		return domain.ActionCloseYesterday, nil
	default:
		return 0, fmt.Errorf("unknown action type %q", s)
	}
}

// GetActionRules returns the rule group bound to productID, falling back to
// the default group (with a logged warning) if productID is unmapped or its
// mapped group no longer exists.
func (m *Manager) GetActionRules(productID string) domain.ActionRuleGroup {
	groupName, mapped := m.filters[productID]
	if !mapped {
		return m.groups[DefaultGroupName]
	}
	group, ok := m.groups[groupName]
	if !ok {
		slog.Warn("policy: mapped group missing, falling back to default",
			"product_id", productID, "group", groupName)
		return m.groups[DefaultGroupName]
	}
	return group
}

// Marshal re-serializes the manager's current state as the same YAML shape
// Load accepts, used by the round-trip test in §8.
func (m *Manager) Marshal() ([]byte, error) {
	fc := make(fileConfig, len(m.groups))
	filtersByGroup := make(map[string][]string, len(m.groups))
	for productID, groupName := range m.filters {
		filtersByGroup[groupName] = append(filtersByGroup[groupName], productID)
	}

	for name, group := range m.groups {
		fg := fileGroup{Filters: filtersByGroup[name]}
		for _, r := range group {
			fg.Order = append(fg.Order, fileRule{
				Action: actionTypeString(r.Type),
				Limit:  r.Limit,
				LimitS: r.LimitShort,
				LimitL: r.LimitLong,
				Pure:   r.Pure,
			})
		}
		fc[name] = fg
	}

	return yaml.Marshal(fc)
}

func actionTypeString(t domain.ActionType) string {
	switch t {
	case domain.ActionOpen:
		return "open"
	case domain.ActionClose:
		return "close"
	case domain.ActionCloseToday:
		return "close_today"
	case domain.ActionCloseYesterday:
		return "close_yesterday"
	default:
		return "open"
	}
}
