package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/hftcore/internal/domain"
)

const sampleYAML = `
default:
  order:
    - action: close_today
      limit: 100
      pure: false
    - action: close
      limit: 100
    - action: open
      limit: 100
  filters: []
au:
  order:
    - action: open
      limit: 50
      limit_l: 30
      limit_s: 20
  filters: [au2410, au2412]
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadBuildsGroupsAndFilters(t *testing.T) {
	m, err := Load(writeSample(t))
	require.NoError(t, err)

	au := m.GetActionRules("au2410")
	require.Len(t, au, 1)
	assert.Equal(t, domain.ActionOpen, au[0].Type)
	assert.Equal(t, uint32(50), au[0].Limit)
	assert.Equal(t, uint32(30), au[0].LimitLong)
	assert.Equal(t, uint32(20), au[0].LimitShort)
}

func TestGetActionRulesFallsBackToDefaultForUnmappedProduct(t *testing.T) {
	m, err := Load(writeSample(t))
	require.NoError(t, err)

	rules := m.GetActionRules("rb2410")
	require.Len(t, rules, 3)
	assert.Equal(t, domain.ActionCloseToday, rules[0].Type)
	assert.Equal(t, domain.ActionClose, rules[1].Type)
	assert.Equal(t, domain.ActionOpen, rules[2].Type)
}

func TestGetActionRulesFallsBackWhenMappedGroupMissing(t *testing.T) {
	fc := fileConfig{
		DefaultGroupName: fileGroup{
			Order:   []fileRule{{Action: "open", Limit: 10}},
			Filters: nil,
		},
	}
	m, err := fromFileConfig(fc)
	require.NoError(t, err)
	m.filters["ghost"] = "nonexistent"

	rules := m.GetActionRules("ghost")
	require.Len(t, rules, 1)
	assert.Equal(t, domain.ActionOpen, rules[0].Type)
}

func TestLoadRequiresDefaultGroup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("au:\n  order: []\n  filters: []\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestRoundTripPreservesGroupsAndFilters(t *testing.T) {
	m, err := Load(writeSample(t))
	require.NoError(t, err)

	out, err := m.Marshal()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o644))

	reloaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, m.GetActionRules("au2410"), reloaded.GetActionRules("au2410"))
	assert.Equal(t, m.GetActionRules("rb2410"), reloaded.GetActionRules("rb2410"))
}
