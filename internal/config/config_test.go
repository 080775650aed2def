package config

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
)

func resetSingleton() {
	instance = nil
	once = sync.Once{}
	loadErr = nil
}

// newDefaultViper returns a viper instance carrying only the defaults.
func newDefaultViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	v := newDefaultViper()
	v.Set("erp.user", "auditor")
	v.Set("erp.password", "secret")
	cfg, err := FromViper(v)
	require.NoError(t, err)
	return cfg
}

// TestGetUninitialized verifies that calling Get() before Load() causes a panic.
func TestGetUninitialized(t *testing.T) {
	resetSingleton()

	assert.Panics(t, func() {
		Get()
	}, "Get() should panic if configuration is not initialized")
}

// TestLoadAndGet verifies the basic singleton load and get functionality.
func TestLoadAndGet(t *testing.T) {
	resetSingleton()

	yamlConfig := []byte(`
target:
  url: "http://localhost:5214/api/Orders/ListOrders"
erp:
  observe: 30s
`)

	v := newDefaultViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	require.NoError(t, Load(v))

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:5214/api/Orders/ListOrders", cfg.Target.URL)
	assert.Equal(t, 30*time.Second, cfg.ERP.Observe)

	// Subsequent calls to Load do not change the instance.
	v2 := viper.New()
	v2.SetConfigType("yaml")
	_ = v2.ReadConfig(bytes.NewBuffer([]byte(`target: {url: "http://other"}`)))
	require.NoError(t, Load(v2))

	cfg2 := Get()
	assert.Same(t, cfg, cfg2, "Get() should return the same instance")
	assert.Equal(t, "http://localhost:5214/api/Orders/ListOrders", cfg2.Target.URL, "Configuration should not be reloaded")
}

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(newDefaultViper())
	require.NoError(t, err)

	assert.Equal(t, audit.DefaultTargetURL, cfg.Target.URL)
	assert.Equal(t, audit.DefaultTargetHints, cfg.Target.Hints)
	assert.Equal(t, audit.DefaultTenantHeaders, cfg.Target.TenantHeaders)
	assert.Equal(t, "POST", cfg.Target.Method)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2, cfg.Browser.Navigation.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.Browser.Navigation.Delay)
	assert.Equal(t, 12*time.Second, cfg.ERP.Observe)
	assert.Equal(t, 60*time.Second, cfg.ERP.NavigationTimeout)
	assert.Equal(t, "./bearer_tenant.txt", cfg.Capture.OutputFile)
	assert.Equal(t, ScheduleOnce, cfg.Schedule.Mode)
	assert.Equal(t, 20, cfg.Report.RecentLimit)
	assert.NotEmpty(t, cfg.ERP.Selectors.Password)
}

func TestLegacyEnvironment(t *testing.T) {
	t.Setenv("TARGET_API", "http://api.local/api/InventoryStock/GetInventoryStockSummary")
	t.Setenv("TIMEOUT_OBSERVE", "9000")
	t.Setenv("FRONTEND_OBSERVE_MS", "250")
	t.Setenv("HEADLESS", "false")
	t.Setenv("AUDIT_ERP", "false")
	t.Setenv("OUTPUT_FILE", "/tmp/pairs.txt")
	t.Setenv("WEBAUDIT_ERP_LOGIN_WAIT", "3s")

	v := newDefaultViper()
	BindEnv(v)
	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "http://api.local/api/InventoryStock/GetInventoryStockSummary", cfg.Target.URL)
	assert.Equal(t, 9*time.Second, cfg.ERP.Observe)
	assert.Equal(t, 250*time.Millisecond, cfg.Frontend.Observe)
	assert.False(t, cfg.Browser.Headless)
	assert.False(t, cfg.ERP.Enabled)
	assert.Equal(t, "/tmp/pairs.txt", cfg.Capture.OutputFile)
	assert.Equal(t, 3*time.Second, cfg.ERP.LoginWait)
}

// TestConfigValidation verifies the Validate() method.
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing target url", mutate: func(c *Config) { c.Target.URL = "" }, errorMsg: "Config.Target.URL"},
		{name: "empty tenant headers", mutate: func(c *Config) { c.Target.TenantHeaders = nil }, errorMsg: "TenantHeaders"},
		{name: "unknown schedule mode", mutate: func(c *Config) { c.Schedule.Mode = "cron" }, errorMsg: "Schedule.Mode"},
		{
			name:     "interval mode without interval",
			mutate:   func(c *Config) { c.Schedule.Mode = ScheduleInterval; c.Schedule.Interval = 0 },
			errorMsg: "schedule.interval must be positive",
		},
		{name: "erp without credentials", mutate: func(c *Config) { c.ERP.Password = "" }, errorMsg: "erp.user and erp.password"},
		{name: "erp disabled needs no credentials", mutate: func(c *Config) { c.ERP.Enabled = false; c.ERP.User = "" }},
		{
			name: "nothing to observe",
			mutate: func(c *Config) {
				c.ERP.Enabled = false
				c.Frontend.URL = ""
				c.Swagger.URL = ""
			},
			errorMsg: "at least one of",
		},
		{name: "bad report format", mutate: func(c *Config) { c.Report.Format = "xml" }, errorMsg: "Report.Format"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

// TestSet ensures that the Set function correctly sets the global instance.
func TestSet(t *testing.T) {
	resetSingleton()

	expectedCfg := &Config{Target: TargetConfig{URL: "set-from-test"}}
	Set(expectedCfg)

	actualCfg := Get()
	assert.Same(t, expectedCfg, actualCfg, "Get should return the exact instance that was Set")
}
