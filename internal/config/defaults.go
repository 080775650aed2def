package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
)

// EnvPrefix namespaces structured environment overrides (WEBAUDIT_TARGET_URL, ...).
const EnvPrefix = "WEBAUDIT"

// legacyEnv maps config keys to the plain variable names the audit scripts
// have always read from .env files.
var legacyEnv = map[string]string{
	"target.url":                "TARGET_API",
	"erp.url":                   "ERP_URL",
	"erp.user":                  "ERP_USER",
	"erp.password":              "ERP_PASS",
	"erp.enabled":               "AUDIT_ERP",
	"erp.stock_route":           "ERP_STOCK_ROUTE",
	"erp.navigation_timeout":    "TIMEOUT_NAV_ERP",
	"erp.login_wait":            "TIMEOUT_LOGIN",
	"erp.observe":               "TIMEOUT_OBSERVE",
	"swagger.url":               "SWAGGER_URL",
	"frontend.url":              "FRONTEND_URL",
	"frontend.observe":          "FRONTEND_OBSERVE_MS",
	"frontend.interactive_wait": "WAIT_INTERACTIVE_MS",
	"browser.headless":          "HEADLESS",
	"capture.output_file":       "OUTPUT_FILE",
	"postgres.url":              "DATABASE_URL",
}

// millisKeys hold durations that the legacy variables express as bare
// millisecond counts.
var millisKeys = []string{
	"erp.navigation_timeout",
	"erp.settle_wait",
	"erp.login_wait",
	"erp.observe",
	"frontend.navigation_timeout",
	"frontend.observe",
	"frontend.interactive_wait",
	"swagger.navigation_timeout",
	"swagger.observe",
	"swagger.interactive_wait",
	"browser.navigation.delay",
	"schedule.interval",
}

// SetDefaults registers the documented default for every option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "webaudit")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("target.url", audit.DefaultTargetURL)
	v.SetDefault("target.hints", audit.DefaultTargetHints)
	v.SetDefault("target.method", "POST")
	v.SetDefault("target.tenant_headers", audit.DefaultTenantHeaders)
	v.SetDefault("target.only_target", false)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation.max_attempts", 2)
	v.SetDefault("browser.navigation.delay", 1500*time.Millisecond)
	v.SetDefault("browser.error_screenshot", "erp-error.png")

	v.SetDefault("frontend.url", "http://localhost:4200")
	v.SetDefault("frontend.navigation_timeout", 15*time.Second)
	v.SetDefault("frontend.observe", 20*time.Second)
	v.SetDefault("frontend.interactive_wait", time.Duration(0))

	v.SetDefault("swagger.url", "")
	v.SetDefault("swagger.navigation_timeout", 15*time.Second)
	v.SetDefault("swagger.observe", 6*time.Second)

	v.SetDefault("erp.enabled", true)
	v.SetDefault("erp.url", "https://erp.dev.inovepic.dev/#/login")
	v.SetDefault("erp.stock_route", "#/stock")
	v.SetDefault("erp.navigation_timeout", 60*time.Second)
	v.SetDefault("erp.settle_wait", 2*time.Second)
	v.SetDefault("erp.login_wait", 4*time.Second)
	v.SetDefault("erp.observe", 12*time.Second)
	v.SetDefault("erp.audit_storage", true)
	v.SetDefault("erp.selectors.username", []string{
		`label:username|usu[aá]rio|login|user`,
		`input[name="username"], input[name="user"], input[id*="user" i], input[id*="login" i]`,
		`input[placeholder*="username" i], input[placeholder*="usu" i], input[placeholder*="email" i]`,
		`input[type="email"]`,
	})
	v.SetDefault("erp.selectors.password", []string{
		`label:password|senha`,
		`input[name="password"], input[id*="pass" i]`,
		`input[placeholder*="password" i], input[placeholder*="senha" i]`,
		`input[type="password"]`,
	})
	v.SetDefault("erp.selectors.submit", []string{
		`text:login|entrar|acessar|sign in`,
		`button[type="submit"]`,
		`input[type="submit"]`,
	})

	v.SetDefault("capture.output_file", "./bearer_tenant.txt")

	v.SetDefault("report.recent_limit", 20)
	v.SetDefault("report.target_limit", 10)
	v.SetDefault("report.format", "text")

	v.SetDefault("schedule.mode", string(ScheduleOnce))
	v.SetDefault("schedule.interval", 5*time.Minute)
}

// BindEnv wires the WEBAUDIT_ prefix and the legacy variable names.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		structured := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, structured, legacy)
	}
}

// normalizeMillis turns bare integers ("12000") into millisecond durations so
// the legacy variables decode into time.Duration fields.
func normalizeMillis(v *viper.Viper) {
	for _, key := range millisKeys {
		raw, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw != "" && isDigits(raw) {
			v.Set(key, raw+"ms")
		}
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
