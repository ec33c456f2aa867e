package config

import (
	"testing"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
Origin = "https://estimapres.app"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadReadsPaymentSecretsFromEnv(t *testing.T) {
	t.Setenv("MP_ACCESS_TOKEN", "TEST-token")
	t.Setenv("MP_WEBHOOK_SECRET", "s3cret")

	path := writeTempConfig(t, `
Origin = "https://estimapres.app"
[Store]
Path = "`+t.TempDir()+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Payment.AccessToken != "TEST-token" {
		t.Fatalf("AccessToken 应来自 MP_ACCESS_TOKEN，得到 %q", cfg.Payment.AccessToken)
	}
	if cfg.Payment.WebhookSecret != "s3cret" {
		t.Fatalf("WebhookSecret 应来自 MP_WEBHOOK_SECRET，得到 %q", cfg.Payment.WebhookSecret)
	}
	if cfg.Payment.AuthMode() != "token" {
		t.Fatalf("unexpected auth mode: %s", cfg.Payment.AuthMode())
	}
}

func TestLoadNormalizesHostsAndSchemes(t *testing.T) {
	path := writeTempConfig(t, `
Origin = "https://estimapres.app/"
CacheFirstHosts = [" Fonts.Example.com "]
ExcludedSchemes = ["Chrome-Extension:", "moz-extension"]
[Store]
Driver = "MEMORY"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Worker.Origin != "https://estimapres.app" {
		t.Fatalf("Origin 末尾的 / 应被去掉，得到 %s", cfg.Worker.Origin)
	}
	if got := cfg.Worker.CacheFirstHosts; len(got) != 1 || got[0] != "fonts.example.com" {
		t.Fatalf("CacheFirstHosts 未被规范化: %v", got)
	}
	if got := cfg.Worker.ExcludedSchemes; len(got) != 2 || got[0] != "chrome-extension" {
		t.Fatalf("ExcludedSchemes 未被规范化: %v", got)
	}
	if cfg.Store.Driver != StoreDriverMemory {
		t.Fatalf("Driver 应转为小写，得到 %s", cfg.Store.Driver)
	}
}
