package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TIMEZONE_OFFSET_MINUTES", "")
	t.Setenv("NEARLY_EXPIRY_DAYS", "")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" || cfg.Address() != ":8080" {
		t.Fatalf("port default = %q", cfg.Port)
	}
	if cfg.TimezoneOffsetMinutes != 360 {
		t.Fatalf("timezone offset default = %d, want 360", cfg.TimezoneOffsetMinutes)
	}
	if cfg.NearlyExpiryDays != 90 {
		t.Fatalf("nearly expiry default = %d, want 90", cfg.NearlyExpiryDays)
	}
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("cache ttl default = %d, want 30", cfg.ReportCacheTTLSeconds)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("NEARLY_EXPIRY_DAYS", "-5")
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "zero")

	cfg := Load()
	if cfg.NearlyExpiryDays != 90 {
		t.Fatalf("negative nearly days should fall back to 90, got %d", cfg.NearlyExpiryDays)
	}
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("unparsable ttl should fall back to 30, got %d", cfg.ReportCacheTTLSeconds)
	}
}

func TestLoadNegativeOffsetAllowed(t *testing.T) {
	t.Setenv("TIMEZONE_OFFSET_MINUTES", "-300")

	cfg := Load()
	if cfg.TimezoneOffsetMinutes != -300 {
		t.Fatalf("offset = %d, want -300 (western offsets are valid)", cfg.TimezoneOffsetMinutes)
	}
}
