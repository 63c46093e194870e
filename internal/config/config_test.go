package config

import "testing"

func validBase() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080},
		Auth: AuthConfig{JWTSecret: "secret"},
		Dispatch: DispatchConfig{
			BaseURL:   "http://localhost:7880",
			APIKey:    "key",
			APISecret: "secret",
		},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_MinimalLocalConfig(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Dispatch.AgentName == "" {
		t.Fatalf("expected default agent name")
	}
	if c.HasPostgres() || c.HasRedis() {
		t.Fatalf("postgres/redis should be off without hosts")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "loanvoice"
	c.Auth.JWTAudience = "loanvoice-api"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "loanvoice", SSLMode: ""}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "loanvoice", SSLMode: ""}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_DispatchRequired(t *testing.T) {
	c := validBase()
	c.Dispatch.BaseURL = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing DISPATCH_BASE_URL")
	}
}
