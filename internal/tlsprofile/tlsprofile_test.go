package tlsprofile

import (
	"testing"

	"github.com/tasksql/taskdb/internal/config"
)

func TestRegisterSkipVerifyProfile(t *testing.T) {
	profiles := config.TLSProfilesConfig{
		"insecure": {SkipVerify: true, ServerName: "db.internal"},
	}
	if err := Register(profiles); err != nil {
		t.Fatalf("expected a skip-verify-only profile to register cleanly: %v", err)
	}
}

func TestRegisterMissingCAFileFails(t *testing.T) {
	profiles := config.TLSProfilesConfig{
		"broken": {CAFile: "/nonexistent/ca.pem"},
	}
	if err := Register(profiles); err == nil {
		t.Fatal("expected registration to fail for a missing CA file")
	}
}

func TestValidateMissingCertFails(t *testing.T) {
	err := Validate(config.TLSProfileConfig{CertFile: "/nonexistent/cert.pem"})
	if err == nil {
		t.Fatal("expected validation to fail for a missing cert file")
	}
}

func TestValidateEmptyProfileSucceeds(t *testing.T) {
	if err := Validate(config.TLSProfileConfig{}); err != nil {
		t.Fatalf("expected an empty profile to validate cleanly: %v", err)
	}
}
