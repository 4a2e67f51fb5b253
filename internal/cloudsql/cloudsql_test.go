package cloudsql

import (
	"strings"
	"testing"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestDatabaseURLPrefersDirectURL(t *testing.T) {
	got, err := DatabaseURL(env(map[string]string{
		"DATABASE_URL":             "postgres://u:p@localhost/echoloop",
		"INSTANCE_CONNECTION_NAME": "proj:region:inst",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "postgres://u:p@localhost/echoloop" {
		t.Errorf("expected DATABASE_URL, got %q", got)
	}
}

func TestDatabaseURLBuildsSocketString(t *testing.T) {
	got, err := DatabaseURL(env(map[string]string{
		"INSTANCE_CONNECTION_NAME": "proj:region:inst",
		"DB_USER":                  "bot",
		"DB_PASSWORD":              "it's secret",
		"DB_NAME":                  "echoloop",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `host=/cloudsql/proj:region:inst user=bot password='it\'s secret' dbname=echoloop sslmode=disable`
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestDatabaseURLWithoutPassword(t *testing.T) {
	got, err := DatabaseURL(env(map[string]string{
		"INSTANCE_CONNECTION_NAME": "proj:region:inst",
		"DB_USER":                  "bot@proj.iam",
		"DB_NAME":                  "echoloop",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "password") {
		t.Errorf("expected no password keyword, got %q", got)
	}
}

func TestDatabaseURLErrors(t *testing.T) {
	got, err := DatabaseURL(env(nil))
	if err != nil || got != "" {
		t.Errorf("expected empty result without configuration, got %q, %v", got, err)
	}

	if _, err := DatabaseURL(env(map[string]string{"INSTANCE_CONNECTION_NAME": "p:r:i"})); err == nil {
		t.Error("expected error when DB_USER and DB_NAME are missing")
	}
}

func TestRedact(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://bot:hunter2@db:5432/echoloop", "postgres://bot:xxxxx@db:5432/echoloop"},
		{"host=/cloudsql/p:r:i user=bot password=hunter2 dbname=echoloop", "host=/cloudsql/p:r:i user=bot password=xxxxx dbname=echoloop"},
		{`host=/cloudsql/p:r:i password='a b\'c' dbname=echoloop`, "host=/cloudsql/p:r:i password=xxxxx dbname=echoloop"},
		{"postgres://localhost/echoloop", "postgres://localhost/echoloop"},
	}
	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
