// Package cloudsql resolves the engagement store connection string for
// local development and for Cloud Run with a mounted Cloud SQL socket.
package cloudsql

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// SocketRoot is where Cloud Run mounts Cloud SQL instances.
const SocketRoot = "/cloudsql"

// DatabaseURL returns DATABASE_URL when set. Otherwise, when
// INSTANCE_CONNECTION_NAME is set, it builds a keyword connection string for
// the instance's Unix socket from DB_USER, DB_PASSWORD and DB_NAME. An empty
// result with a nil error means no database is configured.
func DatabaseURL(lookup func(string) string) (string, error) {
	if dbURL := lookup("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := lookup("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	user, name := lookup("DB_USER"), lookup("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	parts := []string{
		"host=" + SocketRoot + "/" + instance,
		"user=" + quote(user),
	}
	// No password means IAM database authentication.
	if password := lookup("DB_PASSWORD"); password != "" {
		parts = append(parts, "password="+quote(password))
	}
	parts = append(parts, "dbname="+quote(name), "sslmode=disable")
	return strings.Join(parts, " "), nil
}

var keywordPassword = regexp.MustCompile(`password=('(?:[^'\\]|\\.)*'|\S+)`)

// Redact hides the password in a URL or keyword connection string so it can
// be logged.
func Redact(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return "<unparseable database url>"
		}
		return u.Redacted()
	}
	return keywordPassword.ReplaceAllString(connStr, "password=xxxxx")
}

// quote escapes a keyword value for lib/pq when it contains spaces or quotes.
func quote(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
