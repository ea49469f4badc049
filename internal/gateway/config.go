package gateway

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roelfdiedericks/clawkeeper/internal/config"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
	"github.com/roelfdiedericks/clawkeeper/internal/paths"
)

// Legacy top-level fields the gateway no longer accepts. EnsureConfig
// strips them on sight so old installs keep validating.
var deprecatedFields = []string{"providers", "version"}

// EnsureConfig makes sure ~/.openclaw/openclaw.json exists with a
// non-empty auth token and returns that token.
//
// An existing parsable document is cleaned of deprecated fields and kept
// if it already carries a token. Anything else (missing, unparsable, or
// tokenless) is replaced with a minimal local-only configuration and a
// freshly generated token.
func EnsureConfig(port int, bind string) (string, error) {
	path := paths.OpenClawConfigPath()
	if err := paths.EnsureParentDir(path); err != nil {
		return "", fmt.Errorf("failed to create openclaw dir: %w", err)
	}

	doc := map[string]any{}
	if _, err := config.ReadDocument(path, &doc); err != nil {
		// Unparsable config gets rebuilt rather than blocking startup
		L_warn("gateway: unreadable config, rebuilding", "path", path, "error", err)
		doc = map[string]any{}
	}

	for _, field := range deprecatedFields {
		if _, ok := doc[field]; ok {
			delete(doc, field)
			L_debug("gateway: stripped deprecated field", "field", field)
		}
	}

	if token := tokenIn(doc); token != "" {
		// Persist the cleaned document and keep the existing token
		if err := config.WriteDocument(path, doc); err != nil {
			return "", fmt.Errorf("failed to rewrite gateway config: %w", err)
		}
		L_trace("gateway: config ok", "path", path)
		return token, nil
	}

	token := newToken()
	fresh := map[string]any{
		"gateway": map[string]any{
			"mode": "local",
			"port": port,
			"bind": bind,
			"auth": map[string]any{"token": token},
		},
	}
	if err := config.WriteDocument(path, fresh); err != nil {
		return "", fmt.Errorf("failed to write gateway config: %w", err)
	}
	L_info("gateway: provisioned config", "path", path, "port", port, "bind", bind)
	return token, nil
}

// ReadToken returns the provisioned auth token without touching the
// document. A missing document or blank token is an ErrUnconfigured,
// an unparsable one an ErrCorrupt.
func ReadToken() (string, error) {
	var doc map[string]any
	found, err := config.ReadDocument(paths.OpenClawConfigPath(), &doc)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: openclaw.json not found, start the gateway first", config.ErrUnconfigured)
	}
	token := tokenIn(doc)
	if token == "" {
		return "", fmt.Errorf("%w: gateway auth token is empty", config.ErrUnconfigured)
	}
	return token, nil
}

// tokenIn digs gateway.auth.token out of a parsed config document.
func tokenIn(doc map[string]any) string {
	gw, ok := doc["gateway"].(map[string]any)
	if !ok {
		return ""
	}
	auth, ok := gw["auth"].(map[string]any)
	if !ok {
		return ""
	}
	token, _ := auth["token"].(string)
	return strings.TrimSpace(token)
}

// newToken generates the pairing token. Uniqueness rides on the
// timestamp and pid; this is an opaque local secret, not crypto.
func newToken() string {
	return fmt.Sprintf("local-%x-%x", time.Now().UnixNano(), os.Getpid())
}
