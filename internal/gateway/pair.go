package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
)

// pairTimeout bounds the handshake call.
const pairTimeout = 30 * time.Second

// Pair performs the one-time token handshake against a freshly started
// gateway. Combined output is logged for diagnostics. Errors are
// returned so the caller can decide how fatal they are; a gateway that
// is already paired rejects re-pairing and that looks identical to a
// real failure here.
func Pair(ctx context.Context, cli CLI, token string) error {
	res := runCLI(ctx, cli, []string{"gateway", "pair", "--token", token}, pairTimeout)

	if combined := strings.TrimSpace(res.stdout + res.stderr); combined != "" {
		L_info("[PAIR] %s", combined)
	}
	if res.err != nil {
		return fmt.Errorf("pairing failed: %w", res.err)
	}
	return nil
}
