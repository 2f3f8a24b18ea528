package oauth

import (
	"fmt"
	"log/slog"

	"gadgethost/pkg/logging"
)

const redacted = "[REDACTED]"

// String implements fmt.Stringer. Credential fields are never printed so a
// SecurityToken can be passed to any log call.
func (t *SecurityToken) String() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("SecurityToken{owner=%s app=%s service=%s protocol=%s state=%s token=%s}",
		logging.TruncateID(t.OwnerID), t.AppURL, t.ServiceName, t.Protocol, t.State, redactIfSet(t.Token))
}

// GoString implements fmt.GoStringer for %#v.
func (t *SecurityToken) GoString() string {
	return "oauth." + t.String()
}

// LogValue implements slog.LogValuer.
func (t *SecurityToken) LogValue() slog.Value {
	if t == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("owner", logging.TruncateID(t.OwnerID)),
		slog.String("app", t.AppURL),
		slog.String("service", t.ServiceName),
		slog.String("protocol", t.Protocol.String()),
		slog.String("state", t.State.String()),
		slog.String("token", redactIfSet(t.Token)),
		slog.String("refresh_token", redactIfSet(t.RefreshToken)),
	)
}

func redactIfSet(v string) string {
	if v == "" {
		return ""
	}
	return redacted
}
