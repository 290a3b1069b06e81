package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPID        = "pid"
	KeyPort       = "port"
	KeyVersionUID = "version_uid"
	KeyRevision   = "revision"
	KeyRunCount   = "run_count"
	KeyLaunchID   = "launch_id"
	KeyPath       = "path"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func Port(port int) slog.Attr         { return slog.Int(KeyPort, port) }
func VersionUID(uid string) slog.Attr { return slog.String(KeyVersionUID, uid) }
func Revision(rev string) slog.Attr   { return slog.String(KeyRevision, rev) }
func RunCount(n int) slog.Attr        { return slog.Int(KeyRunCount, n) }
func LaunchID(id string) slog.Attr    { return slog.String(KeyLaunchID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
