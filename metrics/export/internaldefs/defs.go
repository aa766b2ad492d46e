package internaldefs

import (
	"strings"

	"github.com/MrEthical07/lmsauth"
)

// CounterDef binds a counter to its exported name.
type CounterDef struct {
	ID   lmsauth.MetricID
	Name string
	Help string
}

// Event is Name without the namespace and unit suffix, e.g. "login_success".
func (d CounterDef) Event() string {
	return strings.TrimSuffix(strings.TrimPrefix(d.Name, "lmsauth_"), "_total")
}

// HistogramDef binds a histogram to its exported name.
type HistogramDef struct {
	ID   lmsauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: lmsauth.MetricLoginSuccess, Name: "lmsauth_login_success_total", Help: "Successful logins."},
	{ID: lmsauth.MetricLoginFailure, Name: "lmsauth_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: lmsauth.MetricLoginAccountState, Name: "lmsauth_login_account_state_total", Help: "Logins rejected for a deleted, inactive, banned or pending account."},
	{ID: lmsauth.MetricLoginConflict, Name: "lmsauth_login_conflict_total", Help: "Logins rejected at the session limit."},
	{ID: lmsauth.MetricSessionCreated, Name: "lmsauth_session_created_total", Help: "Created sessions."},
	{ID: lmsauth.MetricSessionEvicted, Name: "lmsauth_session_evicted_total", Help: "Sessions evicted to admit a newer login."},
	{ID: lmsauth.MetricAuthenticateSuccess, Name: "lmsauth_authenticate_success_total", Help: "Authenticated requests."},
	{ID: lmsauth.MetricAuthenticateFailure, Name: "lmsauth_authenticate_failure_total", Help: "Rejected bearer tokens and sessions."},
	{ID: lmsauth.MetricSessionExpired, Name: "lmsauth_session_expired_total", Help: "Sessions deactivated for idleness on access."},
	{ID: lmsauth.MetricLogout, Name: "lmsauth_logout_total", Help: "Self logouts."},
	{ID: lmsauth.MetricSessionKilled, Name: "lmsauth_session_killed_total", Help: "Sessions terminated by id."},
	{ID: lmsauth.MetricForceLogout, Name: "lmsauth_force_logout_total", Help: "Admin force-logout operations."},
	{ID: lmsauth.MetricSessionInvalidated, Name: "lmsauth_session_invalidated_total", Help: "Sessions deactivated by account side effects."},
	{ID: lmsauth.MetricPasswordChangeSuccess, Name: "lmsauth_password_change_success_total", Help: "Successful password changes."},
	{ID: lmsauth.MetricPasswordChangeFailure, Name: "lmsauth_password_change_failure_total", Help: "Rejected password changes."},
	{ID: lmsauth.MetricPasswordRehashed, Name: "lmsauth_password_rehashed_total", Help: "Stored hashes upgraded on login."},
	{ID: lmsauth.MetricAccountBanned, Name: "lmsauth_account_banned_total", Help: "Accounts banned."},
	{ID: lmsauth.MetricAccountDeleted, Name: "lmsauth_account_deleted_total", Help: "Accounts soft deleted."},
	{ID: lmsauth.MetricSweepDeactivated, Name: "lmsauth_sweep_deactivated_total", Help: "Idle sessions deactivated by the sweeper."},
	{ID: lmsauth.MetricPersistenceFailure, Name: "lmsauth_persistence_failure_total", Help: "Session store and user directory faults."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: lmsauth.MetricAuthenticateLatency, Name: "lmsauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
