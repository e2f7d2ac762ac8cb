package state

import (
	"fmt"
	"hash/fnv"
	"net"
	"sort"
	"strings"
)

// Store wires the three independently locked tables the analysis
// engine consults per event (spec.md §4.2 and §9's "do not embed
// pointers from one state into another").
type Store struct {
	IPs      *SyncTable[PerIPState]
	Paths    *SyncTable[PerPathState]
	Sessions *SyncTable[PerSessionState]

	sessionInactivityTTLMs int64
}

// StoreConfig collects every table-sizing knob needed at construction.
type StoreConfig struct {
	IPState      PerIPStateConfig
	PathState    PerPathStateConfig
	SessionState PerSessionStateConfig

	InitialIPCapacity      int
	InitialPathCapacity    int
	InitialSessionCapacity int

	SessionInactivityTTLMs int64
}

// NewStore constructs the three tables from cfg.
func NewStore(cfg StoreConfig) *Store {
	return &Store{
		IPs: NewSyncTable(cfg.InitialIPCapacity, func(now int64) PerIPState {
			return *NewPerIPState(cfg.IPState, now)
		}, nil),
		Paths: NewSyncTable(cfg.InitialPathCapacity, func(now int64) PerPathState {
			return *NewPerPathState(cfg.PathState, now)
		}, nil),
		Sessions: NewSyncTable(cfg.InitialSessionCapacity, func(now int64) PerSessionState {
			return *NewPerSessionState(cfg.SessionState, now)
		}, nil),
		sessionInactivityTTLMs: cfg.SessionInactivityTTLMs,
	}
}

// IPKey converts a dotted/IPv6 client address into the 32-bit integer
// key spec.md §4.2 calls for. Addresses that don't parse as IPv4 (or
// an IPv4-mapped IPv6 address) fall back to a 32-bit FNV hash of the
// string so every client still gets a stable, collision-resistant key.
func IPKey(addr string) uint32 {
	ip := net.ParseIP(addr)
	if ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
		}
	}
	return hash32(addr)
}

// PathKey hashes a URL path to the 32-bit key spec.md §4.2 calls for.
func PathKey(path string) uint32 {
	return hash32(path)
}

// SessionKey composes a 64-bit key from the configured session key
// fields (e.g. "ip", "ua", "path") and the corresponding values for
// one event, in the order fields names them.
func SessionKey(fields []string, values map[string]string) uint64 {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(values[f])
		b.WriteByte(0)
	}
	h := fnv.New64a()
	h.Write([]byte(b.String()))
	return h.Sum64()
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Tick runs the periodic maintenance the memory manager and session
// reaper drive: hibernating idle IP/path entries and evicting sessions
// past their inactivity TTL irrespective of memory pressure (spec.md
// §4.2 "Sessions honor an additional inactivity TTL").
func (s *Store) Tick(nowMs, ipHibernateIdleMs, pathHibernateIdleMs int64) {
	s.IPs.HibernateInactive(nowMs, ipHibernateIdleMs)
	s.Paths.HibernateInactive(nowMs, pathHibernateIdleMs)

	var staleSessions []uint64
	s.Sessions.ForEach(func(key uint64, v *PerSessionState) {
		if nowMs-v.LastSeenMs > s.sessionInactivityTTLMs {
			staleSessions = append(staleSessions, key)
		}
	})
	for _, key := range staleSessions {
		s.Sessions.Remove(key)
	}
}

// Compact drops hibernated IP/path entries older than olderThanMs.
func (s *Store) Compact(nowMs, olderThanMs int64) (ips, paths int) {
	return s.IPs.Compact(nowMs, olderThanMs), s.Paths.Compact(nowMs, olderThanMs)
}

// KeyToIPv4 renders an IPKey back into dotted-quad form. Keys produced
// by IPKey's FNV-hash fallback (non-IPv4 clients) don't round-trip and
// render as the hash's four octets instead; this is a display
// convenience for the operational API, not a reversible encoding.
func KeyToIPv4(key uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(key>>24), byte(key>>16), byte(key>>8), byte(key))
}

// IPSummary is a read-through snapshot of one PerIPState, copied out
// under the table's short lock for the operational API's top-N
// endpoints (spec.md §5 "reads by the metrics surface are confined to
// aggregate snapshot methods that hold short locks and copy out").
type IPSummary struct {
	IP           string
	RequestCount int64
	ErrorCount   int64
	ErrorRate    float64
	LastSeenMs   int64
}

func (s *Store) snapshotIPs() []IPSummary {
	var out []IPSummary
	s.IPs.ForEach(func(key uint64, v *PerIPState) {
		out = append(out, IPSummary{
			IP:           KeyToIPv4(uint32(key)),
			RequestCount: v.RequestCount,
			ErrorCount:   v.ErrorCount,
			ErrorRate:    v.ErrorRate(),
			LastSeenMs:   v.LastSeenMs,
		})
	})
	return out
}

// TopActiveIPs returns the n IPs with the highest request count,
// descending, for the /api/v1/operations/state "top_active_ips" field.
func (s *Store) TopActiveIPs(n int) []IPSummary {
	all := s.snapshotIPs()
	sort.Slice(all, func(i, j int) bool { return all[i].RequestCount > all[j].RequestCount })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// TopErrorIPs returns the n IPs with the highest error count,
// descending, for the /api/v1/operations/state "top_error_ips" field.
func (s *Store) TopErrorIPs(n int) []IPSummary {
	all := s.snapshotIPs()
	sort.Slice(all, func(i, j int) bool { return all[i].ErrorCount > all[j].ErrorCount })
	if len(all) > n {
		all = all[:n]
	}
	return all
}
