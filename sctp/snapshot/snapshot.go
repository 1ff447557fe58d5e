// Package snapshot periodically captures per-path association state and
// writes it out as CSV, the way m-lab/tcp-info's snapshot/csvtool pair
// turns polled connection state into a CSV archive via gocsv.Marshal.
package snapshot

import (
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/userspace-sctp/sctp/sctp"
)

// Snapshot is one path's instrumentation state at a point in time.
type Snapshot struct {
	Timestamp     time.Time     `csv:"timestamp"`
	AssocID       string        `csv:"assoc_id"`
	PathIndex     int           `csv:"path_index"`
	Address       string        `csv:"address"`
	State         string        `csv:"state"`
	Confirmed     bool          `csv:"confirmed"`
	SRTTMillis    float64       `csv:"srtt_ms"`
	RTOMillis     float64       `csv:"rto_ms"`
	CwndBytes     int           `csv:"cwnd_bytes"`
	SsthreshBytes int           `csv:"ssthresh_bytes"`
	BytesInFlight int           `csv:"bytes_in_flight"`
	RetransCount  int           `csv:"retrans_count"`
	FastRecovery  bool          `csv:"fast_recovery"`
}

// Capture takes one Snapshot per path of a, stamped at now.
func Capture(a *sctp.Association, now time.Time) []Snapshot {
	stats := a.PathStats()
	out := make([]Snapshot, len(stats))
	for i, s := range stats {
		out[i] = Snapshot{
			Timestamp:     now,
			AssocID:       a.ID(),
			PathIndex:     i,
			Address:       s.Address,
			State:         s.State,
			Confirmed:     s.Confirmed,
			SRTTMillis:    float64(s.SRTT) / float64(time.Millisecond),
			RTOMillis:     float64(s.RTO) / float64(time.Millisecond),
			CwndBytes:     s.Cwnd,
			SsthreshBytes: s.Ssthresh,
			BytesInFlight: s.BytesInFlight,
			RetransCount:  s.RetransCount,
			FastRecovery:  s.InFastRecovery,
		}
	}
	return out
}

// Recorder accumulates Snapshots across repeated Capture calls until
// Flush writes them out as CSV and resets the buffer, mirroring the
// poll-then-archive cadence m-lab/tcp-info's saver package runs on a
// ticker.
type Recorder struct {
	buf []Snapshot
}

// Record appends one Capture's worth of snapshots to the buffer.
func (r *Recorder) Record(a *sctp.Association, now time.Time) {
	r.buf = append(r.buf, Capture(a, now)...)
}

// Flush writes every buffered snapshot to w as CSV and clears the buffer.
// Called with an empty buffer it writes nothing, not even a header.
func (r *Recorder) Flush(w io.Writer) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := gocsv.Marshal(r.buf, w); err != nil {
		return err
	}
	r.buf = r.buf[:0]
	return nil
}
