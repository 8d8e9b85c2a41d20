package flashkv

// Snapshot pins a sequence number so repeated Get calls observe a fixed
// point-in-time view, even as later writes advance the database.
//
// The Version list holds exactly one live Version at a time, so a Snapshot
// pins only the sequence number, not a specific Version's file set: reads
// at an old snapshot stay correct (sequence ordering is unaffected by
// compaction), but nothing prevents an SST a snapshot's reads depend on
// from being deleted once no longer referenced by the current Version.
type Snapshot struct {
	seq uint64
}

// Sequence returns the pinned sequence number.
func (s *Snapshot) Sequence() uint64 { return s.seq }
