package lsmkv

// LevelStats summarizes one level's contents at the moment Stats was
// called.
type LevelStats struct {
	Level    int
	RunCount int
	ByteSize int64
}

// Stats reports a read-only snapshot of the database's on-disk shape and
// buffer-pool effectiveness, for operators and for the CLI's "stats"
// subcommand.
type Stats struct {
	Levels           []LevelStats
	MemtableEntries  int
	MemtableCapacity int

	BufferPoolEnabled  bool
	BufferPoolLen      int
	BufferPoolCapacity int
	BufferPoolHitRate  float64
}

// Stats computes a Stats snapshot. It takes no lock beyond what DB itself
// assumes (a single-threaded engine), so the snapshot reflects the state
// at the instant of the call.
func (db *DB) Stats() (Stats, error) {
	if err := db.checkOpen(); err != nil {
		return Stats{}, err
	}
	s := Stats{
		MemtableEntries:    db.mem.Len(),
		MemtableCapacity:   db.mem.Capacity(),
		BufferPoolEnabled:  db.pool.Enabled(),
		BufferPoolLen:      db.pool.Len(),
		BufferPoolCapacity: db.pool.Capacity(),
		BufferPoolHitRate:  db.pool.HitRate(),
	}
	for level := 0; level < db.manifest.NumLevels(); level++ {
		runs := db.manifest.Runs(level)
		s.Levels = append(s.Levels, LevelStats{
			Level:    level,
			RunCount: len(runs),
			ByteSize: db.manifest.LevelByteSize(level),
		})
	}
	return s, nil
}
