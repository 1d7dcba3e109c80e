// Package index implements the JobIndex cache (spec §4.5): an in-memory
// key-value store mapping (job_name, file_path) pairs to recovered
// model.Job metadata, persisted to two on-disk JSON documents by Flush
// (Put does not write to disk).
//
// Adapted from original_source/job_index.py's JobIndex class.
package index

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"dsxia/pkg/dsx/model"
)

// lookupEntry is the on-disk lookup.json value for one job key.
type lookupEntry struct {
	JobName   string `json:"job_name"`
	FilePath  string `json:"file_path"`
	FileHash  string `json:"file_hash"`
	CachedAt  string `json:"cached_at"`
}

// Stats mirrors §4.5's stats() contract.
type Stats struct {
	TotalJobs        int            `json:"total_jobs"`
	TotalTables      int            `json:"total_tables"`
	TotalColumns     int            `json:"total_columns"`
	MostUsedTables   map[string]int `json:"most_used_tables"`
	MostUsedColumns  map[string]int `json:"most_used_columns"`
}

// BuildStats mirrors §4.5's build_index() return value.
type BuildStats struct {
	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	CachedJobs     int `json:"cached_jobs"`
	SkippedJobs    int `json:"skipped_jobs"`
	Errors         int `json:"errors"`
}

// JobIndex is the persistent job metadata cache. Safe for concurrent
// use; pkg/workerpool writes to it from multiple goroutines during a
// rebuild.
type JobIndex struct {
	mu       sync.RWMutex
	lookup   map[string]lookupEntry
	metadata map[string]*model.Job
	store    *Store
	logger   *logrus.Logger
}

// New loads an index backed by store, falling back to an empty index
// with a logged warning on any corrupt on-disk state (§4.5 failure
// semantics).
func New(store *Store, logger *logrus.Logger) *JobIndex {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	idx := &JobIndex{
		lookup:   map[string]lookupEntry{},
		metadata: map[string]*model.Job{},
		store:    store,
		logger:   logger,
	}

	lookup, metadata, err := store.Load()
	if err != nil {
		logger.WithError(err).Warn("job index load failed, starting empty")
		return idx
	}
	idx.lookup = lookup
	idx.metadata = metadata
	logger.WithField("jobs", len(idx.lookup)).Info("job index loaded")
	return idx
}

// JobKey derives the xxhash-based composite key for a (job_name,
// file_path) pair (§11.1).
func JobKey(jobName, filePath string) string {
	sum := xxhash.Sum64String(jobName + "\x00" + filePath)
	return formatHex16(sum)
}

func formatHex16(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

// ContentHash computes the (file_size, mtime) pair hash for path
// (§4.5's "not a cryptographic hash" framing).
func ContentHash(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return formatHex16(xxhash.Sum64String(
		itoa(info.Size()) + "_" + itoa(info.ModTime().UnixNano())))
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// IsCached reports whether (jobName, filePath) is present, optionally
// requiring the stored hash to match contentHash.
func (idx *JobIndex) IsCached(jobName, filePath, contentHash string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	key := JobKey(jobName, filePath)
	entry, ok := idx.lookup[key]
	if !ok {
		return false
	}
	if contentHash != "" && entry.FileHash != contentHash {
		return false
	}
	return true
}

// FileCached reports whether every job already cached from filePath is
// still current under contentHash, letting a rebuild skip re-parsing
// that file entirely (§4.5: "skips any whose (file_path, hash) matches
// a still-cached entry"). The second return value is how many cached
// jobs came from that file. A file with no cached jobs at all is never
// reported as cached, since there is nothing to skip.
func (idx *JobIndex) FileCached(filePath, contentHash string) (bool, int) {
	if contentHash == "" {
		return false, 0
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := 0
	for _, entry := range idx.lookup {
		if entry.FilePath != filePath {
			continue
		}
		if entry.FileHash != contentHash {
			return false, 0
		}
		count++
	}
	return count > 0, count
}

// Get returns the cached Job for (jobName, filePath), if any.
func (idx *JobIndex) Get(jobName, filePath string) (*model.Job, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	job, ok := idx.metadata[JobKey(jobName, filePath)]
	return job, ok
}

// Put upserts both the lookup and metadata layers for job.
func (idx *JobIndex) Put(jobName, filePath string, job *model.Job, contentHash, cachedAt string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := JobKey(jobName, filePath)
	idx.lookup[key] = lookupEntry{
		JobName:  jobName,
		FilePath: filePath,
		FileHash: contentHash,
		CachedAt: cachedAt,
	}
	idx.metadata[key] = job
}

// InvalidateFile removes every job keyed to filePath, satisfying the
// watch.Invalidator interface (internal/watch).
func (idx *JobIndex) InvalidateFile(filePath string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for key, entry := range idx.lookup {
		if entry.FilePath == filePath {
			delete(idx.lookup, key)
			delete(idx.metadata, key)
			removed++
		}
	}
	if removed > 0 {
		idx.logger.WithFields(logrus.Fields{
			"file_path": filePath,
			"removed":   removed,
		}).Info("file cache invalidated")
	}
}

// Clear removes all cached entries.
func (idx *JobIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.lookup = map[string]lookupEntry{}
	idx.metadata = map[string]*model.Job{}
}

// AllJobs returns every cached Job.
func (idx *JobIndex) AllJobs() []*model.Job {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(idx.metadata))
	for _, job := range idx.metadata {
		jobs = append(jobs, job)
	}
	return jobs
}

// JobsByTable returns every cached Job referencing table (as source or
// target), matched by full name or bare table name (case-insensitive).
func (idx *JobIndex) JobsByTable(tableName, schema string) []*model.Job {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fullName := tableName
	if schema != "" {
		fullName = schema + "." + tableName
	}
	fullName = strings.ToUpper(fullName)
	tableUpper := strings.ToUpper(tableName)

	var matches []*model.Job
	for _, job := range idx.metadata {
		for _, ref := range job.AllTables() {
			if strings.ToUpper(ref.FullName) == fullName || strings.ToUpper(ref.TableName) == tableUpper {
				matches = append(matches, job)
				break
			}
		}
	}
	return matches
}

// JobsByColumn returns every cached Job referencing column, optionally
// narrowed to one table.
func (idx *JobIndex) JobsByColumn(columnName, tableName, schema string) []*model.Job {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	columnUpper := strings.ToUpper(columnName)

	var fullName string
	if tableName != "" {
		fullName = tableName
		if schema != "" {
			fullName = schema + "." + tableName
		}
	}

	var matches []*model.Job
	for _, job := range idx.metadata {
		if fullName != "" {
			if hasColumn(job.Columns[fullName], columnUpper) {
				matches = append(matches, job)
			}
			continue
		}
		for _, cols := range job.Columns {
			if hasColumn(cols, columnUpper) {
				matches = append(matches, job)
				break
			}
		}
	}
	return matches
}

func hasColumn(cols []model.Column, nameUpper string) bool {
	for _, c := range cols {
		if strings.ToUpper(c.Name) == nameUpper {
			return true
		}
	}
	return false
}

// Stats returns cache-wide usage statistics (§4.5).
func (idx *JobIndex) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tableCounts := map[string]int{}
	columnCounts := map[string]int{}

	for _, job := range idx.metadata {
		for _, ref := range job.AllTables() {
			if ref.FullName != "" {
				tableCounts[ref.FullName]++
			}
		}
		for _, cols := range job.Columns {
			for _, c := range cols {
				if c.Name != "" {
					columnCounts[c.Name]++
				}
			}
		}
	}

	return Stats{
		TotalJobs:       len(idx.lookup),
		TotalTables:     len(tableCounts),
		TotalColumns:    len(columnCounts),
		MostUsedTables:  topN(tableCounts, 10),
		MostUsedColumns: topN(columnCounts, 10),
	}
}

func topN(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	pairs := make([]kv, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].v != pairs[j].v {
			return pairs[i].v > pairs[j].v
		}
		return pairs[i].k < pairs[j].k
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	out := map[string]int{}
	for _, p := range pairs {
		out[p.k] = p.v
	}
	return out
}

// Flush persists the current in-memory state to disk (write-then-rename).
func (idx *JobIndex) Flush() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.store.Save(idx.lookup, idx.metadata)
}
