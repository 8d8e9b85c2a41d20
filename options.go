package flashkv

import (
	"github.com/Priyanshu23/flashkv/internal/ikey"
	"github.com/Priyanshu23/flashkv/internal/sstable"
	"github.com/sirupsen/logrus"
)

// defaultWriteBufferSize is the memtable rotation threshold.
const defaultWriteBufferSize = 4 * 1024 * 1024

// defaultTableCacheCapacity bounds the table cache's open-file count.
const defaultTableCacheCapacity = 500

// Options carries the tunable knobs of a DB. Zero values are filled in by
// defaultOptions; callers adjust them through the With... functions passed
// to Open.
type Options struct {
	WriteBufferSize       int64
	BlockSize             int
	RestartInterval       int
	Comparator            ikey.Comparator
	Logger                *logrus.Logger
	TableCacheSize        int
	Compression           sstable.CompressionType
	FilterExpectedEntries uint
}

// Option mutates an Options in place; apply in order via Open(dir, opts...).
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		WriteBufferSize: defaultWriteBufferSize,
		BlockSize:       sstable.DefaultBlockSize,
		RestartInterval: sstable.RestartInterval,
		Comparator:      ikey.BytewiseComparator{},
		Logger:          logrus.StandardLogger(),
		TableCacheSize:  defaultTableCacheCapacity,
		Compression:     sstable.CompressionNone,
	}
}

// WithWriteBufferSize overrides the memtable rotation threshold.
func WithWriteBufferSize(n int64) Option {
	return func(o *Options) { o.WriteBufferSize = n }
}

// WithBlockSize overrides the target uncompressed data-block size.
func WithBlockSize(n int) Option {
	return func(o *Options) { o.BlockSize = n }
}

// WithRestartInterval overrides the number of entries between SST block
// restart points.
func WithRestartInterval(n int) Option {
	return func(o *Options) { o.RestartInterval = n }
}

// WithComparator installs a user key comparator other than the default
// byte-wise order.
func WithComparator(cmp ikey.Comparator) Option {
	return func(o *Options) { o.Comparator = cmp }
}

// WithLogger installs a *logrus.Logger for the DB engine's structured
// logging; by default the package-level standard logger is used.
func WithLogger(l *logrus.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithTableCacheSize overrides the table cache's open-SST capacity.
func WithTableCacheSize(n int) Option {
	return func(o *Options) { o.TableCacheSize = n }
}

// WithSnappyCompression enables Snappy compression for newly written SST
// blocks.
func WithSnappyCompression() Option {
	return func(o *Options) { o.Compression = sstable.CompressionSnappy }
}

// WithBloomFilter builds a per-table bloom filter sized for
// expectedEntries, consulted before a data-block read.
func WithBloomFilter(expectedEntries uint) Option {
	return func(o *Options) { o.FilterExpectedEntries = expectedEntries }
}
