package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("fs: injected fault")

// Op is a set of file operations that a Fault makes fail.
type Op uint8

const (
	// OpWrite fails sequential writes (artifact saves).
	OpWrite Op = 1 << iota
	// OpWriteAt fails positional writes (cache chunk persists).
	OpWriteAt
	// OpSync fails fsync.
	OpSync
	// OpClose fails Close after closing the underlying file.
	OpClose
	// OpRename fails renames whose target matches.
	OpRename
)

// Fault describes how operations on matching paths fail.
type Fault struct {
	// Ops always fail.
	Ops Op
	// WriteBudget, when positive, lets sequential writes succeed until the
	// file has received this many bytes.
	WriteBudget int64
	// Err is returned instead of ErrInjected.
	Err error
}

func (f Fault) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

type faultRule struct {
	pattern string
	fault   Fault
}

// FaultyFS wraps a FileSystem and injects errors into files whose path
// contains a rule's pattern. Rules are consulted when a file is opened; the
// most recently added match wins.
type FaultyFS struct {
	FileSystem

	mu       sync.Mutex
	rules    []faultRule
	injected int
}

// NewFaultyFS wraps fsys, or Default when nil.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FileSystem: fsys}
}

// AddRule registers fault for paths containing pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, faultRule{pattern: pattern, fault: fault})
}

// ClearRules removes every rule. Files opened earlier keep their faults.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Injected returns how many operations failed because of a rule.
func (f *FaultyFS) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected
}

func (f *FaultyFS) match(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rules) - 1; i >= 0; i-- {
		if strings.Contains(name, f.rules[i].pattern) {
			return f.rules[i].fault
		}
	}
	return Fault{}
}

func (f *FaultyFS) inject(fault Fault) error {
	f.mu.Lock()
	f.injected++
	f.mu.Unlock()
	return fault.err()
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FileSystem.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, fault: f.match(name)}, nil
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault := f.match(newpath); fault.Ops&OpRename != 0 {
		return f.inject(fault)
	}
	return f.FileSystem.Rename(oldpath, newpath)
}

type faultyFile struct {
	File
	fs      *FaultyFS
	fault   Fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if ff.fault.Ops&OpWrite != 0 {
		return 0, ff.fs.inject(ff.fault)
	}
	if b := ff.fault.WriteBudget; b > 0 && ff.written+int64(len(p)) > b {
		return 0, ff.fs.inject(ff.fault)
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if ff.fault.Ops&OpWriteAt != 0 {
		return 0, ff.fs.inject(ff.fault)
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.Ops&OpSync != 0 {
		return ff.fs.inject(ff.fault)
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ff.fault.Ops&OpClose != 0 {
		return ff.fs.inject(ff.fault)
	}
	return err
}
