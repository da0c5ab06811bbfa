package hllconfig

import "path/filepath"

// SetDirPrefix is prepended to a set's name to form its directory name
// under data_dir. A directory is a valid set directory iff its name
// begins with this prefix and is strictly longer than it.
const SetDirPrefix = "hlld."

// ConfigFileName is the per-set configuration file within a set's
// directory.
const ConfigFileName = "config.ini"

// RegisterFileName is the per-set register Bitmap file within a set's
// directory, absent for in-memory-only sets.
const RegisterFileName = "registers.mmap"

// SetDir returns the on-disk directory for the named set under dataDir.
func SetDir(dataDir, name string) string {
	return filepath.Join(dataDir, SetDirPrefix+name)
}

// ConfigPath returns the config.ini path for the named set under dataDir.
func ConfigPath(dataDir, name string) string {
	return filepath.Join(SetDir(dataDir, name), ConfigFileName)
}

// RegisterPath returns the registers.mmap path for the named set under
// dataDir.
func RegisterPath(dataDir, name string) string {
	return filepath.Join(SetDir(dataDir, name), RegisterFileName)
}
