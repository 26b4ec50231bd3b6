package risk

import "os"

// FileFlags toggles the gates by the presence of marker files.
type FileFlags struct {
	StopPath  string
	TopUpPath string
}

func NewFileFlags(stopPath, topUpPath string) *FileFlags {
	return &FileFlags{StopPath: stopPath, TopUpPath: topUpPath}
}

func (f *FileFlags) StopBuys() bool { return exists(f.StopPath) }

func (f *FileFlags) AllowTopUps() bool { return exists(f.TopUpPath) }

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// StaticFlags is a fixed FlagProvider.
type StaticFlags struct {
	Stop  bool
	TopUp bool
}

func (s StaticFlags) StopBuys() bool { return s.Stop }

func (s StaticFlags) AllowTopUps() bool { return s.TopUp }
