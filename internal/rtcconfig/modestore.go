package rtcconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

type persistedMode struct {
	Mode Mode `json:"mode"`
}

// modeStorePath returns the platform registry stand-in: a small JSON file
// next to the credentials file's default location. Real OS service
// registration (Windows registry, systemd unit) is install/uninstall's
// job, not the mode store's.
func modeStorePath() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(`C:\ProgramData\Gateway`, "mode.json")
	}
	return filepath.Join("/etc/gateway", "mode.json")
}

// StoredMode reads the persisted mode, falling back to ModeGRPC if none has
// been saved yet.
func StoredMode() Mode {
	data, err := os.ReadFile(modeStorePath())
	if err != nil {
		return ModeGRPC
	}
	var pm persistedMode
	if err := json.Unmarshal(data, &pm); err != nil || (pm.Mode != ModeGRPC && pm.Mode != ModeP2P) {
		return ModeGRPC
	}
	return pm.Mode
}

// SetStoredMode persists mode for subsequent process starts.
func SetStoredMode(mode Mode) error {
	path := modeStorePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(persistedMode{Mode: mode})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
