package tunebook

import "fmt"

// Download naming contract for exported files. versionNumber <= 0 means
// a single-version tune and omits the suffix.

func MIDIFileName(settingID string, versionNumber int) string {
	return exportName(settingID, versionNumber, "mid")
}

func WAVFileName(settingID string, versionNumber int) string {
	return exportName(settingID, versionNumber, "wav")
}

func exportName(settingID string, versionNumber int, ext string) string {
	if versionNumber > 0 {
		return fmt.Sprintf("tune-%s-v%d.%s", settingID, versionNumber, ext)
	}
	return fmt.Sprintf("tune-%s.%s", settingID, ext)
}
