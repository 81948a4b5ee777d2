// Package activation derives device fingerprints and checks activation
// keys. The hash is a salted DJB2 and only deters casual copying; it is not
// a security boundary.
package activation

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// DeviceInfo are the inputs of a fingerprint.
type DeviceInfo struct {
	Hostname string
	Platform string
	Arch     string
	CPUs     int
	// DeviceID is an optional stable id supplied by the shell.
	DeviceID string
}

// Detect reads DeviceInfo from the running host.
func Detect(deviceID string) DeviceInfo {
	host, _ := os.Hostname()
	return DeviceInfo{
		Hostname: host,
		Platform: runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
		DeviceID: deviceID,
	}
}

// djb2 is the additive variant: h = h*33 + c.
func djb2(s string) uint32 {
	var h uint32 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// Fingerprint returns a 16 character uppercase hex id for the device.
func Fingerprint(info DeviceInfo) string {
	raw := strings.Join([]string{
		strings.ToLower(info.Hostname),
		info.Platform,
		info.Arch,
		fmt.Sprint(info.CPUs),
		info.DeviceID,
	}, "|")
	return fmt.Sprintf("%08X%08X", djb2(raw), djb2(reverse(raw)))
}

// KeyFor returns the XXXX-XXXX-XXXX key that activates fingerprint.
func KeyFor(fingerprint, salt string) string {
	fp := strings.ToUpper(strings.TrimSpace(fingerprint))
	digits := fmt.Sprintf("%08X%08X", djb2(fp+salt), djb2(salt+fp))[:12]
	return digits[0:4] + "-" + digits[4:8] + "-" + digits[8:12]
}

// Validate reports whether key activates fingerprint. Case and surrounding
// whitespace of key are ignored.
func Validate(fingerprint, key, salt string) bool {
	return NormalizeKey(key) == KeyFor(fingerprint, salt)
}

// NormalizeKey upper-cases key and restores dashes when they were omitted.
func NormalizeKey(key string) string {
	k := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), " ", ""))
	if len(k) == 12 && !strings.Contains(k, "-") {
		k = k[0:4] + "-" + k[4:8] + "-" + k[8:12]
	}
	return k
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
