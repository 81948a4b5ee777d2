package activation

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

const salt = "TEST_SALT"

var keyFormat = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestDJB2KnownValues(t *testing.T) {
	assert.Equal(t, uint32(5381), djb2(""))
	assert.Equal(t, uint32(5381*33+'a'), djb2("a"))
}

func TestFingerprintIsStable(t *testing.T) {
	info := DeviceInfo{Hostname: "School-PC", Platform: "windows", Arch: "amd64", CPUs: 4}
	fp := Fingerprint(info)
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint(DeviceInfo{Hostname: "school-pc", Platform: "windows", Arch: "amd64", CPUs: 4}))

	info.DeviceID = "abc"
	assert.NotEqual(t, fp, Fingerprint(info))
}

func TestKeyForAndValidate(t *testing.T) {
	fp := Fingerprint(DeviceInfo{Hostname: "pc", Platform: "linux", Arch: "arm64", CPUs: 8})
	key := KeyFor(fp, salt)
	assert.Regexp(t, keyFormat, key)

	assert.True(t, Validate(fp, key, salt))
	assert.True(t, Validate(fp, " "+lower(key)+" ", salt))
	assert.True(t, Validate(fp, key[0:4]+key[5:9]+key[10:14], salt))
	assert.False(t, Validate(fp, key, "other"))
	assert.False(t, Validate(fp+"0", key, salt))
	assert.False(t, Validate(fp, "0000-0000-0000", salt))
}

func TestDetectUsesDeviceID(t *testing.T) {
	info := Detect("shell-123")
	assert.Equal(t, "shell-123", info.DeviceID)
	assert.NotEmpty(t, info.Platform)
	assert.Positive(t, info.CPUs)
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + 32
		}
	}
	return string(out)
}
