package utils

import (
	"runtime"
	"strconv"
	"time"
	"unicode"

	"github.com/abesuite/abe-powminer/chaincfg"
)

func IsBlank(str string) bool {
	if str == "" {
		return true
	}

	for _, c := range str {
		if !unicode.IsSpace(c) {
			return false
		}
	}
	return true
}

// GenerateJobID returns the job id for a job created at t: its unix time in
// milliseconds.
func GenerateJobID(t time.Time) string {
	return strconv.FormatInt(t.UnixNano()/int64(time.Millisecond), 10)
}

func GetNodeDesc() string {
	systemName := runtime.GOOS
	systemArch := runtime.GOARCH
	goVersion := runtime.Version()
	return "Node-v" + chaincfg.NodeBackendVersion + "/" + "Miner-v" + chaincfg.MinerBackendVersion + "/" + systemName + "-" + systemArch + "/" + goVersion
}

// ShortHex shortens a long hex string for log lines.
func ShortHex(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + ".." + s[len(s)-8:]
}
